package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "reviewd"

// StartReconcileSpan starts a span for handling one review callback.
func StartReconcileSpan(ctx context.Context, correlationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reconcile",
		trace.WithAttributes(
			attribute.String("review.correlation_id", correlationID),
		),
	)
}

// StartIntakeSpan starts a span for one message intake.
func StartIntakeSpan(ctx context.Context, from string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "intake",
		trace.WithAttributes(
			attribute.String("review.from", from),
		),
	)
}
