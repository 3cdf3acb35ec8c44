package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reviewd"

// Metrics holds all reviewd metric instruments.
type Metrics struct {
	RequestsCreated   metric.Int64Counter
	CallbacksReceived metric.Int64Counter
	ReviewsReconciled metric.Int64Counter
	UpdatesBroadcast  metric.Int64Counter
	IntakeDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RequestsCreated, err = meter.Int64Counter("reviewd.requests.created",
		metric.WithDescription("Number of review requests created"))
	if err != nil {
		return nil, err
	}

	m.CallbacksReceived, err = meter.Int64Counter("reviewd.callbacks.received",
		metric.WithDescription("Number of review callbacks received, by result"))
	if err != nil {
		return nil, err
	}

	m.ReviewsReconciled, err = meter.Int64Counter("reviewd.reviews.reconciled",
		metric.WithDescription("Number of reviews transitioned to completed"))
	if err != nil {
		return nil, err
	}

	m.UpdatesBroadcast, err = meter.Int64Counter("reviewd.updates.broadcast",
		metric.WithDescription("Number of update events fanned out"))
	if err != nil {
		return nil, err
	}

	m.IntakeDuration, err = meter.Float64Histogram("reviewd.intake.duration_seconds",
		metric.WithDescription("Intake (classify, create, dispatch) duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
