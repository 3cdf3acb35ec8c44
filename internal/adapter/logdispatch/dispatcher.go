// Package logdispatch implements a dispatch.Dispatcher that only logs.
// It is the dev-mode stand-in for a real review channel; reconciliation
// stays reachable through manual callbacks against the webhook endpoint.
package logdispatch

import (
	"context"
	"log/slog"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// Dispatcher logs each dispatched request instead of delivering it.
type Dispatcher struct{}

// New creates a log-only dispatcher.
func New() *Dispatcher { return &Dispatcher{} }

func (*Dispatcher) Name() string { return "log" }

func (*Dispatcher) Dispatch(_ context.Context, req *review.Request, alternatives []review.Label) error {
	slog.Info("review dispatch (log only)",
		"correlation_id", req.ID,
		"from", req.Payload.From,
		"subject", req.Payload.Subject,
		"proposed_label", req.ProposedLabel,
		"alternatives", len(alternatives),
	)
	return nil
}
