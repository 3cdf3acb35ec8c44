package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewd-io/reviewd/internal/domain"
	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/port/broadcast"
	"github.com/reviewd-io/reviewd/internal/port/store"
)

// ReconcileResult classifies the outcome of handling one callback.
type ReconcileResult int

const (
	// ReconcileCompleted means this callback performed the transition and
	// one update event was emitted.
	ReconcileCompleted ReconcileResult = iota
	// ReconcileMalformed means the callback carried no correlation id.
	ReconcileMalformed
	// ReconcileUnknown means no record matches the id; a benign no-op,
	// the id may belong to a stale or foreign run.
	ReconcileUnknown
	// ReconcileAlreadyProcessed means the request was completed earlier;
	// an idempotency hit, no second event is emitted.
	ReconcileAlreadyProcessed
)

func (r ReconcileResult) String() string {
	switch r {
	case ReconcileCompleted:
		return "completed"
	case ReconcileMalformed:
		return "malformed"
	case ReconcileUnknown:
		return "unknown_correlation"
	case ReconcileAlreadyProcessed:
		return "already_processed"
	}
	return "unknown"
}

// Reconciler correlates inbound review callbacks with their requests and
// drives the one-way pending -> completed transition. Replaying the same
// callback any number of times yields the same terminal state and at most
// one emitted event.
type Reconciler struct {
	store store.CorrelationStore
	hub   broadcast.Broadcaster
}

// NewReconciler creates a Reconciler publishing updates through hub.
func NewReconciler(st store.CorrelationStore, hub broadcast.Broadcaster) *Reconciler {
	return &Reconciler{store: st, hub: hub}
}

// Reconcile validates the callback, deduplicates it against the store,
// derives the final decision and applies it. A non-nil error is returned
// only for store failures; every expected path maps to a ReconcileResult.
func (s *Reconciler) Reconcile(ctx context.Context, cb review.Callback) (ReconcileResult, error) {
	if cb.CorrelationID == "" {
		return ReconcileMalformed, nil
	}

	req, err := s.store.Get(ctx, cb.CorrelationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("callback for unknown correlation id", "correlation_id", cb.CorrelationID)
			return ReconcileUnknown, nil
		}
		return ReconcileUnknown, fmt.Errorf("reconcile lookup: %w", err)
	}
	if req.Status == review.StatusCompleted {
		slog.Info("callback replay for completed request", "correlation_id", cb.CorrelationID)
		return ReconcileAlreadyProcessed, nil
	}

	finalLabel, comment := review.Resolve(cb, req.ProposedLabel)

	outcome, err := s.store.Complete(ctx, cb.CorrelationID, finalLabel, comment)
	if err != nil {
		return ReconcileUnknown, fmt.Errorf("reconcile complete: %w", err)
	}

	switch outcome {
	case store.Applied:
		s.hub.Publish(ctx, review.UpdateEvent{
			ID:          cb.CorrelationID,
			FinalLabel:  finalLabel,
			Comment:     comment,
			CompletedAt: time.Now().UTC(),
		})
		slog.Info("review reconciled",
			"correlation_id", cb.CorrelationID,
			"final_label", finalLabel,
			"approved", cb.Approved,
		)
		return ReconcileCompleted, nil

	case store.AlreadyCompleted:
		// Lost a race against a concurrent duplicate callback. The winner
		// already emitted the event; this is still a success.
		slog.Info("duplicate callback lost completion race", "correlation_id", cb.CorrelationID)
		return ReconcileAlreadyProcessed, nil

	default:
		// The record vanished between validation and completion. Cannot
		// happen single-process, but the callback was handled exactly-once
		// overall, so this never surfaces as a failure.
		slog.Warn("reconciliation race: record disappeared", "correlation_id", cb.CorrelationID)
		return ReconcileUnknown, nil
	}
}
