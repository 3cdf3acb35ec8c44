// Package store defines the correlation store port (interface).
package store

import (
	"context"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// CompleteOutcome reports what a Complete call did.
type CompleteOutcome int

const (
	// Applied means this caller performed the pending -> completed transition.
	Applied CompleteOutcome = iota
	// AlreadyCompleted means another caller won the transition.
	AlreadyCompleted
	// NotFound means no record exists for the id.
	NotFound
)

func (o CompleteOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyCompleted:
		return "already_completed"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// CorrelationStore is the durable record of outstanding and completed review
// requests, keyed by correlation id. It is the single source of truth for
// "has this already been resolved".
type CorrelationStore interface {
	// Create inserts a new pending request. Returns domain.ErrDuplicateID
	// when the id already exists.
	Create(ctx context.Context, req *review.Request) error

	// GetStatus returns the request's current status, or domain.ErrNotFound.
	GetStatus(ctx context.Context, id string) (review.Status, error)

	// Get returns the full record for an id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*review.Request, error)

	// Complete atomically transitions pending -> completed. Under concurrent
	// calls with the same id exactly one caller observes Applied; the rest
	// observe AlreadyCompleted. The error is non-nil only for store failures.
	Complete(ctx context.Context, id string, finalLabel review.Label, comment string) (CompleteOutcome, error)

	// Snapshot returns all records ordered by created_at descending.
	Snapshot(ctx context.Context) ([]review.Request, error)
}
