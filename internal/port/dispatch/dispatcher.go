// Package dispatch defines the review dispatch port (interface).
package dispatch

import (
	"context"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// Dispatcher hands a pending request to the external human-review mechanism.
// The call is one-way: the core never requires its result, only that the
// mechanism will eventually deliver a callback referencing the request id.
type Dispatcher interface {
	// Name returns the unique identifier for this dispatcher (e.g. "slack").
	Name() string

	// Dispatch sends the request and the alternative labels a reviewer may
	// pick from. Failure does not roll back the pending record.
	Dispatch(ctx context.Context, req *review.Request, alternatives []review.Label) error
}
