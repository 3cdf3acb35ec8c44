// Package broadcast defines the port for fanning out review updates to
// connected observers.
package broadcast

import (
	"context"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// Broadcaster pushes review updates to every currently registered observer.
// Delivery is at-least-once to observers present at publish time; observers
// that join later receive only a snapshot of current state.
type Broadcaster interface {
	// Publish sends the event to all registered observers. A write failure
	// on one observer must not prevent delivery to the others.
	Publish(ctx context.Context, event review.UpdateEvent)
}
