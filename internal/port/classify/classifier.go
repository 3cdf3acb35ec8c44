// Package classify defines the classification port (interface).
package classify

import (
	"context"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// Classifier proposes a label for a message. Implementations are black
// boxes; the only contract is that the returned label belongs to the
// closed vocabulary.
type Classifier interface {
	Classify(ctx context.Context, payload review.Payload) (review.Label, error)
}
