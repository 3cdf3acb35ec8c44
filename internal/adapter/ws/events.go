package ws

import "github.com/reviewd-io/reviewd/internal/domain/review"

// Event type constants for WebSocket messages.
const (
	// EventSnapshot carries the full current state, sent once on connect.
	EventSnapshot = "review.snapshot"
	// EventSnapshotUnavailable tells a new observer the snapshot could not
	// be fetched; updates still follow.
	EventSnapshotUnavailable = "review.snapshot_unavailable"
	// EventReviewUpdate is broadcast when a request completes review.
	EventReviewUpdate = "review.update"
)

// SnapshotEvent is the payload of an EventSnapshot message.
type SnapshotEvent struct {
	Requests []review.Request `json:"requests"`
}
