package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/port/cache"
	"github.com/reviewd-io/reviewd/internal/port/classify"
	"github.com/reviewd-io/reviewd/internal/port/dispatch"
	"github.com/reviewd-io/reviewd/internal/port/store"
)

// Intake classifies an inbound message, records it as pending and hands
// it to the human-review dispatch mechanism. The create is the durability
// point: dispatch failure never rolls the record back, so reconciliation
// stays possible through other channels.
type Intake struct {
	classifier classify.Classifier
	store      store.CorrelationStore
	dispatcher dispatch.Dispatcher
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewIntake creates the intake service. cache may be nil to disable
// classification caching.
func NewIntake(c classify.Classifier, st store.CorrelationStore, d dispatch.Dispatcher, ch cache.Cache, ttl time.Duration) *Intake {
	return &Intake{
		classifier: c,
		store:      st,
		dispatcher: d,
		cache:      ch,
		cacheTTL:   ttl,
	}
}

// Submit runs the full intake: classify, create pending, dispatch.
func (s *Intake) Submit(ctx context.Context, payload review.Payload) (*review.Request, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	label, err := s.classifyMessage(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	now := time.Now().UTC()
	req := &review.Request{
		ID:            uuid.NewString(),
		Payload:       payload,
		ProposedLabel: label,
		Status:        review.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Fire-and-forget: the reviewer callback is the only signal the core
	// ever waits for.
	if err := s.dispatcher.Dispatch(ctx, req, review.Alternatives(label)); err != nil {
		slog.Warn("review dispatch failed, record kept pending",
			"correlation_id", req.ID,
			"dispatcher", s.dispatcher.Name(),
			"error", err,
		)
	}

	slog.Info("review request created",
		"correlation_id", req.ID,
		"proposed_label", label,
		"dispatcher", s.dispatcher.Name(),
	)
	return req, nil
}

// classifyMessage consults the content-hash cache before calling the
// classifier. Identical messages (retried submissions, mailing list
// blasts) skip the model round trip.
func (s *Intake) classifyMessage(ctx context.Context, payload review.Payload) (review.Label, error) {
	key := ""
	if s.cache != nil {
		key = payloadKey(payload)
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			label := review.Label(data)
			if review.ValidLabel(label) {
				return label, nil
			}
		}
	}

	label, err := s.classifier.Classify(ctx, payload)
	if err != nil {
		return "", err
	}
	if !review.ValidLabel(label) {
		label = review.DefaultLabel
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte(label), s.cacheTTL); err != nil {
			slog.Debug("classification cache set failed", "error", err)
		}
	}
	return label, nil
}

func payloadKey(p review.Payload) string {
	h := sha256.New()
	h.Write([]byte(p.From))
	h.Write([]byte{0})
	h.Write([]byte(p.Subject))
	h.Write([]byte{0})
	h.Write([]byte(p.Body))
	return "classify:" + hex.EncodeToString(h.Sum(nil))
}
