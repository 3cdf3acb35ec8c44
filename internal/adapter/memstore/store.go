// Package memstore implements the correlation store in process memory.
// It backs dev mode and tests; a restarted process starts empty.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reviewd-io/reviewd/internal/domain"
	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/port/store"
)

// Store implements store.CorrelationStore with a mutex-guarded map.
// The completion check-and-set happens entirely under the lock, so the
// exactly-one-Applied contract holds under concurrent callers.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*review.Request
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{requests: make(map[string]*review.Request)}
}

// Create inserts a new pending request.
func (s *Store) Create(_ context.Context, req *review.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("create request %s: %w", req.ID, domain.ErrDuplicateID)
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// GetStatus returns the current status of a request.
func (s *Store) GetStatus(_ context.Context, id string) (review.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return "", fmt.Errorf("get status %s: %w", id, domain.ErrNotFound)
	}
	return req.Status, nil
}

// Get returns a copy of the full record for an id.
func (s *Store) Get(_ context.Context, id string) (*review.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

// Complete atomically transitions pending -> completed.
func (s *Store) Complete(_ context.Context, id string, finalLabel review.Label, comment string) (store.CompleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return store.NotFound, nil
	}
	if req.Status == review.StatusCompleted {
		return store.AlreadyCompleted, nil
	}

	req.Status = review.StatusCompleted
	req.FinalLabel = &finalLabel
	req.ReviewerComment = comment
	req.UpdatedAt = time.Now().UTC()
	return store.Applied, nil
}

// Snapshot returns all records, newest first.
func (s *Store) Snapshot(_ context.Context) ([]review.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]review.Request, 0, len(s.requests))
	for _, req := range s.requests {
		result = append(result, *req)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
