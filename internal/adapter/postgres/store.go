package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewd-io/reviewd/internal/domain"
	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/port/store"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Store implements store.CorrelationStore on PostgreSQL. The pending ->
// completed transition is a conditional UPDATE guarded by the row's own
// status, so concurrent completions of the same id race at the database
// and exactly one wins.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new pending request.
func (s *Store) Create(ctx context.Context, req *review.Request) error {
	const q = `INSERT INTO review_requests
		(id, to_addr, from_addr, subject, body, proposed_label, status, reviewer_comment, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.pool.Exec(ctx, q,
		req.ID, req.Payload.To, req.Payload.From, req.Payload.Subject, req.Payload.Body,
		string(req.ProposedLabel), string(req.Status), req.ReviewerComment,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create request %s: %w", req.ID, domain.ErrDuplicateID)
		}
		return fmt.Errorf("create request %s: %w", req.ID, err)
	}
	return nil
}

// GetStatus returns the current status of a request.
func (s *Store) GetStatus(ctx context.Context, id string) (review.Status, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM review_requests WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		return "", notFoundWrap(err, "get status %s", id)
	}
	return review.Status(status), nil
}

// Get returns the full record for an id.
func (s *Store) Get(ctx context.Context, id string) (*review.Request, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, notFoundWrap(err, "get request %s", id)
	}
	return req, nil
}

// Complete atomically transitions pending -> completed. The WHERE clause on
// status makes the update single-writer-wins; a zero-row result is then
// disambiguated into AlreadyCompleted or NotFound.
func (s *Store) Complete(ctx context.Context, id string, finalLabel review.Label, comment string) (store.CompleteOutcome, error) {
	const q = `UPDATE review_requests
		SET status = 'completed', final_label = $2, reviewer_comment = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, q, id, string(finalLabel), comment, time.Now().UTC())
	if err != nil {
		return store.NotFound, fmt.Errorf("complete request %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return store.Applied, nil
	}

	status, err := s.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return store.NotFound, nil
		}
		return store.NotFound, fmt.Errorf("complete request %s: %w", id, err)
	}
	if status == review.StatusCompleted {
		return store.AlreadyCompleted, nil
	}
	// Pending but not updated: the row changed between UPDATE and SELECT.
	return store.AlreadyCompleted, nil
}

// Snapshot returns all records, newest first.
func (s *Store) Snapshot(ctx context.Context) ([]review.Request, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	var result []review.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("snapshot scan: %w", err)
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

const selectColumns = `SELECT id, to_addr, from_addr, subject, body, proposed_label,
	status, final_label, reviewer_comment, created_at, updated_at
	FROM review_requests`

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*review.Request, error) {
	var (
		req        review.Request
		status     string
		proposed   string
		finalLabel *string
	)
	if err := row.Scan(
		&req.ID, &req.Payload.To, &req.Payload.From, &req.Payload.Subject, &req.Payload.Body,
		&proposed, &status, &finalLabel, &req.ReviewerComment,
		&req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.ProposedLabel = review.Label(proposed)
	req.Status = review.Status(status)
	if finalLabel != nil {
		l := review.Label(*finalLabel)
		req.FinalLabel = &l
	}
	return &req, nil
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
