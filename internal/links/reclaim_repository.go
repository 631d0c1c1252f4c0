package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReclaimRepository provides persistence for reclaim pre-authorizations.
// Expiry is enforced on read: every consultation filters expires_at > now,
// so stale rows are harmless until the sweep removes them.
type ReclaimRepository struct {
	db *pgxpool.Pool
}

// NewReclaimRepository creates a new ReclaimRepository.
func NewReclaimRepository(db *pgxpool.Pool) *ReclaimRepository {
	return &ReclaimRepository{db: db}
}

// Create inserts a new reclaim request. Sets ID and CreatedAt.
func (r *ReclaimRepository) Create(ctx context.Context, req *ReclaimRequest) error {
	req.ID = uuid.New()
	req.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO reclaim_requests (id, open_id, provider, username, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, q,
		req.ID, req.OpenID, req.Provider, req.Username, req.ExpiresAt, req.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert reclaim request: %w", err)
	}
	return nil
}

// LatestActive returns the most recent non-expired request for the username,
// or ErrNotFound when no pending request exists.
func (r *ReclaimRepository) LatestActive(ctx context.Context, provider, username string, now time.Time) (*ReclaimRequest, error) {
	q := `
		SELECT id, open_id, provider, username, expires_at, created_at
		FROM reclaim_requests
		WHERE provider = $1 AND username = $2 AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`
	var req ReclaimRequest
	err := r.db.QueryRow(ctx, q, provider, username, now).Scan(
		&req.ID, &req.OpenID, &req.Provider, &req.Username, &req.ExpiresAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query reclaim request: %w", err)
	}
	return &req, nil
}

// Delete removes a consumed request (one-shot semantics).
func (r *ReclaimRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM reclaim_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reclaim request: %w", err)
	}
	return nil
}

// DeleteExpired removes requests past their expiry. Storage hygiene only —
// correctness never depends on it.
func (r *ReclaimRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reclaim_requests WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired reclaim requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
