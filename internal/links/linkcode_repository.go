package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCodeUsed is returned when a link code has already been resolved once.
var ErrCodeUsed = errors.New("link code already used")

// ErrCodeExpired is returned when a link code is past its expiry.
var ErrCodeExpired = errors.New("link code expired")

// LinkCodeRepository provides persistence for the legacy single-use pairing
// codes.
type LinkCodeRepository struct {
	db *pgxpool.Pool
}

// NewLinkCodeRepository creates a new LinkCodeRepository.
func NewLinkCodeRepository(db *pgxpool.Pool) *LinkCodeRepository {
	return &LinkCodeRepository{db: db}
}

// Create inserts a new link code. Sets CreatedAt.
func (r *LinkCodeRepository) Create(ctx context.Context, c *LinkCode) error {
	c.CreatedAt = time.Now().UTC()
	q := `INSERT INTO link_codes (code, open_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, q, c.Code, c.OpenID, c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("insert link code: %w", err)
	}
	return nil
}

// Resolve consumes a code exactly once: marks it used inside a transaction
// and returns the owning open_id. Unknown → ErrNotFound, already resolved →
// ErrCodeUsed, past expiry → ErrCodeExpired.
func (r *LinkCodeRepository) Resolve(ctx context.Context, code string, now time.Time) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var openID string
	var expiresAt time.Time
	var usedAt *time.Time
	q := `SELECT open_id, expires_at, used_at FROM link_codes WHERE code = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, q, code).Scan(&openID, &expiresAt, &usedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query link code: %w", err)
	}

	if usedAt != nil {
		return "", ErrCodeUsed
	}
	if !expiresAt.After(now) {
		return "", ErrCodeExpired
	}

	if _, err := tx.Exec(ctx, `UPDATE link_codes SET used_at = $2 WHERE code = $1`, code, now); err != nil {
		return "", fmt.Errorf("mark code used: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return openID, nil
}
