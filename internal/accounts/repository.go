package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an account lookup finds no matching record.
var ErrNotFound = errors.New("account not found")

// AccountRepository provides persistence for accounts against PostgreSQL.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert inserts the account or refreshes its profile fields on every login.
// Sets CreatedAt/UpdatedAt on the passed account.
func (r *AccountRepository) Upsert(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}

	q := `
		INSERT INTO accounts (open_id, union_id, display_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (open_id) DO UPDATE SET
			union_id     = EXCLUDED.union_id,
			display_name = EXCLUDED.display_name,
			avatar_url   = EXCLUDED.avatar_url,
			updated_at   = EXCLUDED.updated_at`
	if _, err := r.db.Exec(ctx, q,
		a.OpenID, a.UnionID, a.DisplayName, a.AvatarURL, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// GetByOpenID retrieves an account by its TikTok open_id.
func (r *AccountRepository) GetByOpenID(ctx context.Context, openID string) (*Account, error) {
	q := `
		SELECT open_id, union_id, display_name, avatar_url, created_at, updated_at
		FROM accounts WHERE open_id = $1`
	var a Account
	err := r.db.QueryRow(ctx, q, openID).Scan(
		&a.OpenID, &a.UnionID, &a.DisplayName, &a.AvatarURL, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}
