package links

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a link lookup finds no matching row.
var ErrNotFound = errors.New("link not found")

// ErrAlreadyLinked is returned when a write would attach a chat identity that
// already belongs to a different account. The storage-level uniqueness
// constraint on (provider, provider_user_id) is the final arbiter under
// concurrent attempts; this error covers both the advisory pre-check and the
// constraint violation itself.
var ErrAlreadyLinked = errors.New("chat identity already linked to another account")

// LinkRepository provides persistence for account↔chat-identity links
// against PostgreSQL.
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `provider, provider_user_id, open_id, username, nickname, avatar_url, updated_at`

// GetByProviderUserID returns the link holding the given chat identity.
func (r *LinkRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*Link, error) {
	q := `SELECT ` + linkColumns + ` FROM live_links WHERE provider = $1 AND provider_user_id = $2`
	return r.scanOne(ctx, q, provider, providerUserID)
}

// GetByOpenID returns the account's current link, if any.
func (r *LinkRepository) GetByOpenID(ctx context.Context, provider, openID string) (*Link, error) {
	q := `SELECT ` + linkColumns + ` FROM live_links WHERE provider = $1 AND open_id = $2`
	return r.scanOne(ctx, q, provider, openID)
}

// UpsertByOpenID writes the account's link, replacing whatever identity the
// account held before (one link per account). If the target chat identity is
// already held by a different account the unique constraint on
// (provider, provider_user_id) fires and ErrAlreadyLinked is returned.
func (r *LinkRepository) UpsertByOpenID(ctx context.Context, l *Link) error {
	q := `
		INSERT INTO live_links (provider, provider_user_id, open_id, username, nickname, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, open_id) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			username         = EXCLUDED.username,
			nickname         = EXCLUDED.nickname,
			avatar_url       = EXCLUDED.avatar_url,
			updated_at       = EXCLUDED.updated_at`
	_, err := r.db.Exec(ctx, q,
		l.Provider, l.ProviderUserID, l.OpenID, l.Username, l.Nickname, l.AvatarURL, l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// ForceAssign re-points the link for a chat identity at a new account. This
// is the reclaim path — the only write allowed to take an identity away from
// its current holder. Runs in a transaction so the one-link-per-account
// invariant holds: any other identity the claiming account held is dropped
// before the takeover upsert.
func (r *LinkRepository) ForceAssign(ctx context.Context, l *Link) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM live_links WHERE provider = $1 AND open_id = $2 AND provider_user_id <> $3`,
		l.Provider, l.OpenID, l.ProviderUserID,
	); err != nil {
		return fmt.Errorf("drop previous link: %w", err)
	}

	q := `
		INSERT INTO live_links (provider, provider_user_id, open_id, username, nickname, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			open_id    = EXCLUDED.open_id,
			username   = EXCLUDED.username,
			nickname   = EXCLUDED.nickname,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, q,
		l.Provider, l.ProviderUserID, l.OpenID, l.Username, l.Nickname, l.AvatarURL, l.UpdatedAt,
	); err != nil {
		return fmt.Errorf("force assign link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes an account's link.
func (r *LinkRepository) Delete(ctx context.Context, provider, openID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM live_links WHERE provider = $1 AND open_id = $2`, provider, openID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns links for the provider, newest first, for operator tooling.
func (r *LinkRepository) List(ctx context.Context, provider string, limit int) ([]*Link, error) {
	q := `SELECT ` + linkColumns + ` FROM live_links WHERE provider = $1 ORDER BY updated_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, q, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []*Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.Provider, &l.ProviderUserID, &l.OpenID, &l.Username, &l.Nickname, &l.AvatarURL, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (r *LinkRepository) scanOne(ctx context.Context, q string, args ...any) (*Link, error) {
	var l Link
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&l.Provider, &l.ProviderUserID, &l.OpenID, &l.Username, &l.Nickname, &l.AvatarURL, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query link: %w", err)
	}
	return &l, nil
}
