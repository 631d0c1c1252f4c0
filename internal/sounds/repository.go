package sounds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoSelection is returned when an account has not picked a sound.
var ErrNoSelection = errors.New("no sound selected")

// SelectionRepository persists per-account sound picks.
type SelectionRepository struct {
	db *pgxpool.Pool
}

// NewSelectionRepository creates a new SelectionRepository.
func NewSelectionRepository(db *pgxpool.Pool) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Set records the account's selected sound, replacing any previous pick.
func (r *SelectionRepository) Set(ctx context.Context, openID, soundID string) error {
	q := `
		INSERT INTO sound_selections (open_id, sound_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (open_id) DO UPDATE SET
			sound_id   = EXCLUDED.sound_id,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.Exec(ctx, q, openID, soundID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set sound selection: %w", err)
	}
	return nil
}

// Get returns the account's selected sound id, or ErrNoSelection.
func (r *SelectionRepository) Get(ctx context.Context, openID string) (string, error) {
	var soundID string
	err := r.db.QueryRow(ctx,
		`SELECT sound_id FROM sound_selections WHERE open_id = $1`, openID,
	).Scan(&soundID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoSelection
		}
		return "", fmt.Errorf("query sound selection: %w", err)
	}
	return soundID, nil
}
