package livechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRecentEvent is returned when no event has ever been recorded for the
// requested username.
var ErrNoRecentEvent = errors.New("no recent event for username")

// EventRepository provides append and query access to the live event log
// against PostgreSQL.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends one event row. Sets ID and CreatedAt on the event.
// The log is append-only: there are no update or delete paths.
func (r *EventRepository) Insert(ctx context.Context, e *Event) error {
	e.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO live_events (provider, provider_user_id, username, nickname, avatar_url, event_type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRow(ctx, q,
		e.Provider, e.ProviderUserID, e.Username, e.Nickname,
		e.AvatarURL, e.EventType, e.Message, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// LatestByUsername returns the most recent event with the given username for
// the provider. Matching is case-insensitive; the username should already be
// normalized by the caller. Returns ErrNoRecentEvent when nothing matches.
func (r *EventRepository) LatestByUsername(ctx context.Context, provider, username string) (*Event, error) {
	q := `
		SELECT id, provider, provider_user_id, username, nickname, avatar_url, event_type, message, created_at
		FROM live_events
		WHERE provider = $1 AND username ILIKE $2 AND provider_user_id <> ''
		ORDER BY created_at DESC
		LIMIT 1`
	e, err := r.scanOne(ctx, q, provider, escapeLikePattern(username))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Recent returns up to limit recent events for the provider, newest first.
// When substr is non-empty, only events whose username contains it
// (case-insensitive) are returned; this is a coarse SQL prefilter for the
// suggestion ranker, which re-scores in memory.
func (r *EventRepository) Recent(ctx context.Context, provider, substr string, limit int) ([]*Event, error) {
	q := `
		SELECT id, provider, provider_user_id, username, nickname, avatar_url, event_type, message, created_at
		FROM live_events
		WHERE provider = $1 AND username <> ''`
	args := []any{provider}
	if substr != "" {
		q += ` AND username ILIKE $2`
		args = append(args, "%"+escapeLikePattern(substr)+"%")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.Provider, &e.ProviderUserID, &e.Username, &e.Nickname,
			&e.AvatarURL, &e.EventType, &e.Message, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// escapeLikePattern escapes ILIKE metacharacters so a username containing
// "_" or "%" matches literally. ILIKE is used only for its case folding.
func escapeLikePattern(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *EventRepository) scanOne(ctx context.Context, q string, args ...any) (*Event, error) {
	var e Event
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&e.ID, &e.Provider, &e.ProviderUserID, &e.Username, &e.Nickname,
		&e.AvatarURL, &e.EventType, &e.Message, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRecentEvent
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return &e, nil
}
