package livechat

import (
	"strings"
	"time"
)

// Event types recorded in the live event log.
const (
	EventJoin    = "join"
	EventLike    = "like"
	EventChat    = "chat"
	EventReclaim = "reclaim"
)

// Event is a single observation that a chat identity was active on the
// livestream. Rows are append-only: the log is the durable source of truth
// for the username → provider_user_id mapping over time.
type Event struct {
	ID             int64     `json:"id"               db:"id"`
	Provider       string    `json:"provider"         db:"provider"`
	ProviderUserID string    `json:"provider_user_id" db:"provider_user_id"`
	Username       string    `json:"username"         db:"username"`
	Nickname       string    `json:"nickname"         db:"nickname"`
	AvatarURL      string    `json:"avatar_url"       db:"avatar_url"`
	EventType      string    `json:"event_type"       db:"event_type"`
	Message        string    `json:"message"          db:"message"`
	CreatedAt      time.Time `json:"created_at"       db:"created_at"`
}

// NormalizeUsername canonicalizes a chat username: trims whitespace, strips
// any leading "@" characters, and lowercases. Idempotent.
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "@") {
		s = strings.TrimPrefix(s, "@")
	}
	return strings.ToLower(s)
}
