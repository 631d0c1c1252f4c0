package links

import (
	"time"

	"github.com/google/uuid"
)

// Link is the durable association between one authenticated account (open_id)
// and one provider-scoped chat identity. Both sides are unique: an account
// holds at most one link, and a chat identity belongs to at most one account.
type Link struct {
	Provider       string    `json:"provider"         db:"provider"`
	ProviderUserID string    `json:"provider_user_id" db:"provider_user_id"`
	OpenID         string    `json:"open_id"          db:"open_id"`
	Username       string    `json:"username"         db:"username"`
	Nickname       string    `json:"nickname"         db:"nickname"`
	AvatarURL      string    `json:"avatar_url"       db:"avatar_url"`
	UpdatedAt      time.Time `json:"updated_at"       db:"updated_at"`
}

// ReclaimRequest pre-authorizes a forced link takeover: "the next reclaim
// event I post under this username, before expires_at, re-points the link for
// that chat identity to me". Consumed once, then deleted.
type ReclaimRequest struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	OpenID    string    `json:"open_id"    db:"open_id"`
	Provider  string    `json:"provider"   db:"provider"`
	Username  string    `json:"username"   db:"username"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LinkCode is the legacy single-use pairing code flow, kept for bridge
// deployments that predate username-based linking.
type LinkCode struct {
	Code      string     `json:"code"       db:"code"`
	OpenID    string     `json:"open_id"    db:"open_id"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at"    db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
