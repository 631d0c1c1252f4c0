package accounts

import "time"

// Account is a signed-in TikTok account holder. The TikTok open_id is the
// primary key; no local credentials exist, OAuth is the only way in.
type Account struct {
	OpenID      string    `json:"open_id"      db:"open_id"`
	UnionID     string    `json:"union_id"     db:"union_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   string    `json:"avatar_url"   db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}
