package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// CookieName is the session cookie set after a successful OAuth login.
const CookieName = "ml_session"

// ErrInvalidSession is returned for malformed or tampered session cookies.
var ErrInvalidSession = errors.New("invalid session")

// Signer signs and verifies session cookie values. The value format is
// "<open_id>.<hex hmac-sha256>" and is a compatibility contract with existing
// deployed cookies, so the shape cannot change.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a Signer. ttl is the cookie lifetime handed to the HTTP
// layer (default 30 days); the signature itself does not expire.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured cookie lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign returns the cookie value for the given open_id.
func (s *Signer) Sign(openID string) string {
	return openID + "." + s.signature(openID)
}

// Verify parses a cookie value and returns the embedded open_id. The open_id
// may itself contain dots, so the value splits on the last separator.
func (s *Signer) Verify(value string) (string, error) {
	i := strings.LastIndex(value, ".")
	if i <= 0 || i == len(value)-1 {
		return "", ErrInvalidSession
	}
	openID, sig := value[:i], value[i+1:]
	want := s.signature(openID)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		return "", ErrInvalidSession
	}
	return openID, nil
}

func (s *Signer) signature(openID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(openID))
	return hex.EncodeToString(mac.Sum(nil))
}
