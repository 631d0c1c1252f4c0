package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// stateClaims are the JWT claims for the OAuth state parameter. The state is
// a short-lived signed token rather than a stored nonce, so the callback can
// verify it statelessly.
type stateClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
	Type     string `json:"type"`
}

// StateIssuer issues and verifies OAuth state JWTs, signed with the session
// secret.
type StateIssuer struct {
	secret []byte
	issuer string
}

// NewStateIssuer creates a StateIssuer. issuerURL matches the service's base
// URL and becomes the "iss" claim.
func NewStateIssuer(secret, issuerURL string) *StateIssuer {
	return &StateIssuer{secret: []byte(secret), issuer: issuerURL}
}

// Issue creates a state token valid for ten minutes.
func (s *StateIssuer) Issue(provider string) (string, error) {
	now := time.Now().UTC()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   "oauth-state",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
			ID:        uuid.New().String(),
		},
		Provider: provider,
		Type:     "oauth-state",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// Verify validates a state token and returns the embedded provider.
func (s *StateIssuer) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&stateClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid oauth state: %w", err)
	}
	claims, ok := token.Claims.(*stateClaims)
	if !ok || claims.Type != "oauth-state" {
		return "", fmt.Errorf("not an oauth state token")
	}
	return claims.Provider, nil
}
