package links

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/melolive/livelink/internal/livechat"
	"go.uber.org/zap"
)

// Code alphabet avoids easily-confused characters (no I/O/0/1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// eventResolver is the event-log lookup consumed by LinkService.
type eventResolver interface {
	LatestByUsername(ctx context.Context, provider, username string) (*livechat.Event, error)
}

// linkRepo is the link storage interface consumed by LinkService.
type linkRepo interface {
	GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*Link, error)
	GetByOpenID(ctx context.Context, provider, openID string) (*Link, error)
	UpsertByOpenID(ctx context.Context, l *Link) error
	ForceAssign(ctx context.Context, l *Link) error
}

// reclaimRepo is the reclaim-request storage interface consumed by LinkService.
type reclaimRepo interface {
	Create(ctx context.Context, req *ReclaimRequest) error
	LatestActive(ctx context.Context, provider, username string, now time.Time) (*ReclaimRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// codeRepo is the legacy link-code storage interface consumed by LinkService.
type codeRepo interface {
	Create(ctx context.Context, c *LinkCode) error
	Resolve(ctx context.Context, code string, now time.Time) (string, error)
}

// LinkService implements the identity-linking business logic: username-based
// linking with the anti-hijack guard, the reclaim takeover flow, and the
// legacy code flow.
type LinkService struct {
	events     eventResolver
	links      linkRepo
	reclaims   reclaimRepo
	codes      codeRepo
	provider   string
	reclaimTTL time.Duration
	codeTTL    time.Duration
	logger     *zap.Logger
}

// NewLinkService creates a LinkService. reclaimTTL defaults to 10 minutes.
func NewLinkService(events eventResolver, links linkRepo, reclaims reclaimRepo, codes codeRepo, provider string, reclaimTTL time.Duration, logger *zap.Logger) *LinkService {
	if reclaimTTL == 0 {
		reclaimTTL = 10 * time.Minute
	}
	return &LinkService{
		events:     events,
		links:      links,
		reclaims:   reclaims,
		codes:      codes,
		provider:   provider,
		reclaimTTL: reclaimTTL,
		codeTTL:    15 * time.Minute,
		logger:     logger,
	}
}

// GetLink returns the account's current link, or ErrNotFound.
func (s *LinkService) GetLink(ctx context.Context, openID string) (*Link, error) {
	return s.links.GetByOpenID(ctx, s.provider, openID)
}

// LinkByUsername resolves a chat username to its most recent identity and
// links it to the account:
//
//  1. Resolve the username against the event log — the most recent event wins.
//  2. Advisory pre-check: identity held by a different account → ErrAlreadyLinked.
//  3. Upsert keyed on the account, so re-linking replaces the account's
//     previous identity. Under a race the storage uniqueness constraint on
//     (provider, provider_user_id) is the final arbiter and also surfaces as
//     ErrAlreadyLinked.
//
// Denormalized nickname/avatar are refreshed from the resolved event even
// when the account re-links the identity it already holds.
func (s *LinkService) LinkByUsername(ctx context.Context, openID, rawUsername string) (*Link, error) {
	username := livechat.NormalizeUsername(rawUsername)
	if username == "" {
		return nil, fmt.Errorf("empty username")
	}

	ev, err := s.events.LatestByUsername(ctx, s.provider, username)
	if err != nil {
		return nil, err
	}

	existing, err := s.links.GetByProviderUserID(ctx, s.provider, ev.ProviderUserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing link: %w", err)
	}
	if existing != nil && existing.OpenID != openID {
		return nil, ErrAlreadyLinked
	}

	l := &Link{
		Provider:       s.provider,
		ProviderUserID: ev.ProviderUserID,
		OpenID:         openID,
		Username:       username,
		Nickname:       ev.Nickname,
		AvatarURL:      ev.AvatarURL,
		UpdatedAt:      ev.CreatedAt,
	}
	if err := s.links.UpsertByOpenID(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("link established",
		zap.String("open_id", openID),
		zap.String("username", username),
		zap.String("provider_user_id", ev.ProviderUserID),
	)
	return l, nil
}

// RequestReclaim records a pre-authorization for a forced takeover of the
// given username's identity, valid for the configured TTL.
func (s *LinkService) RequestReclaim(ctx context.Context, openID, rawUsername string) (*ReclaimRequest, error) {
	username := livechat.NormalizeUsername(rawUsername)
	if username == "" {
		return nil, fmt.Errorf("empty username")
	}

	req := &ReclaimRequest{
		OpenID:    openID,
		Provider:  s.provider,
		Username:  username,
		ExpiresAt: time.Now().UTC().Add(s.reclaimTTL),
	}
	if err := s.reclaims.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("reclaim requested",
		zap.String("open_id", openID),
		zap.String("username", username),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return req, nil
}

// ReclaimOutcome reports what happened to a reclaim-triggered event.
type ReclaimOutcome struct {
	Consumed       bool
	OpenID         string
	ProviderUserID string
	Username       string
}

// ConsumeReclaim handles a reclaim-triggered bridge event. When an active
// request exists for the event's username, the link for the event's chat
// identity is forcibly re-pointed at the requester — the one path allowed to
// take an identity away from another account — and the request is deleted.
// No pending request is a successful ignored outcome, never an error: the
// bridge fires for every chat message and must not learn link state.
//
// The link write and the request delete are separate calls; a crash between
// them leaves the request pending, and re-consuming it just re-applies the
// same link write.
func (s *LinkService) ConsumeReclaim(ctx context.Context, e *livechat.Event) (*ReclaimOutcome, error) {
	username := livechat.NormalizeUsername(e.Username)
	if username == "" || e.ProviderUserID == "" {
		return &ReclaimOutcome{Consumed: false}, nil
	}

	req, err := s.reclaims.LatestActive(ctx, s.provider, username, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ReclaimOutcome{Consumed: false}, nil
		}
		return nil, err
	}

	l := &Link{
		Provider:       s.provider,
		ProviderUserID: e.ProviderUserID,
		OpenID:         req.OpenID,
		Username:       username,
		Nickname:       e.Nickname,
		AvatarURL:      e.AvatarURL,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.links.ForceAssign(ctx, l); err != nil {
		return nil, err
	}

	if err := s.reclaims.Delete(ctx, req.ID); err != nil {
		// Link already transferred; the stale request re-applies the same
		// write if re-consumed before expiry.
		s.logger.Warn("delete consumed reclaim request", zap.Error(err))
	}

	s.logger.Info("reclaim consumed",
		zap.String("open_id", req.OpenID),
		zap.String("username", username),
		zap.String("provider_user_id", e.ProviderUserID),
	)
	return &ReclaimOutcome{
		Consumed:       true,
		OpenID:         req.OpenID,
		ProviderUserID: e.ProviderUserID,
		Username:       username,
	}, nil
}

// SweepExpiredReclaims deletes expired reclaim requests.
func (s *LinkService) SweepExpiredReclaims(ctx context.Context) (int64, error) {
	return s.reclaims.DeleteExpired(ctx)
}

// RunSweeper deletes expired reclaim requests every interval until ctx is
// canceled. Runs in its own goroutine for the process lifetime; shutdown is
// signaled through ctx so every background loop observes it, not just one.
func (s *LinkService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if n, err := s.SweepExpiredReclaims(sweepCtx); err != nil {
				s.logger.Warn("reclaim sweep error", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("swept expired reclaim requests", zap.Int64("deleted", n))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// NewLinkCode issues a legacy single-use pairing code for the account.
func (s *LinkService) NewLinkCode(ctx context.Context, openID string) (*LinkCode, error) {
	code, err := generateCode(6)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	c := &LinkCode{
		Code:      code,
		OpenID:    openID,
		ExpiresAt: time.Now().UTC().Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveLinkCode consumes a pairing code and returns the owning open_id.
func (s *LinkService) ResolveLinkCode(ctx context.Context, code string) (string, error) {
	return s.codes.Resolve(ctx, code, time.Now().UTC())
}

// generateCode returns n random characters from the unambiguous alphabet.
func generateCode(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
