package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/melolive/livelink/internal/links"
	"github.com/melolive/livelink/internal/livechat"
	"github.com/melolive/livelink/internal/sounds"
	"go.uber.org/zap"
)

// eventStore is the event persistence interface expected by BridgeHandler,
// satisfied by *livechat.EventRepository.
type eventStore interface {
	Insert(ctx context.Context, e *livechat.Event) error
}

// bridgeLinkSvc is the slice of *links.LinkService the bridge endpoints use.
type bridgeLinkSvc interface {
	ConsumeReclaim(ctx context.Context, e *livechat.Event) (*links.ReclaimOutcome, error)
	ResolveLinkCode(ctx context.Context, code string) (string, error)
}

// bridgeLinkStore resolves chat identities to links, satisfied by
// *links.LinkRepository.
type bridgeLinkStore interface {
	GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*links.Link, error)
}

// selectionStore reads per-account sound picks, satisfied by
// *sounds.SelectionRepository.
type selectionStore interface {
	Get(ctx context.Context, openID string) (string, error)
}

// BridgeHandler serves the webhook surface called by the chat bridge process.
// All routes require the pre-shared bridge key.
type BridgeHandler struct {
	events        eventStore
	linkSvc       bridgeLinkSvc
	links         bridgeLinkStore
	selections    selectionStore
	catalog       *sounds.Catalog
	apiKey        string
	provider      string
	reclaimPrefix string
	logger        *zap.Logger
}

// NewBridgeHandler creates a BridgeHandler.
func NewBridgeHandler(
	events eventStore,
	linkSvc bridgeLinkSvc,
	linkStore bridgeLinkStore,
	selections selectionStore,
	catalog *sounds.Catalog,
	apiKey, provider, reclaimPrefix string,
	logger *zap.Logger,
) *BridgeHandler {
	return &BridgeHandler{
		events:        events,
		linkSvc:       linkSvc,
		links:         linkStore,
		selections:    selections,
		catalog:       catalog,
		apiKey:        apiKey,
		provider:      provider,
		reclaimPrefix: reclaimPrefix,
		logger:        logger,
	}
}

// Register mounts the bridge routes on the router.
func (h *BridgeHandler) Register(r *gin.Engine) {
	bridge := r.Group("/api/bridge", h.requireBridgeKey)
	{
		bridge.POST("/event", h.Event)
		bridge.POST("/claim", h.Claim)
		bridge.POST("/join", h.Join)
		bridge.GET("/selection", h.Selection)
	}
	r.GET("/api/link-code/resolve", h.requireBridgeKey, h.ResolveLinkCode)
}

// requireBridgeKey authenticates the bridge via ?k=, ?key=, or X-API-Key.
// The three spellings exist because different bridge versions send different
// ones.
func (h *BridgeHandler) requireBridgeKey(c *gin.Context) {
	got := c.Query("k")
	if got == "" {
		got = c.Query("key")
	}
	if got == "" {
		got = c.GetHeader("X-API-Key")
	}
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// bridgePayload reads the request body as either JSON or form data into a
// loosely typed map. The bridge is not a strict client; it posts whatever its
// upstream gives it.
func bridgePayload(c *gin.Context) (map[string]any, error) {
	if strings.Contains(c.ContentType(), "json") {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}
	return payload, nil
}

// Event handles POST /api/bridge/event — ingests one live event and, for
// reclaim-triggered messages, runs the takeover path. Reclaim problems never
// fail the caller; the bridge fires for every chat message and only needs to
// know the event was stored.
func (h *BridgeHandler) Event(c *gin.Context) {
	payload, err := bridgePayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	e := livechat.EventFromPayload(payload, h.provider, h.reclaimPrefix, livechat.EventChat)
	if e.ProviderUserID == "" && e.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity fields"})
		return
	}

	if err := h.events.Insert(c.Request.Context(), e); err != nil {
		h.logger.Error("insert event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	RecordEventIngested(e.EventType)

	resp := gin.H{"ok": true, "id": e.ID}
	if e.EventType == livechat.EventReclaim {
		out, err := h.linkSvc.ConsumeReclaim(c.Request.Context(), e)
		switch {
		case err != nil:
			h.logger.Warn("reclaim consume", zap.Error(err))
		case out.Consumed:
			RecordReclaimConsumed()
			resp["reclaimed"] = true
			resp["open_id"] = out.OpenID
		default:
			resp["ignored"] = true
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Claim handles POST /api/bridge/claim — the dedicated reclaim webhook. The
// event is stored with type "reclaim" regardless of its message text.
func (h *BridgeHandler) Claim(c *gin.Context) {
	payload, err := bridgePayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	e := livechat.EventFromPayload(payload, h.provider, h.reclaimPrefix, livechat.EventReclaim)
	e.EventType = livechat.EventReclaim
	if e.ProviderUserID == "" || e.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity fields"})
		return
	}

	if err := h.events.Insert(c.Request.Context(), e); err != nil {
		h.logger.Error("insert claim event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	RecordEventIngested(e.EventType)

	out, err := h.linkSvc.ConsumeReclaim(c.Request.Context(), e)
	if err != nil {
		h.logger.Error("reclaim consume", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	if !out.Consumed {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}
	RecordReclaimConsumed()
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"reclaimed": true,
		"open_id":   out.OpenID,
		"username":  out.Username,
	})
}

// Join handles POST /api/bridge/join — returns the sound to play when a
// viewer joins. Linked viewers get their account's pick; everyone else gets a
// stable default derived from their chat identity.
func (h *BridgeHandler) Join(c *gin.Context) {
	payload, err := bridgePayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	userID := livechat.ExtractField(payload, "provider_user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}

	linked := false
	var sound *sounds.Sound
	l, err := h.links.GetByProviderUserID(c.Request.Context(), h.provider, userID)
	if err == nil {
		linked = true
		sound = h.selectedSound(c.Request.Context(), l.OpenID)
	} else if !errors.Is(err, links.ErrNotFound) {
		h.logger.Error("lookup link for join", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	if sound == nil {
		sound = h.catalog.DefaultFor(userID)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "linked": linked, "sound": sound})
}

// Selection handles GET /api/bridge/selection?open_id= — returns the
// account's selected sound, or null when nothing is picked.
func (h *BridgeHandler) Selection(c *gin.Context) {
	openID := c.Query("open_id")
	if openID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing open_id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sound": h.selectedSound(c.Request.Context(), openID)})
}

// selectedSound returns the account's catalog pick, or nil when the account
// never picked or the pick no longer exists in the catalog.
func (h *BridgeHandler) selectedSound(ctx context.Context, openID string) *sounds.Sound {
	soundID, err := h.selections.Get(ctx, openID)
	if err != nil {
		if !errors.Is(err, sounds.ErrNoSelection) {
			h.logger.Warn("read sound selection", zap.Error(err))
		}
		return nil
	}
	s, err := h.catalog.Get(soundID)
	if err != nil {
		return nil
	}
	return s
}

// ResolveLinkCode handles GET /api/link-code/resolve?code= — consumes a
// legacy pairing code on behalf of the bridge.
func (h *BridgeHandler) ResolveLinkCode(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Query("code")))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	openID, err := h.linkSvc.ResolveLinkCode(c.Request.Context(), code)
	switch {
	case errors.Is(err, links.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown code"})
	case errors.Is(err, links.ErrCodeUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "code already used"})
	case errors.Is(err, links.ErrCodeExpired):
		c.JSON(http.StatusGone, gin.H{"error": "code expired"})
	case err != nil:
		h.logger.Error("resolve link code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "open_id": openID})
	}
}
