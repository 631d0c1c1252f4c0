package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/melolive/livelink/internal/links"
	"github.com/melolive/livelink/internal/livechat"
	"github.com/melolive/livelink/internal/session"
	"go.uber.org/zap"
)

// linkSvc is the slice of *links.LinkService the account-facing endpoints use.
type linkSvc interface {
	GetLink(ctx context.Context, openID string) (*links.Link, error)
	LinkByUsername(ctx context.Context, openID, rawUsername string) (*links.Link, error)
	RequestReclaim(ctx context.Context, openID, rawUsername string) (*links.ReclaimRequest, error)
	NewLinkCode(ctx context.Context, openID string) (*links.LinkCode, error)
}

// suggestSvc ranks username suggestions, satisfied by *livechat.Suggester.
type suggestSvc interface {
	Suggest(ctx context.Context, q string, limit int) ([]livechat.Suggestion, error)
}

// LinkHandler serves the session-authenticated linking endpoints.
type LinkHandler struct {
	svc     linkSvc
	suggest suggestSvc
	logger  *zap.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(svc linkSvc, suggest suggestSvc, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{svc: svc, suggest: suggest, logger: logger}
}

// Register mounts the linking routes on the router.
func (h *LinkHandler) Register(r *gin.Engine, signer *session.Signer) {
	api := r.Group("/api", RequireSession(signer))
	{
		api.POST("/live/link", h.Link)
		api.POST("/live/reclaim-request", h.ReclaimRequest)
		api.GET("/live/suggest", h.Suggest)
		api.POST("/link-code/new", h.NewLinkCode)
	}
}

type usernameRequest struct {
	Username string `json:"username" form:"username"`
}

// Link handles POST /api/live/link — links the caller's account to the chat
// identity behind a username.
func (h *LinkHandler) Link(c *gin.Context) {
	var req usernameRequest
	if err := c.ShouldBind(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	l, err := h.svc.LinkByUsername(c.Request.Context(), OpenIDFromCtx(c), req.Username)
	switch {
	case errors.Is(err, livechat.ErrNoRecentEvent):
		RecordLinkAttempt("no_event")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no recent event for that username",
			"hint":  "ask the viewer to send a chat message while the stream is live, then try again",
		})
	case errors.Is(err, links.ErrAlreadyLinked):
		RecordLinkAttempt("conflict")
		c.JSON(http.StatusConflict, gin.H{
			"error": "that viewer is already linked to another account",
			"hint":  "use the reclaim flow if this username belongs to you",
		})
	case err != nil:
		RecordLinkAttempt("error")
		h.logger.Error("link by username", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
	default:
		RecordLinkAttempt("linked")
		c.JSON(http.StatusOK, gin.H{"ok": true, "link": l})
	}
}

// ReclaimRequest handles POST /api/live/reclaim-request — pre-authorizes a
// forced takeover of a username's chat identity.
func (h *LinkHandler) ReclaimRequest(c *gin.Context) {
	var req usernameRequest
	if err := c.ShouldBind(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	r, err := h.svc.RequestReclaim(c.Request.Context(), OpenIDFromCtx(c), req.Username)
	if err != nil {
		h.logger.Error("request reclaim", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"username":   r.Username,
		"expires_at": r.ExpiresAt,
	})
}

// Suggest handles GET /api/live/suggest?q=&limit= — ranks recently seen chat
// usernames against a partial query.
func (h *LinkHandler) Suggest(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	items, err := h.suggest.Suggest(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.logger.Error("suggest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	if items == nil {
		items = []livechat.Suggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// NewLinkCode handles POST /api/link-code/new — issues a legacy single-use
// pairing code for the caller's account.
func (h *LinkHandler) NewLinkCode(c *gin.Context) {
	code, err := h.svc.NewLinkCode(c.Request.Context(), OpenIDFromCtx(c))
	if err != nil {
		h.logger.Error("new link code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"code":       code.Code,
		"expires_at": code.ExpiresAt,
	})
}
