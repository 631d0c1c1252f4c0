package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/melolive/livelink/internal/accounts"
	"github.com/melolive/livelink/internal/links"
	"github.com/melolive/livelink/internal/session"
	"github.com/melolive/livelink/internal/sounds"
	"go.uber.org/zap"
)

// selectionWriter persists sound picks, satisfied by *sounds.SelectionRepository.
type selectionWriter interface {
	Set(ctx context.Context, openID, soundID string) error
	Get(ctx context.Context, openID string) (string, error)
}

// meLinkSvc is the link lookup used by /api/me.
type meLinkSvc interface {
	GetLink(ctx context.Context, openID string) (*links.Link, error)
}

// SoundsHandler serves the catalog and per-account selection endpoints.
type SoundsHandler struct {
	catalog    *sounds.Catalog
	selections selectionWriter
	accounts   accountStore
	links      meLinkSvc
	logger     *zap.Logger
}

// NewSoundsHandler creates a SoundsHandler.
func NewSoundsHandler(
	catalog *sounds.Catalog,
	selections selectionWriter,
	accountStore accountStore,
	linkSvc meLinkSvc,
	logger *zap.Logger,
) *SoundsHandler {
	return &SoundsHandler{
		catalog:    catalog,
		selections: selections,
		accounts:   accountStore,
		links:      linkSvc,
		logger:     logger,
	}
}

// Register mounts the sound routes on the router.
func (h *SoundsHandler) Register(r *gin.Engine, signer *session.Signer) {
	r.GET("/api/sounds", h.List)
	api := r.Group("/api", RequireSession(signer))
	{
		api.POST("/sounds/select", h.Select)
		api.GET("/me", h.Me)
	}
}

// List handles GET /api/sounds — returns the whole catalog.
func (h *SoundsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sounds": h.catalog.All()})
}

type selectRequest struct {
	SoundID string `json:"sound_id" form:"sound_id"`
}

// Select handles POST /api/sounds/select — records the caller's sound pick.
func (h *SoundsHandler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBind(&req); err != nil || req.SoundID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sound_id is required"})
		return
	}

	s, err := h.catalog.Get(req.SoundID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sound_id"})
		return
	}

	if err := h.selections.Set(c.Request.Context(), OpenIDFromCtx(c), s.ID); err != nil {
		h.logger.Error("set sound selection", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sound": s})
}

// Me handles GET /api/me — returns the caller's account, link, and sound pick.
func (h *SoundsHandler) Me(c *gin.Context) {
	openID := OpenIDFromCtx(c)

	acct, err := h.accounts.GetByOpenID(c.Request.Context(), openID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			// Valid cookie for an account row that no longer exists.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("get account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}

	var link *links.Link
	if l, err := h.links.GetLink(c.Request.Context(), openID); err == nil {
		link = l
	} else if !errors.Is(err, links.ErrNotFound) {
		h.logger.Error("get link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}

	var sound *sounds.Sound
	if soundID, err := h.selections.Get(c.Request.Context(), openID); err == nil {
		if s, cerr := h.catalog.Get(soundID); cerr == nil {
			sound = s
		}
	} else if !errors.Is(err, sounds.ErrNoSelection) {
		h.logger.Error("get sound selection", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": acct,
		"link":    link,
		"sound":   sound,
	})
}
