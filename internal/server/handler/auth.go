package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/melolive/livelink/internal/accounts"
	"github.com/melolive/livelink/internal/session"
	"github.com/melolive/livelink/internal/tiktok"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const ctxOpenIDKey = "open_id"

// accountStore is the account persistence interface expected by AuthHandler,
// satisfied by *accounts.AccountRepository.
type accountStore interface {
	Upsert(ctx context.Context, a *accounts.Account) error
	GetByOpenID(ctx context.Context, openID string) (*accounts.Account, error)
}

// oauthClient is the provider flow expected by AuthHandler, satisfied by
// *tiktok.Client.
type oauthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, tok *oauth2.Token) (*tiktok.UserInfo, error)
}

// AuthHandler handles the OAuth login flow and session lifecycle.
type AuthHandler struct {
	accounts      accountStore
	oauth         oauthClient
	signer        *session.Signer
	states        *session.StateIssuer
	frontendURL   string
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	accountStore accountStore,
	oauth oauthClient,
	signer *session.Signer,
	states *session.StateIssuer,
	frontendURL string,
	secureCookies bool,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts:      accountStore,
		oauth:         oauth,
		signer:        signer,
		states:        states,
		frontendURL:   frontendURL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// Register mounts the auth routes on the router.
func (h *AuthHandler) Register(r *gin.Engine) {
	r.GET("/auth/tiktok", h.Redirect)
	r.GET("/auth/tiktok/callback", h.Callback)
	r.POST("/api/logout", h.Logout)
}

// Redirect handles GET /auth/tiktok — sends the browser to the provider's
// authorize page with a signed state parameter.
func (h *AuthHandler) Redirect(c *gin.Context) {
	state, err := h.states.Issue("tiktok")
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// Callback handles GET /auth/tiktok/callback — verifies state, exchanges the
// code, upserts the account, sets the session cookie, and sends the browser
// back to the frontend.
func (h *AuthHandler) Callback(c *gin.Context) {
	provider, err := h.states.Verify(c.Query("state"))
	if err != nil || provider != "tiktok" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	tok, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	info, err := h.oauth.FetchUserInfo(c.Request.Context(), tok)
	if err != nil {
		h.logger.Error("fetch oauth user info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user info from provider"})
		return
	}

	acct := &accounts.Account{
		OpenID:      info.OpenID,
		UnionID:     info.UnionID,
		DisplayName: info.DisplayName,
		AvatarURL:   info.AvatarURL,
	}
	if err := h.accounts.Upsert(c.Request.Context(), acct); err != nil {
		h.logger.Error("upsert account after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process OAuth login"})
		return
	}

	h.setSessionCookie(c, h.signer.Sign(info.OpenID), int(h.signer.TTL().Seconds()))
	h.logger.Info("login", zap.String("open_id", info.OpenID))
	c.Redirect(http.StatusFound, h.frontendURL)
}

// Logout handles POST /api/logout — clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, value, maxAge, "/", "", h.secureCookies, true)
}

// RequireSession returns a middleware that verifies the session cookie and
// stores the caller's open_id on the context. Unauthenticated requests get a
// bare 401 with no detail.
func RequireSession(signer *session.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(session.CookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		openID, err := signer.Verify(value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ctxOpenIDKey, openID)
		c.Next()
	}
}

// OpenIDFromCtx returns the authenticated open_id set by RequireSession.
func OpenIDFromCtx(c *gin.Context) string {
	return c.GetString(ctxOpenIDKey)
}
