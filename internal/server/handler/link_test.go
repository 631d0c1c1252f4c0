package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/melolive/livelink/internal/links"
	"github.com/melolive/livelink/internal/livechat"
	"github.com/melolive/livelink/internal/server/handler"
	"github.com/melolive/livelink/internal/session"
	"go.uber.org/zap"
)

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubLinkSvc struct {
	link       *links.Link
	linkErr    error
	reclaim    *links.ReclaimRequest
	reclaimErr error
	code       *links.LinkCode

	gotOpenID   string
	gotUsername string
}

func (s *stubLinkSvc) GetLink(_ context.Context, _ string) (*links.Link, error) {
	if s.link != nil {
		return s.link, nil
	}
	return nil, links.ErrNotFound
}

func (s *stubLinkSvc) LinkByUsername(_ context.Context, openID, username string) (*links.Link, error) {
	s.gotOpenID, s.gotUsername = openID, username
	return s.link, s.linkErr
}

func (s *stubLinkSvc) RequestReclaim(_ context.Context, openID, username string) (*links.ReclaimRequest, error) {
	s.gotOpenID, s.gotUsername = openID, username
	if s.reclaimErr != nil {
		return nil, s.reclaimErr
	}
	if s.reclaim != nil {
		return s.reclaim, nil
	}
	return &links.ReclaimRequest{
		OpenID:    openID,
		Username:  livechat.NormalizeUsername(username),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}, nil
}

func (s *stubLinkSvc) NewLinkCode(_ context.Context, openID string) (*links.LinkCode, error) {
	s.gotOpenID = openID
	if s.code != nil {
		return s.code, nil
	}
	return &links.LinkCode{Code: "ABC234", OpenID: openID, ExpiresAt: time.Now().UTC().Add(15 * time.Minute)}, nil
}

type stubSuggestSvc struct {
	items    []livechat.Suggestion
	err      error
	gotQ     string
	gotLimit int
}

func (s *stubSuggestSvc) Suggest(_ context.Context, q string, limit int) ([]livechat.Suggestion, error) {
	s.gotQ, s.gotLimit = q, limit
	return s.items, s.err
}

// ── Test setup ────────────────────────────────────────────────────────────

func setupLinkRouter(t *testing.T, svc *stubLinkSvc, suggest *stubSuggestSvc) (*gin.Engine, *session.Signer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer := session.NewSigner("test-secret", time.Hour)
	h := handler.NewLinkHandler(svc, suggest, zap.NewNop())

	r := gin.New()
	h.Register(r, signer)
	return r, signer
}

func authedRequest(signer *session.Signer, method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signer.Sign("acct-x")})
	return req
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestLink_RequiresSession(t *testing.T) {
	router, _ := setupLinkRouter(t, &stubLinkSvc{}, &stubSuggestSvc{})

	w := postJSON(router, "/api/live/link", `{"username":"alice"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLink_RejectsForgedCookie(t *testing.T) {
	router, _ := setupLinkRouter(t, &stubLinkSvc{}, &stubSuggestSvc{})

	req := httptest.NewRequest(http.MethodPost, "/api/live/link", strings.NewReader(`{"username":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "acct-x.deadbeef"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLink_Success(t *testing.T) {
	svc := &stubLinkSvc{link: &links.Link{
		Provider: "tikfinity", ProviderUserID: "123", OpenID: "acct-x", Username: "alice",
	}}
	router, signer := setupLinkRouter(t, svc, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/live/link", `{"username":"@Alice"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotOpenID != "acct-x" || svc.gotUsername != "@Alice" {
		t.Errorf("service called with (%q, %q)", svc.gotOpenID, svc.gotUsername)
	}
}

func TestLink_NoRecentEvent404(t *testing.T) {
	svc := &stubLinkSvc{linkErr: livechat.ErrNoRecentEvent}
	router, signer := setupLinkRouter(t, svc, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/live/link", `{"username":"ghost"}`))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decode(t, w); resp["hint"] == nil {
		t.Error("404 response missing user-facing hint")
	}
}

func TestLink_Conflict409(t *testing.T) {
	svc := &stubLinkSvc{linkErr: links.ErrAlreadyLinked}
	router, signer := setupLinkRouter(t, svc, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/live/link", `{"username":"alice"}`))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if resp := decode(t, w); resp["hint"] == nil {
		t.Error("409 response missing user-facing hint")
	}
}

func TestLink_EmptyUsername400(t *testing.T) {
	router, signer := setupLinkRouter(t, &stubLinkSvc{}, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/live/link", `{}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReclaimRequest_Success(t *testing.T) {
	svc := &stubLinkSvc{}
	router, signer := setupLinkRouter(t, svc, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/live/reclaim-request", `{"username":"alice"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["expires_at"] == nil {
		t.Error("response missing expires_at")
	}
	if svc.gotOpenID != "acct-x" {
		t.Errorf("service called with open_id %q", svc.gotOpenID)
	}
}

func TestSuggest_PassesQueryAndLimit(t *testing.T) {
	suggest := &stubSuggestSvc{items: []livechat.Suggestion{
		{Username: "alice", Score: 200},
	}}
	router, signer := setupLinkRouter(t, &stubLinkSvc{}, suggest)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodGet, "/api/live/suggest?q=ali&limit=5", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if suggest.gotQ != "ali" || suggest.gotLimit != 5 {
		t.Errorf("suggest called with (%q, %d)", suggest.gotQ, suggest.gotLimit)
	}
	resp := decode(t, w)
	items := resp["items"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %v", items)
	}
}

func TestSuggest_EmptyResultIsArray(t *testing.T) {
	router, signer := setupLinkRouter(t, &stubLinkSvc{}, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodGet, "/api/live/suggest?q=zzz", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("empty result not an array: %s", w.Body.String())
	}
}

func TestNewLinkCode(t *testing.T) {
	router, signer := setupLinkRouter(t, &stubLinkSvc{}, &stubSuggestSvc{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(signer, http.MethodPost, "/api/link-code/new", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["code"] != "ABC234" {
		t.Errorf("code = %v", resp["code"])
	}
}
