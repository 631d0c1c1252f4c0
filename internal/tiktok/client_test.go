package tiktok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestAuthCodeURLUsesClientKey(t *testing.T) {
	c := NewClient(Config{
		ClientKey:   "key-123",
		RedirectURL: "https://livelink.test/auth/tiktok/callback",
	})

	raw := c.AuthCodeURL("state-abc")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("client_key") != "key-123" {
		t.Errorf("client_key = %q", q.Get("client_key"))
	}
	if q.Get("state") != "state-abc" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("redirect_uri") != "https://livelink.test/auth/tiktok/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("sandbox") != "" {
		t.Error("sandbox param present without sandbox mode")
	}
}

func TestAuthCodeURLSandbox(t *testing.T) {
	c := NewClient(Config{ClientKey: "k", Sandbox: true})
	if !strings.Contains(c.AuthCodeURL("s"), "sandbox=true") {
		t.Error("sandbox mode missing from authorize URL")
	}
}

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("client_key"); got != "key-123" {
			t.Errorf("client_key = %q", got)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "the-code" {
			t.Errorf("code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","open_id":"open-9","expires_in":86400}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClientKey: "key-123", ClientSecret: "sec"})
	c.tokenEndpoint = srv.URL

	tok, err := c.Exchange(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "at-1" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
	if got, _ := tok.Extra("open_id").(string); got != "open-9" {
		t.Errorf("open_id extra = %q", got)
	}
}

func TestExchangeErrorBody(t *testing.T) {
	// TikTok reports errors inside a 200 response.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClientKey: "k"})
	c.tokenEndpoint = srv.URL

	if _, err := c.Exchange(context.Background(), "stale"); err == nil {
		t.Fatal("expected error from error body")
	} else if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("err = %v", err)
	}
}

func TestFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"user":{"open_id":"open-9","union_id":"union-3","display_name":"Alice","avatar_url":"https://cdn/a.png"}},"error":{"code":"ok"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClientKey: "k"})
	c.userInfoEndpoint = srv.URL

	info, err := c.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("FetchUserInfo: %v", err)
	}
	if info.OpenID != "open-9" || info.DisplayName != "Alice" {
		t.Errorf("info = %+v", info)
	}
}

func TestFetchUserInfoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{},"error":{"code":"access_token_invalid","message":"bad token"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClientKey: "k"})
	c.userInfoEndpoint = srv.URL

	if _, err := c.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
