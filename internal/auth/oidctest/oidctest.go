// Package oidctest runs a fake OpenID Connect provider for tests. It serves a
// discovery document, an authorization endpoint that immediately redirects
// back with a code, a token endpoint that checks client credentials, and a
// userinfo endpoint that returns whatever profile was registered for the code.
package oidctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/sakif/blog-platform/internal/model"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
)

// Provider is a fake identity provider. Register a profile under a code with
// AddCode, then drive the client through the handshake with that code.
type Provider struct {
	Server *httptest.Server

	mu        sync.Mutex
	codes     map[string]model.FederatedProfile // unredeemed authorization codes
	tokens    map[string]model.FederatedProfile // issued access tokens
	discovery int
	failing   map[string]int // endpoint path -> status to return
}

// NewProvider starts a provider and stops it when the test ends.
func NewProvider(t *testing.T) *Provider {
	t.Helper()

	p := &Provider{
		codes:   make(map[string]model.FederatedProfile),
		tokens:  make(map[string]model.FederatedProfile),
		failing: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /authorize", p.handleAuthorize)
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("GET /userinfo", p.handleUserinfo)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// DiscoveryURL is the provider's well-known configuration URL.
func (p *Provider) DiscoveryURL() string {
	return p.Server.URL + "/.well-known/openid-configuration"
}

// AddCode registers an authorization code that redeems to profile exactly once.
func (p *Provider) AddCode(code string, profile model.FederatedProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = profile
}

// Fail makes the endpoint at path ("/token", "/userinfo", ...) answer status.
func (p *Provider) Fail(path string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[path] = status
}

// DiscoveryHits counts discovery document fetches.
func (p *Provider) DiscoveryHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovery
}

func (p *Provider) failed(w http.ResponseWriter, r *http.Request) bool {
	p.mu.Lock()
	status, ok := p.failing[r.URL.Path]
	p.mu.Unlock()
	if ok {
		http.Error(w, `{"error":"server_error"}`, status)
	}
	return ok
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.discovery++
	p.mu.Unlock()
	if p.failed(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"issuer":                 p.Server.URL,
		"authorization_endpoint": p.Server.URL + "/authorize",
		"token_endpoint":         p.Server.URL + "/token",
		"userinfo_endpoint":      p.Server.URL + "/userinfo",
	})
}

// handleAuthorize skips the consent screen and sends the browser straight
// back with the code passed as ?test_code=.
func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("client_id") != ClientID {
		http.Error(w, "bad authorization request", http.StatusBadRequest)
		return
	}

	back := redirect.Query()
	back.Set("code", q.Get("test_code"))
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r) {
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	code := r.PostForm.Get("code")

	p.mu.Lock()
	profile, found := p.codes[code]
	delete(p.codes, code) // codes are single use
	token := fmt.Sprintf("access-%s", code)
	if found {
		p.tokens[token] = profile
	}
	p.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (p *Provider) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r) {
		return
	}

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	profile, ok := p.tokens[auth[len(prefix):]]
	p.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
