package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog-platform/internal/auth/oidctest"
	"github.com/sakif/blog-platform/internal/config"
	"github.com/sakif/blog-platform/internal/model"
)

// =========================================================================
// END-TO-END HARNESS
// =========================================================================
//
// These tests run the fully wired server behind httptest and talk to it over
// real HTTP, cookies included. Each browser is an http.Client with its own
// cookie jar that does not follow redirects, so tests can assert on them.

const frontendURL = "http://frontend.test"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func testConfig() config.Config {
	return config.Config{
		Port:   8080,
		DBPath: ":memory:",
		Session: config.SessionConfig{
			Secret:     "test-secret-at-least-16-chars!!",
			TTL:        time.Hour,
			BcryptCost: 4,
		},
		Google: config.GoogleConfig{
			Timeout: 2 * time.Second,
		},
		Upload:      config.UploadConfig{MaxBytes: 1 << 20},
		FrontendURL: frontendURL,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) get(path string) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.url(path), nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) sendJSON(method, path string, body any) *http.Response {
	b.t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(b.t, err)
	req, err := http.NewRequest(method, b.url(path), bytes.NewReader(payload))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *browser) url(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return b.base + path
}

// login registers username if needed and logs in through the API.
func (b *browser) login(username string) {
	b.t.Helper()
	b.sendJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": "pw-" + username,
	})
	resp := b.sendJSON(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username, "password": "pw-" + username,
	})
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// =========================================================================
// LOCAL ACCOUNT SCENARIO
// =========================================================================

func TestLocalAccountLifecycle(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)

	alice := map[string]string{"username": "alice", "email": "a@x.com", "password": "pw123"}

	// Register.
	resp := b.sendJSON(http.MethodPost, "/api/auth/register", alice)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[struct {
		Message string `json:"message"`
		User    struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}](t, resp)
	assert.Equal(t, "User created successfully", created.Message)
	assert.Equal(t, "alice", created.User.Username)

	// The same username again.
	resp = b.sendJSON(http.MethodPost, "/api/auth/register", alice)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	dup := decode[errorBody](t, resp)
	assert.Equal(t, "duplicate_username", dup.Error)
	assert.Equal(t, "username", dup.Field)

	// Log in.
	resp = b.sendJSON(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "pw123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[struct {
		Token string `json:"token"`
	}](t, resp)
	require.NotEmpty(t, login.Token)

	// A protected route passes.
	resp = b.get("/api/auth/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]string](t, resp)
	assert.Equal(t, created.User.ID, me["id"])
	assert.Equal(t, "a@x.com", me["email"])
	assert.Equal(t, "alice", me["name"])

	// Log out.
	resp = b.get("/api/auth/logout")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, frontendURL, resp.Header.Get("Location"))

	resp = b.get("/api/auth/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decode[errorBody](t, resp).Error)

	// The session is over server-side too, not just in this browser.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp = newBrowser(t, ts).do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_Failures(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)
	b.login("alice")

	tests := []struct {
		name     string
		body     any
		status   int
		wantCode string
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown user", map[string]string{"username": "ghost", "password": "pw"}, http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest, "validation_error"},
		{"not JSON", "{", http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newBrowser(t, ts).sendJSON(http.MethodPost, "/api/auth/login", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decode[errorBody](t, resp).Error)
			assert.Empty(t, resp.Cookies())
		})
	}
}

func TestRegister_MultibytePasswordRejected(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp := newBrowser(t, ts).sendJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": strings.Repeat("é", 50),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "password", body.Field)
}

func TestLogout_RequiresSession(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := newBrowser(t, ts).get("/api/auth/logout")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// =========================================================================
// FEDERATED LOGIN SCENARIO
// =========================================================================

func federatedConfig(provider *oidctest.Provider) config.Config {
	cfg := testConfig()
	cfg.Google.ClientID = oidctest.ClientID
	cfg.Google.ClientSecret = oidctest.ClientSecret
	cfg.Google.DiscoveryURL = provider.DiscoveryURL()
	return cfg
}

// federatedLogin walks b through the whole redirect dance with code and
// returns the final response from the callback.
func (b *browser) federatedLogin(code string) *http.Response {
	b.t.Helper()

	resp := b.get("/api/auth/google/login")
	require.Equal(b.t, http.StatusFound, resp.StatusCode)

	// The fake provider takes the code to hand out as ?test_code=.
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(b.t, err)
	q := authURL.Query()
	q.Set("test_code", code)
	authURL.RawQuery = q.Encode()

	resp = b.get(authURL.String())
	require.Equal(b.t, http.StatusFound, resp.StatusCode)

	return b.get(resp.Header.Get("Location"))
}

func TestFederatedLogin(t *testing.T) {
	provider := oidctest.NewProvider(t)
	ts := newTestServer(t, federatedConfig(provider))

	bob := model.FederatedProfile{Subject: "g-1", Email: "b@x.com", EmailVerified: true, Name: "Bob"}
	provider.AddCode("code-1", bob)
	provider.AddCode("code-2", bob)

	first := newBrowser(t, ts)
	resp := first.federatedLogin("code-1")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, frontendURL+"?login=success", resp.Header.Get("Location"))

	resp = first.get("/api/auth/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]string](t, resp)
	assert.Equal(t, "Bob", me["name"])
	assert.Equal(t, "b@x.com", me["email"])

	// A second login, from another browser, lands on the same account.
	second := newBrowser(t, ts)
	require.Equal(t, http.StatusSeeOther, second.federatedLogin("code-2").StatusCode)
	resp = second.get("/api/auth/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, me["id"], decode[map[string]string](t, resp)["id"])
}

func TestFederatedLogin_UnverifiedEmail(t *testing.T) {
	provider := oidctest.NewProvider(t)
	ts := newTestServer(t, federatedConfig(provider))
	provider.AddCode("code-1", model.FederatedProfile{Subject: "g-1", Email: "b@x.com"})

	b := newBrowser(t, ts)
	resp := b.federatedLogin("code-1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "email_not_verified", decode[errorBody](t, resp).Error)

	assert.Equal(t, http.StatusUnauthorized, b.get("/api/auth/me").StatusCode)
}

func TestFederatedCallback_Guards(t *testing.T) {
	provider := oidctest.NewProvider(t)
	ts := newTestServer(t, federatedConfig(provider))

	t.Run("denied by user", func(t *testing.T) {
		resp := newBrowser(t, ts).get("/api/auth/google/login/callback?error=access_denied")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, frontendURL+"?login=denied", resp.Header.Get("Location"))
	})

	t.Run("no state cookie", func(t *testing.T) {
		provider.AddCode("forged", model.FederatedProfile{Subject: "g-9", EmailVerified: true})
		resp := newBrowser(t, ts).get("/api/auth/google/login/callback?code=forged&state=whatever")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "state", decode[errorBody](t, resp).Field)
	})

	t.Run("state cookie is single use", func(t *testing.T) {
		provider.AddCode("code-1", model.FederatedProfile{Subject: "g-1", EmailVerified: true})
		b := newBrowser(t, ts)
		resp := b.federatedLogin("code-1")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		// Replaying the same callback: the state cookie is gone.
		provider.AddCode("code-1", model.FederatedProfile{Subject: "g-1", EmailVerified: true})
		replay := b.get(resp.Request.URL.String())
		assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
	})
}

func TestFederatedLogin_NotConfigured(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp := newBrowser(t, ts).get("/api/auth/google/login")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not_configured", decode[errorBody](t, resp).Error)
}

func TestNew_WarnsWhenFederatedLoginDisabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(t *testing.T) config.Config
		wantWarn bool
	}{
		{"no client credentials", func(*testing.T) config.Config { return testConfig() }, true},
		{"configured", func(t *testing.T) config.Config { return federatedConfig(oidctest.NewProvider(t)) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			srv, err := New(tt.cfg(t), slog.New(slog.NewTextHandler(&logs, nil)))
			require.NoError(t, err)
			t.Cleanup(func() { srv.Close() })

			assert.Equal(t, tt.wantWarn, strings.Contains(logs.String(), "federated login is disabled"))
		})
	}
}

func TestFederatedLogin_ProviderDown(t *testing.T) {
	provider := oidctest.NewProvider(t)
	ts := newTestServer(t, federatedConfig(provider))
	provider.Fail("/.well-known/openid-configuration", http.StatusInternalServerError)

	resp := newBrowser(t, ts).get("/api/auth/google/login")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider_unreachable", decode[errorBody](t, resp).Error)
}

// =========================================================================
// BLOG SCENARIO
// =========================================================================

// createPhotoPost uploads a photo post. An empty title leaves the field out
// of the form entirely, the way browsers submit an untouched input.
func (b *browser) createPhotoPost(title string) model.Post {
	b.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if title != "" {
		require.NoError(b.t, mw.WriteField("title", title))
	}
	part, err := mw.CreateFormFile("image", "sunset.png")
	require.NoError(b.t, err)
	_, err = part.Write(pngBytes)
	require.NoError(b.t, err)
	require.NoError(b.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, b.url("/api/blog/posts"), &body)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp := b.do(req)
	require.Equal(b.t, http.StatusCreated, resp.StatusCode)
	return decode[model.Post](b.t, resp)
}

func TestBlogLifecycle(t *testing.T) {
	ts := newTestServer(t, testConfig())

	alice := newBrowser(t, ts)
	alice.login("alice")
	mallory := newBrowser(t, ts)
	mallory.login("mallory")
	anon := newBrowser(t, ts)

	// Text post via JSON, photo post via multipart.
	resp := alice.sendJSON(http.MethodPost, "/api/blog/posts", map[string]string{"title": "Hello", "content": "First post"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	text := decode[model.Post](t, resp)
	assert.Equal(t, model.PostTypeBlog, text.Type)
	assert.True(t, text.IsPublic)

	photo := alice.createPhotoPost("Sunset")
	assert.Equal(t, model.PostTypePhoto, photo.Type)
	require.NotEmpty(t, photo.ImageURL)

	// The image is served back.
	resp = anon.get(photo.ImageURL)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	// Anyone can list and read.
	resp = anon.get("/api/blog/posts?page=1&per_page=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[model.PostPage](t, resp)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, photo.ID, page.Posts[0].ID, "newest first")

	// Comments need a session.
	resp = anon.sendJSON(http.MethodPost, "/api/blog/posts/"+text.ID+"/comments", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = mallory.sendJSON(http.MethodPost, "/api/blog/posts/"+text.ID+"/comments", map[string]string{"content": "Nice!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = anon.get("/api/blog/posts/" + text.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	withComments := decode[model.Post](t, resp)
	require.Len(t, withComments.Comments, 1)
	assert.Equal(t, "Nice!", withComments.Comments[0].Content)

	// Only the owner may change a post.
	resp = mallory.sendJSON(http.MethodPut, "/api/blog/posts/"+text.ID, map[string]string{"title": "pwned"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", decode[errorBody](t, resp).Error)

	resp = alice.sendJSON(http.MethodPut, "/api/blog/posts/"+text.ID, map[string]string{"title": "Hello again"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello again", decode[model.Post](t, resp).Title)

	// Hide it: gone for everyone but alice.
	resp = alice.sendJSON(http.MethodPut, "/api/blog/posts/"+text.ID+"/visibility", map[string]bool{"is_public": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, anon.get("/api/blog/posts/"+text.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, mallory.get("/api/blog/posts/"+text.ID).StatusCode)
	assert.Equal(t, http.StatusOK, alice.get("/api/blog/posts/"+text.ID).StatusCode)

	resp = alice.get("/api/blog/user/posts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[map[string][]model.Post](t, resp)["posts"], 2)

	// Deleting the photo post removes its image too.
	resp = mallory.sendJSON(http.MethodDelete, "/api/blog/posts/"+photo.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = alice.sendJSON(http.MethodDelete, "/api/blog/posts/"+photo.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, anon.get("/api/blog/posts/"+photo.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, anon.get(photo.ImageURL).StatusCode)
}

func TestPhotoPost_WithoutTitle(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := newBrowser(t, ts)
	alice.login("alice")

	post := alice.createPhotoPost("")
	assert.Equal(t, model.PostTypePhoto, post.Type)
	assert.Empty(t, post.Title)

	// A post nobody has commented on still carries an empty comments list.
	resp := newBrowser(t, ts).get("/api/blog/posts/" + post.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fields map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	assert.JSONEq(t, `[]`, string(fields["comments"]))
}

func TestBlog_RequestValidation(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := newBrowser(t, ts)
	alice.login("alice")

	resp := alice.sendJSON(http.MethodPost, "/api/blog/posts", map[string]string{"title": "No body"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = alice.sendJSON(http.MethodPut, "/api/blog/posts/missing/visibility", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "is_public", decode[errorBody](t, resp).Field)

	resp = alice.sendJSON(http.MethodPut, "/api/blog/posts/missing/visibility", map[string]bool{"is_public": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = alice.sendJSON(http.MethodPost, "/api/blog/posts", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxBytes = 64
	ts := newTestServer(t, cfg)
	alice := newBrowser(t, ts)
	alice.login("alice")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Big"))
	part, err := mw.CreateFormFile("image", "big.png")
	require.NoError(t, err)
	_, err = part.Write(append(pngBytes, bytes.Repeat([]byte{1}, 1024)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/blog/posts", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp := alice.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "image", decode[errorBody](t, resp).Field)
}

func TestContact(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)

	resp := b.sendJSON(http.MethodPost, "/api/blog/contact", map[string]string{
		"name": "Carol", "email": "carol@example.com", "message": "Hi there",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.sendJSON(http.MethodPost, "/api/blog/contact", map[string]string{
		"name": "Carol", "email": "not-an-email", "message": "Hi there",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email", decode[errorBody](t, resp).Field)
}

// =========================================================================
// PLUMBING
// =========================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := newBrowser(t, ts).get("/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/blog/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", frontendURL)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp := newBrowser(t, ts).do(req)
	assert.Equal(t, frontendURL, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := newBrowser(t, ts).get("/api/blog/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
