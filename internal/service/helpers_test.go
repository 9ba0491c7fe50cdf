package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/auth/oidctest"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository/sqlite"
	"github.com/sakif/blog-platform/internal/storage"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

// testEnv wires every service against a fresh database file, an
// in-memory image bucket and, when needed, a fake identity provider. Tests
// exercise the real repositories instead of fakes: the uniqueness and
// transaction behaviour under test lives in the database.
type testEnv struct {
	db        *sqlite.DB
	raw       *sql.DB
	bucket    *blob.Bucket
	images    *storage.Images
	tokens    *auth.TokenService
	sessions  *SessionManager
	auth      *AuthService
	posts     *PostService
	comments  *CommentService
	federated *FederatedLogin
	provider  *oidctest.Provider
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// A file rather than ":memory:" so raw can open a second handle on it
	// for assertions the repositories have no query for.
	path := filepath.Join(t.TempDir(), "blog.db")
	db, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	images := storage.NewImages(bucket, 1<<20)
	t.Cleanup(func() { images.Close() })

	provider := oidctest.NewProvider(t)
	oidc := auth.NewOIDCClient(auth.OIDCConfig{
		ClientID:     oidctest.ClientID,
		ClientSecret: oidctest.ClientSecret,
		DiscoveryURL: provider.DiscoveryURL(),
		Timeout:      2 * time.Second,
	}, provider.Server.Client())

	sessions := NewSessionManager(db, tokens, time.Hour, discardLogger)

	return &testEnv{
		db:       db,
		raw:      raw,
		bucket:   bucket,
		images:   images,
		tokens:   tokens,
		sessions: sessions,
		// Cost 4 is bcrypt's minimum and keeps the tests fast.
		auth:      NewAuthService(db, auth.NewPasswordService(4), sessions, discardLogger),
		posts:     NewPostService(db, images, discardLogger),
		comments:  NewCommentService(db, discardLogger),
		federated: NewFederatedLogin(db, oidc, sessions, discardLogger),
		provider:  provider,
	}
}

// register creates a local user through the service.
func (e *testEnv) register(t *testing.T, username string) *model.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw-" + username,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) userCount(t *testing.T) int {
	t.Helper()
	var n int
	err := e.raw.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	require.NoError(t, err)
	return n
}

func (e *testEnv) activeSessions(t *testing.T, userID string) int {
	t.Helper()
	var n int
	err := e.raw.QueryRow(
		`SELECT COUNT(*) FROM sessions
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		userID, time.Now().UTC(),
	).Scan(&n)
	require.NoError(t, err)
	return n
}
