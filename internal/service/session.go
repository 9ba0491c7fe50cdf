package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// SessionManager establishes, resolves and ends sessions.
//
// A session is two things at once:
//   - a row in the sessions table, which decides whether it is still usable
//   - a signed token naming that row, handed to the client as a cookie
//
// The token alone never authenticates anyone. Current always loads the row,
// so End takes effect on the very next request.
type SessionManager struct {
	store  repository.Store
	tokens *auth.TokenService
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a SessionManager issuing sessions valid for ttl.
func NewSessionManager(store repository.Store, tokens *auth.TokenService, ttl time.Duration, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		tokens: tokens,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// compile-time check that the middleware can resolve sessions through us
var _ auth.SessionResolver = (*SessionManager)(nil)

// Establish creates a session for user and returns it with its token.
func (m *SessionManager) Establish(ctx context.Context, user *model.User) (*model.Session, string, error) {
	if user == nil || user.ID == "" {
		return nil, "", fmt.Errorf("service/session: user must not be empty")
	}

	issued := m.now().UTC()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: issued,
		ExpiresAt: issued.Add(m.ttl),
	}

	token, err := m.tokens.Generate(session.UserID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("service/session: %w", err)
	}

	if err := m.store.Sessions().Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("service/session: creating session for user %s: %w", user.ID, err)
	}

	m.logger.Info("session established",
		slog.String("userID", user.ID),
		slog.String("sessionID", session.ID),
	)

	return session, token, nil
}

// Current resolves token to the caller it belongs to.
//
// Every reason a token can fail to authenticate (missing, forged, expired,
// revoked, pointing at a deleted user) comes back as ErrUnauthenticated.
// Only genuine store failures come back as something else.
func (m *SessionManager) Current(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, apperror.Unauthenticated("no session token")
	}

	claims, err := m.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid session token")
	}

	session, err := m.store.Sessions().GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("session does not exist")
		}
		return nil, fmt.Errorf("service/session: loading session: %w", err)
	}

	if session.UserID != claims.UserID {
		return nil, apperror.Unauthenticated("session does not match token")
	}
	if !session.ActiveAt(m.now()) {
		return nil, apperror.Unauthenticated("session has ended")
	}

	user, err := m.store.Users().GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("session user no longer exists")
		}
		return nil, fmt.Errorf("service/session: loading user: %w", err)
	}

	return &model.Principal{User: user, SessionID: session.ID}, nil
}

// End revokes the session named by token. It is idempotent: a missing,
// invalid or already revoked token is not an error.
func (m *SessionManager) End(ctx context.Context, token string) error {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		return nil
	}

	if err := m.store.Sessions().Revoke(ctx, claims.SessionID, m.now().UTC()); err != nil {
		return fmt.Errorf("service/session: revoking session %s: %w", claims.SessionID, err)
	}

	m.logger.Info("session ended",
		slog.String("userID", claims.UserID),
		slog.String("sessionID", claims.SessionID),
	)
	return nil
}

// Sweep deletes sessions that expired before now and returns how many.
// Revoked but unexpired sessions are kept until they expire too.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.Sessions().DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service/session: deleting expired sessions: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("session sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if n > 0 {
				m.logger.Info("expired sessions deleted", slog.Int64("count", n))
			}
		}
	}
}
