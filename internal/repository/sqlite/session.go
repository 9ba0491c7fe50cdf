package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// SessionDB implements repository.SessionRepository on the sessions table.
type SessionDB struct {
	q querier
}

var _ repository.SessionRepository = (*SessionDB)(nil)

// Create inserts a session. The caller picks the ID (a random UUID) and the
// expiry; CreatedAt is filled in here when left zero.
func (s *SessionDB) Create(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now()
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, revoked_at)
		 VALUES (?, ?, ?, ?, NULL)`,
		session.ID,
		session.UserID,
		session.CreatedAt.UTC(),
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.Conflict("session", session.ID)
		}
		return fmt.Errorf("sqlite: inserting session for user %s: %w", session.UserID, err)
	}
	return nil
}

func (s *SessionDB) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var (
		session model.Session
		revoked sql.NullTime
	)

	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(
		&session.ID,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&revoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	if revoked.Valid {
		at := revoked.Time
		session.RevokedAt = &at
	}
	return &session, nil
}

// Revoke stamps revoked_at on an active session. The WHERE clause skips rows
// that are already revoked, so the first revocation time is kept and calling
// Revoke twice is harmless.
func (s *SessionDB) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking session %s: %w", id, err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before the given time and
// returns how many rows went away.
func (s *SessionDB) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

