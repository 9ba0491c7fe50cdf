package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// UserDB implements repository.UserRepository on the users table.
type UserDB struct {
	q querier
}

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, password_hash, google_id, name, profile_picture, created_at, updated_at`

// Create inserts a new user, assigning its ID and timestamps.
//
// UNIQUENESS:
// username, email and google_id are UNIQUE columns. A violation comes back
// from SQLite as a constraint error naming the column, and is translated to
// the matching domain error:
//
//	users.username  → apperror.ErrDuplicateUsername
//	users.email     → apperror.ErrDuplicateEmail
//	users.google_id → apperror.ErrConflict
//
// The federated login path relies on the last one to detect that a
// concurrent request created the same user first.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if !user.HasCredential() {
		return apperror.ValidationFailed("password", "a user needs a password or a federated identity")
	}

	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := u.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.GoogleID,
		user.Name,
		user.ProfilePicture,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if column, ok := uniqueViolation(err); ok {
			switch column {
			case "users.username":
				return apperror.DuplicateUsername(deref(user.Username))
			case "users.email":
				return apperror.DuplicateEmail(deref(user.Email))
			default:
				return apperror.Conflict("user", deref(user.GoogleID))
			}
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getBy(ctx, "id", id)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getBy(ctx, "username", username)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getBy(ctx, "email", email)
}

func (u *UserDB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return u.getBy(ctx, "google_id", googleID)
}

// getBy looks a user up by one of the unique columns. column is always a
// constant from this file, never caller input.
func (u *UserDB) getBy(ctx context.Context, column, value string) (*model.User, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return user, nil
}

// LinkGoogleID attaches a federated identity to an existing account. This is
// the only mutation a user row ever receives after creation.
func (u *UserDB) LinkGoogleID(ctx context.Context, userID, googleID string) error {
	result, err := u.q.ExecContext(ctx,
		`UPDATE users SET google_id = ?, updated_at = ? WHERE id = ?`,
		googleID, now(), userID,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", googleID)
		}
		return fmt.Errorf("sqlite: linking google id to user %s: %w", userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		user                            model.User
		username, email, hash, googleID sql.NullString
		name, picture                   sql.NullString
	)
	err := s.Scan(
		&user.ID,
		&username,
		&email,
		&hash,
		&googleID,
		&name,
		&picture,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Username = nullable(username)
	user.Email = nullable(email)
	user.PasswordHash = nullable(hash)
	user.GoogleID = nullable(googleID)
	user.Name = nullable(name)
	user.ProfilePicture = nullable(picture)
	return &user, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
