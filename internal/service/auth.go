// Package service — authentication business logic.
//
// AuthService is the credential verifier: it registers local accounts and
// checks username/password pairs. Logging in hands the verified user to the
// SessionManager:
//
//	AuthHandler (HTTP) → AuthService (credential rules) → UserRepository (DB)
//	                                 ↘ SessionManager (session row + token)
//
// Federated login lives next door in federated.go and ends in the same
// SessionManager.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
	"github.com/sakif/blog-platform/internal/validation"
)

// AuthService handles local registration and login.
//
// DEPENDENCIES (injected via NewAuthService):
//   - db         repository.Database      → user records, transactions
//   - passwords  *auth.PasswordService    → bcrypt hashing
//   - sessions   *SessionManager          → issues the session on login
//   - logger     *slog.Logger             → structured logging
type AuthService struct {
	db        repository.Database
	passwords *auth.PasswordService
	sessions  *SessionManager
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	db repository.Database,
	passwords *auth.PasswordService,
	sessions *SessionManager,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		db:        db,
		passwords: passwords,
		sessions:  sessions,
		logger:    logger,
	}
}

// RegisterInput is a local sign-up request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginResult bundles everything the handler needs to answer a successful
// login: the user for the body, the session token for the cookie.
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Register creates a local account.
//
// ORDER OF CHECKS:
//  1. Input validation, before anything touches the database.
//  2. Hashing, outside the transaction: bcrypt is slow on purpose and the
//     database has a single connection.
//  3. Duplicate checks and the insert, together in one transaction. The
//     UNIQUE constraints back the checks up, and a violation maps to the
//     same DuplicateUsername / DuplicateEmail errors.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	// max=72 above counts runes; bcrypt's limit is in bytes.
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     &in.Username,
		Email:        &in.Email,
		PasswordHash: &hash,
	}

	err = s.db.WithinTx(ctx, func(tx repository.Store) error {
		if err := ensureAbsent(tx.Users().GetByUsername(ctx, in.Username)); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.DuplicateUsername(in.Username)
			}
			return err
		}
		if err := ensureAbsent(tx.Users().GetByEmail(ctx, in.Email)); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.DuplicateEmail(in.Email)
			}
			return err
		}
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: registering %s: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", in.Username),
	)
	return user, nil
}

// ensureAbsent turns a lookup result into "nil if nothing was found".
func ensureAbsent(_ *model.User, err error) error {
	switch {
	case err == nil:
		return apperror.ErrConflict
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	default:
		return err
	}
}

// Verify checks a username/password pair. It never creates a session.
//
// Returns ErrNotFound when no user has that username and
// ErrInvalidCredentials when the password is wrong or the account has no
// password at all (federated-only).
func (s *AuthService) Verify(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.db.Users().GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, apperror.InvalidCredentials()
	}
	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}

	return user, nil
}

// Login verifies the credentials and establishes a session.
//
// An unknown username is reported exactly like a wrong password, so the
// response does not reveal which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, err
	}

	session, token, err := s.sessions.Establish(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &LoginResult{User: user, Session: session, Token: token}, nil
}
