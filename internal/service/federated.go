package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// IdentityProvider is the OpenID Connect client the federated login drives.
// *auth.OIDCClient implements it.
type IdentityProvider interface {
	Configured() bool
	AuthCodeURL(ctx context.Context, redirectURI, state string) (string, error)
	Exchange(ctx context.Context, redirectURI, code string) (*model.FederatedProfile, error)
}

// FederatedLogin coordinates login through an external identity provider.
//
// THE HANDSHAKE:
//
//	Begin     → authorization URL + state token (caller stores the state)
//	  ... the browser visits the provider and comes back ...
//	Complete  → state check → code exchange → profile → user → session
//
// Any failure aborts the whole attempt; nothing is kept between the two
// calls except the state the caller carried.
type FederatedLogin struct {
	db       repository.Database
	provider IdentityProvider
	sessions *SessionManager
	logger   *slog.Logger
}

func NewFederatedLogin(db repository.Database, provider IdentityProvider, sessions *SessionManager, logger *slog.Logger) *FederatedLogin {
	return &FederatedLogin{
		db:       db,
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

// Handshake is a started federated login.
type Handshake struct {
	AuthURL string
	State   string
}

// Begin starts a federated login whose callback is redirectURI.
func (f *FederatedLogin) Begin(ctx context.Context, redirectURI string) (*Handshake, error) {
	if !f.provider.Configured() {
		return nil, apperror.Provider(apperror.ErrNotConfigured, "federated login is not configured")
	}

	state := uuid.NewString()
	authURL, err := f.provider.AuthCodeURL(ctx, redirectURI, state)
	if err != nil {
		f.logger.Error("starting federated login failed", slog.String("error", err.Error()))
		return nil, err
	}

	return &Handshake{AuthURL: authURL, State: state}, nil
}

// Callback is what the provider's redirect brought back, plus the state the
// caller stored when the handshake began.
type Callback struct {
	RedirectURI   string
	Code          string
	State         string
	ExpectedState string
}

// Complete finishes a federated login and establishes a session.
func (f *FederatedLogin) Complete(ctx context.Context, cb Callback) (*LoginResult, error) {
	if !f.provider.Configured() {
		return nil, apperror.Provider(apperror.ErrNotConfigured, "federated login is not configured")
	}

	if cb.ExpectedState == "" ||
		subtle.ConstantTimeCompare([]byte(cb.State), []byte(cb.ExpectedState)) != 1 {
		return nil, apperror.ValidationFailed("state", "invalid_state: login attempt does not match this browser")
	}
	if cb.Code == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is missing")
	}

	profile, err := f.provider.Exchange(ctx, cb.RedirectURI, cb.Code)
	if err != nil {
		f.logger.Error("federated login failed", slog.String("error", err.Error()))
		return nil, err
	}

	if !profile.EmailVerified {
		f.logger.Info("federated login rejected: email not verified",
			slog.String("subject", profile.Subject),
		)
		return nil, apperror.EmailNotVerified(profile.Email)
	}

	user, err := f.resolveUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	session, token, err := f.sessions.Establish(ctx, user)
	if err != nil {
		return nil, err
	}

	f.logger.Info("user authenticated via federated login",
		slog.String("userID", user.ID),
		slog.String("subject", profile.Subject),
	)
	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// resolveUser finds or creates the user for a verified profile.
//
// LOOKUP ORDER:
//  1. A user already linked to this subject.
//  2. A user with the same email, e.g. someone who registered locally first.
//     The subject is linked to that account. If it is already linked to a
//     different subject the login is refused as a conflict.
//  3. Otherwise a new federated-only user.
//
// Two first-time callbacks for the same subject can both reach step 3. The
// UNIQUE google_id constraint lets only one insert win; the loser gets a
// conflict and retries as a lookup, so both end up with the same user.
func (f *FederatedLogin) resolveUser(ctx context.Context, profile *model.FederatedProfile) (*model.User, error) {
	subject := profile.Subject

	user, err := f.db.Users().GetByGoogleID(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/federated: looking up subject %s: %w", subject, err)
	}

	email := strings.TrimSpace(profile.Email)
	var event string

	err = f.db.WithinTx(ctx, func(tx repository.Store) error {
		if email != "" {
			existing, err := tx.Users().GetByEmail(ctx, email)
			switch {
			case err == nil:
				if existing.GoogleID != nil && *existing.GoogleID != subject {
					return apperror.Conflict("user", email)
				}
				if err := tx.Users().LinkGoogleID(ctx, existing.ID, subject); err != nil {
					return err
				}
				existing.GoogleID = &subject
				user = existing
				event = "federated identity linked to existing user"
				return nil
			case !errors.Is(err, apperror.ErrNotFound):
				return err
			}
		}

		created := &model.User{
			Email:          model.StringPtr(email),
			GoogleID:       &subject,
			Name:           model.StringPtr(profile.Name),
			ProfilePicture: model.StringPtr(profile.Picture),
		}
		if err := tx.Users().Create(ctx, created); err != nil {
			return err
		}
		user = created
		event = "federated user created"
		return nil
	})

	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Lost the race to a concurrent login for the same subject.
			if winner, lookupErr := f.db.Users().GetByGoogleID(ctx, subject); lookupErr == nil {
				return winner, nil
			}
			return nil, err
		}
		return nil, fmt.Errorf("service/federated: resolving user for subject %s: %w", subject, err)
	}

	f.logger.Info(event, slog.String("userID", user.ID))
	return user, nil
}
