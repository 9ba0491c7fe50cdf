// Package auth provides the building blocks of authentication: password
// hashing, signed session tokens, the session cookie, the HTTP middleware
// that resolves a request's principal, and the OpenID Connect client used for
// federated login.
//
// SESSION TOKENS:
// A session token is an HS256 JWT that names a server-side session:
//
//	{"iss":"blog-platform","sub":"<user id>","jti":"<session id>","exp":...}
//
// The signature proves the server issued the token, but it is NOT the
// source of truth for whether the caller is logged in. Every request still
// loads the session row, so logging out (revoking the row) takes effect
// immediately even though the token itself stays cryptographically valid
// until "exp".
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "blog-platform"

// ErrInvalidToken is returned for any token that fails parsing or
// verification: bad signature, wrong algorithm, wrong issuer, expired,
// or missing claims.
var ErrInvalidToken = errors.New("auth: invalid session token")

// TokenService signs and verifies session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// SessionClaims is what a verified token says about its bearer.
type SessionClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for the given user and session, valid until expiresAt.
func (s *TokenService) Generate(userID, sessionID string, expiresAt time.Time) (string, error) {
	if userID == "" || sessionID == "" {
		return "", errors.New("auth: user ID and session ID are required")
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token.
//
// jwt.WithValidMethods pins HS256, which blocks the "alg: none" and
// RSA/HMAC confusion tricks; WithIssuer rejects tokens minted for another
// app sharing the secret; WithExpirationRequired rejects tokens without exp.
func (s *TokenService) Validate(tokenStr string) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or session id", ErrInvalidToken)
	}

	return &SessionClaims{
		UserID:    c.Subject,
		SessionID: c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
