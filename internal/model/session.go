package model

import "time"

// Session is the server-side record behind a session token. The token
// carries only the session ID and user ID; whether the session is still
// usable is always decided here.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the session can authenticate a request at t.
func (s *Session) ActiveAt(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}

// Principal is the authenticated caller of a request, resolved once at the
// HTTP boundary and passed explicitly into the services from there.
type Principal struct {
	User      *User
	SessionID string
}

// UserID is shorthand for p.User.ID.
func (p *Principal) UserID() string {
	return p.User.ID
}

// FederatedProfile is what the identity provider's userinfo endpoint tells
// us about the person completing a federated login.
type FederatedProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
