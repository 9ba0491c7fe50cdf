package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	// SessionCookieName holds the session token.
	SessionCookieName = "session"
	// StateCookieName holds the anti-forgery state of a pending federated
	// login between the redirect to the provider and the callback.
	StateCookieName = "oauth_state"

	stateCookieMaxAge = 10 * time.Minute
)

// CookieJar writes and clears the cookies this package owns. Secure should
// be true whenever the site is served over HTTPS.
type CookieJar struct {
	Secure bool
}

// SetSession stores the session token. HttpOnly keeps it away from page
// scripts; SameSite=Lax still sends it on the top-level redirect back from
// the identity provider.
func (j CookieJar) SetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j CookieJar) ClearSession(w http.ResponseWriter) {
	j.clear(w, SessionCookieName)
}

// SetState stores the state token of a pending handshake for ten minutes.
func (j CookieJar) SetState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearState removes the state cookie. The callback calls it before doing
// anything else, so a handshake can be redeemed at most once.
func (j CookieJar) ClearState(w http.ResponseWriter) {
	j.clear(w, StateCookieName)
}

func (j CookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session token carried by r: the session
// cookie, or failing that an "Authorization: Bearer" header for API clients
// that do not keep cookies. Returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// StateFromRequest returns the state cookie value, or "".
func StateFromRequest(r *http.Request) string {
	if c, err := r.Cookie(StateCookieName); err == nil {
		return c.Value
	}
	return ""
}
