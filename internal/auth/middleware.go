package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// principal stored under it.
type contextKey string

const principalKey contextKey = "principal"

// SessionResolver turns a session token into the caller it belongs to.
// It must return an error wrapping apperror.ErrUnauthenticated whenever the
// token does not name an active session; any other error is treated as an
// internal failure. service.SessionManager implements it.
type SessionResolver interface {
	Current(ctx context.Context, token string) (*model.Principal, error)
}

// RequireAuth rejects requests without an active session with 401 before the
// handler runs. Otherwise the resolved principal is put in the request
// context, where handlers read it with PrincipalFromContext.
//
// The principal is resolved exactly once per request, here at the boundary.
// Handlers pass principal.UserID() into services explicitly; nothing below
// the handler layer looks at the context for identity.
func RequireAuth(sessions SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := sessions.Current(r.Context(), TokenFromRequest(r))
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthenticated) {
					writeAuthError(w, http.StatusUnauthorized,
						`{"error":"unauthorized","message":"valid authentication required"}`)
					return
				}
				logger.Error("resolving session failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError,
					`{"error":"internal_error","message":"An internal error occurred"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// OptionalAuth resolves the principal when the request carries a usable
// session and lets every request through regardless. Public routes use it
// to show owners their own private posts.
func OptionalAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := TokenFromRequest(r); token != "" {
				if principal, err := sessions.Current(r.Context(), token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or (nil, false) for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*model.Principal)
	return p, ok && p != nil && p.User != nil
}

// UserIDFromContext is shorthand for the principal's user ID; "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID()
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
