package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/service"
)

// AuthHandler serves the /api/auth endpoints: local registration and
// login, the federated login handshake, logout and the current user.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create a local account
//   - HandleLogin          → verify credentials, establish a session cookie
//   - HandleGoogleLogin    → redirect the browser to the identity provider
//   - HandleGoogleCallback → finish the handshake, establish a session cookie
//   - HandleLogout         → end the session, clear the cookie
//   - HandleMe             → return the caller's profile
//
// Handlers only translate HTTP to service calls and back. Every decision
// about who may log in lives in the service layer.
type AuthHandler struct {
	auth      *service.AuthService
	federated *service.FederatedLogin
	sessions  *service.SessionManager
	cookies   auth.CookieJar

	frontendURL string
	// callbackURL overrides the redirect URI registered with the provider.
	// Empty derives it from the login request.
	callbackURL string

	logger *slog.Logger
}

// AuthHandlerConfig carries the settings AuthHandler needs from config.
type AuthHandlerConfig struct {
	FrontendURL  string
	CallbackURL  string
	SecureCookie bool
}

func NewAuthHandler(
	authSvc *service.AuthService,
	federated *service.FederatedLogin,
	sessions *service.SessionManager,
	cfg AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:        authSvc,
		federated:   federated,
		sessions:    sessions,
		cookies:     auth.CookieJar{Secure: cfg.SecureCookie},
		frontendURL: cfg.FrontendURL,
		callbackURL: cfg.CallbackURL,
		logger:      logger,
	}
}

// UserResponse is the caller-facing view of a user.
type UserResponse struct {
	ID             string `json:"id"`
	Username       string `json:"username,omitempty"`
	Email          string `json:"email,omitempty"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

func userResponse(u *model.User) UserResponse {
	resp := UserResponse{ID: u.ID, Name: u.DisplayName()}
	if u.Username != nil {
		resp.Username = *u.Username
	}
	if u.Email != nil {
		resp.Email = *u.Email
	}
	if u.ProfilePicture != nil {
		resp.ProfilePicture = *u.ProfilePicture
	}
	return resp
}

type registerResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	// Token is the session token for clients that send it as a Bearer
	// header instead of keeping the cookie.
	Token string `json:"token"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /api/auth/register
// Body: {"username": "...", "email": "...", "password": "..."}
//
// Registration does not log the user in; the client follows up with
// /login.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "User created successfully",
		User:    userResponse(user),
	})
}

// HandleLogin verifies a username and password and starts a session.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetSession(w, result.Token, result.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    userResponse(result.User),
		Token:   result.Token,
	})
}

// HandleGoogleLogin starts a federated login.
//
// HTTP: GET /api/auth/google/login
//
// CSRF PROTECTION VIA STATE:
// The service generates a random state value which we keep in a short-lived
// HttpOnly cookie. The provider echoes it back on the callback, and the
// callback refuses to continue unless the two match. This proves the
// callback belongs to a login this browser started.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	hs, err := h.federated.Begin(r.Context(), h.redirectURI(r, r.URL.Path+"/callback"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetState(w, hs.State)
	http.Redirect(w, r, hs.AuthURL, http.StatusFound)
}

// HandleGoogleCallback completes a federated login.
//
// HTTP: GET /api/auth/google/login/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Clear the state cookie (a handshake is redeemable once)
//  2. If the provider reports an error (user denied), go back to the frontend
//  3. Let the service check state, exchange the code and resolve the user
//  4. Set the session cookie and redirect to the frontend
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: The state cookie is single-use ---
	expected := auth.StateFromRequest(r)
	h.cookies.ClearState(w)

	query := r.URL.Query()

	// --- Step 2: Provider-side refusal ---
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("federated login denied", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendRedirect("denied"), http.StatusSeeOther)
		return
	}

	// --- Step 3: Verify and resolve ---
	result, err := h.federated.Complete(r.Context(), service.Callback{
		RedirectURI:   h.redirectURI(r, r.URL.Path),
		Code:          query.Get("code"),
		State:         query.Get("state"),
		ExpectedState: expected,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// --- Step 4: Session cookie, back to the app ---
	h.cookies.SetSession(w, result.Token, result.Session.ExpiresAt)
	http.Redirect(w, r, h.frontendRedirect("success"), http.StatusSeeOther)
}

// HandleLogout ends the caller's session.
//
// HTTP: GET /api/auth/logout
// Auth: Required
//
// Unlike a stateless JWT logout, ending the session server-side means the
// token stops working everywhere, not just in this browser.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), auth.TokenFromRequest(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.ClearSession(w)
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// HandleMe returns the authenticated caller's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (RequireAuth resolves the principal)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("valid authentication required"))
		return
	}

	writeJSON(w, http.StatusOK, userResponse(principal.User))
}

// redirectURI is the callback URL registered with the provider: the
// configured one, or path on the host the request came in on.
func (h *AuthHandler) redirectURI(r *http.Request, path string) string {
	if h.callbackURL != "" {
		return h.callbackURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		scheme = proto
	}
	return (&url.URL{Scheme: scheme, Host: r.Host, Path: path}).String()
}

// frontendRedirect is the frontend URL with ?login=outcome appended.
func (h *AuthHandler) frontendRedirect(outcome string) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return h.frontendURL
	}
	q := u.Query()
	q.Set("login", outcome)
	u.RawQuery = q.Encode()
	return u.String()
}
