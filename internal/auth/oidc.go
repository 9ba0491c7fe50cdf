package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
)

// GoogleDiscoveryURL is the default OpenID Connect discovery document.
const GoogleDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// OIDCConfig is everything needed to talk to the identity provider. It is
// plain configuration: OIDCClient builds a fresh oauth2.Config from it for
// every handshake step, so nothing about the provider is cached in memory.
type OIDCConfig struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	Timeout      time.Duration // per provider call
}

// Configured reports whether client credentials are present.
func (c OIDCConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ProviderEndpoints is the part of the discovery document we use.
type ProviderEndpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// OIDCClient drives the OpenID Connect Authorization Code flow.
//
// AUTHORIZATION CODE FLOW:
//  1. Redirect the browser to the provider's authorization endpoint with our
//     client id, the requested scopes, a callback URI and a state token.
//  2. The user approves (or denies) on the provider's site.
//  3. The provider redirects to the callback URI with a short-lived code.
//  4. We exchange the code for an access token (server-to-server, client
//     id/secret in HTTP basic auth).
//  5. We call the userinfo endpoint with the access token.
//
// The endpoints of steps 1, 4 and 5 come from the discovery document, which
// is fetched live at the start of step 1 and again at step 4.
//
// Every method returns errors wrapping one of the apperror provider
// sentinels, so callers can tell which step failed.
type OIDCClient struct {
	cfg        OIDCConfig
	httpClient *http.Client
}

// NewOIDCClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewOIDCClient(cfg OIDCConfig, httpClient *http.Client) *OIDCClient {
	if cfg.DiscoveryURL == "" {
		cfg.DiscoveryURL = GoogleDiscoveryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OIDCClient{cfg: cfg, httpClient: httpClient}
}

// Configured reports whether federated login can be attempted at all.
func (c *OIDCClient) Configured() bool {
	return c.cfg.Configured()
}

func (c *OIDCClient) requireConfigured() error {
	if !c.cfg.Configured() {
		return apperror.Provider(apperror.ErrNotConfigured, "federated login is not configured")
	}
	return nil
}

// Discover fetches the provider's discovery document.
func (c *OIDCClient) Discover(ctx context.Context) (*ProviderEndpoints, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	unreachable := func(cause error) error {
		return fmt.Errorf("%w: %w",
			apperror.Provider(apperror.ErrProviderUnreachable, "identity provider is unreachable"), cause)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DiscoveryURL, nil)
	if err != nil {
		return nil, unreachable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unreachable(fmt.Errorf("discovery returned status %d", resp.StatusCode))
	}

	var ep ProviderEndpoints
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, unreachable(fmt.Errorf("decoding discovery document: %w", err))
	}
	if ep.AuthorizationEndpoint == "" || ep.TokenEndpoint == "" || ep.UserinfoEndpoint == "" {
		return nil, unreachable(errors.New("discovery document is missing an endpoint"))
	}
	return &ep, nil
}

// oauthConfig is built per call from configuration and freshly discovered
// endpoints.
func (c *OIDCClient) oauthConfig(ep *ProviderEndpoints, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthorizationEndpoint,
			TokenURL:  ep.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL returns the provider URL to send the browser to.
//
// STATE PARAMETER:
// The state is a random token the caller also stores in a cookie. The
// provider echoes it back on the callback, and the callback refuses to
// continue unless both match. This stops an attacker from completing a login
// in the victim's browser with the attacker's own authorization code.
func (c *OIDCClient) AuthCodeURL(ctx context.Context, redirectURI, state string) (string, error) {
	if err := c.requireConfigured(); err != nil {
		return "", err
	}
	ep, err := c.Discover(ctx)
	if err != nil {
		return "", err
	}
	return c.oauthConfig(ep, redirectURI).AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange completes the handshake: it trades the authorization code for an
// access token and uses the token to fetch the user's profile.
//
// Exchange never retries. A failed exchange means the code is spent (or
// never was valid) and the user has to start over.
func (c *OIDCClient) Exchange(ctx context.Context, redirectURI, code string) (*model.FederatedProfile, error) {
	if err := c.requireConfigured(); err != nil {
		return nil, err
	}

	ep, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	token, err := c.exchangeCode(ctx, ep, redirectURI, code)
	if err != nil {
		return nil, err
	}

	return c.FetchProfile(ctx, ep, token)
}

func (c *OIDCClient) exchangeCode(ctx context.Context, ep *ProviderEndpoints, redirectURI, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// oauth2 picks the HTTP client out of the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauthConfig(ep, redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w",
			apperror.Provider(apperror.ErrTokenExchangeFailed, "could not exchange the authorization code"), err)
	}
	return token, nil
}

// FetchProfile calls the userinfo endpoint with the access token.
func (c *OIDCClient) FetchProfile(ctx context.Context, ep *ProviderEndpoints, token *oauth2.Token) (*model.FederatedProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	failed := func(cause error) error {
		return fmt.Errorf("%w: %w",
			apperror.Provider(apperror.ErrProfileFetchFailed, "could not fetch the user profile"), cause)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.UserinfoEndpoint, nil)
	if err != nil {
		return nil, failed(err)
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, failed(fmt.Errorf("userinfo returned status %d", resp.StatusCode))
	}

	var profile model.FederatedProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, failed(fmt.Errorf("decoding userinfo: %w", err))
	}
	if profile.Subject == "" {
		return nil, failed(errors.New("userinfo has no subject"))
	}
	return &profile, nil
}
