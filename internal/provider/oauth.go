package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/killthenoise/killthenoise/internal/config"
	"github.com/killthenoise/killthenoise/internal/models"
)

// refreshBuffer refreshes tokens this long before their recorded expiry.
const refreshBuffer = 5 * time.Minute

// Endpoints describes one provider's OAuth 2.0 authorization-code flow.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	Scopes       []string
	// ExtraAuthParams are provider-specific query parameters on the
	// authorize redirect (Atlassian audience, Slack user_scope).
	ExtraAuthParams map[string]string
}

var oauthEndpoints = map[string]Endpoints{
	models.ProviderHubSpot: {
		AuthorizeURL: "https://app.hubspot.com/oauth/authorize",
		TokenURL:     "https://api.hubapi.com/oauth/v1/token",
		Scopes:       []string{"tickets", "crm.objects.contacts.read", "oauth"},
	},
	models.ProviderJira: {
		AuthorizeURL: "https://auth.atlassian.com/authorize",
		TokenURL:     "https://auth.atlassian.com/oauth/token",
		Scopes:       []string{"read:jira-work", "read:me", "offline_access"},
		ExtraAuthParams: map[string]string{
			"audience":      "api.atlassian.com",
			"response_type": "code",
			"prompt":        "consent",
		},
	},
	models.ProviderSlack: {
		AuthorizeURL: "https://slack.com/oauth/v2/authorize",
		TokenURL:     "https://slack.com/api/oauth.v2.access",
		Scopes:       []string{"channels:read", "channels:history", "groups:read"},
	},
}

// TokenResponse is the normalized result of a code exchange or refresh.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// OAuthFlow drives the authorization-code flow for every provider.
type OAuthFlow struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewOAuthFlow creates an OAuthFlow.
func NewOAuthFlow(cfg *config.Config) *OAuthFlow {
	return &OAuthFlow{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (o *OAuthFlow) app(providerType string) (config.OAuthApp, Endpoints, error) {
	ep, ok := oauthEndpoints[providerType]
	if !ok {
		return config.OAuthApp{}, Endpoints{}, fmt.Errorf("unsupported provider %q", providerType)
	}

	var app config.OAuthApp

	switch providerType {
	case models.ProviderHubSpot:
		app = o.cfg.HubSpot
	case models.ProviderJira:
		app = o.cfg.Jira
	case models.ProviderSlack:
		app = o.cfg.Slack
	}

	if !app.Configured() {
		return config.OAuthApp{}, Endpoints{}, fmt.Errorf("%s oauth app is not configured", providerType)
	}

	return app, ep, nil
}

// NewState returns a fresh random state token.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// AuthorizeURL builds the provider's consent-screen redirect carrying state.
func (o *OAuthFlow) AuthorizeURL(providerType, state string) (string, error) {
	app, ep, err := o.app(providerType)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client_id", app.ClientID)
	q.Set("redirect_uri", app.RedirectURI)
	q.Set("scope", strings.Join(ep.Scopes, " "))
	q.Set("state", state)

	for k, v := range ep.ExtraAuthParams {
		q.Set(k, v)
	}

	return ep.AuthorizeURL + "?" + q.Encode(), nil
}

// Exchange swaps an authorization code for tokens.
func (o *OAuthFlow) Exchange(ctx context.Context, providerType, code string) (*TokenResponse, error) {
	app, ep, err := o.app(providerType)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret.Value())
	form.Set("redirect_uri", app.RedirectURI)
	form.Set("code", code)

	return o.tokenRequest(ctx, ep.TokenURL, form)
}

// Refresh redeems the integration's refresh token if the access token is
// expired or expires within refreshBuffer. Returns nil when no refresh was
// needed. Concurrent calls for the same integration are deduplicated by the
// integration service, which singleflights refreshes per integration ID.
func (o *OAuthFlow) Refresh(ctx context.Context, integration *models.Integration) (*TokenResponse, error) {
	if integration.AuthKind != models.AuthKindOAuth || integration.RefreshToken == "" {
		return nil, nil
	}
	if !integration.TokenExpired(refreshBuffer) {
		return nil, nil
	}

	app, ep, err := o.app(integration.Type)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret.Value())
	form.Set("refresh_token", integration.RefreshToken)

	return o.tokenRequest(ctx, ep.TokenURL, form)
}

func (o *OAuthFlow) tokenRequest(ctx context.Context, tokenURL string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("token endpoint returned status %d: %w", resp.StatusCode, models.ErrNotConnected)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		// Slack wraps errors in an ok envelope instead of HTTP status codes.
		OK    *bool  `json:"ok,omitempty"`
		Error string `json:"error,omitempty"`
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	if payload.OK != nil && !*payload.OK {
		return nil, fmt.Errorf("token endpoint error %q: %w", payload.Error, models.ErrNotConnected)
	}

	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token: %w", models.ErrNotConnected)
	}

	tr := &TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}

	if payload.ExpiresIn > 0 {
		expires := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
		tr.ExpiresAt = &expires
	}

	return tr, nil
}
