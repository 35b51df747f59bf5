// Package models defines data types for killthenoise.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported integration providers.
const (
	ProviderHubSpot = "hubspot"
	ProviderJira    = "jira"
	ProviderSlack   = "slack"
)

// Providers lists all supported provider names in registration order.
var Providers = []string{ProviderHubSpot, ProviderJira, ProviderSlack}

// ValidProvider reports whether name is a supported provider.
func ValidProvider(name string) bool {
	switch name {
	case ProviderHubSpot, ProviderJira, ProviderSlack:
		return true
	}
	return false
}

// Auth kinds stored on an integration row.
const (
	AuthKindOAuth = "oauth" // authorization-code flow with refresh token
	AuthKindToken = "token" // legacy static token (Slack bot token, Jira API token)
)

// Integration is one tenant's stored connection to an external provider.
// Token fields are AES-GCM encrypted at rest; the store decrypts on read.
type Integration struct {
	ID              uuid.UUID         `json:"id"`
	TenantID        uuid.UUID         `json:"tenant_id"`
	Type            string            `json:"integration_type"`
	IsActive        bool              `json:"is_active"`
	AuthKind        string            `json:"auth_kind"`
	AccessToken     string            `json:"-"`
	RefreshToken    string            `json:"-"`
	TokenExpiresAt  *time.Time        `json:"token_expires_at,omitempty"`
	BaseURL         string            `json:"base_url,omitempty"`
	OAuthState      string            `json:"-"`
	Config          map[string]string `json:"config,omitempty"`
	LastSyncedAt    *time.Time        `json:"last_synced_at,omitempty"`
	LastSyncStatus  string            `json:"last_sync_status,omitempty"`
	SyncErrorMsg    string            `json:"sync_error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Pending reports whether this row is a placeholder awaiting an OAuth callback.
func (i *Integration) Pending() bool {
	return !i.IsActive && i.AccessToken == "" && i.OAuthState != ""
}

// RefreshBuffer is how long before the recorded expiry a token counts as
// expired, so refreshes happen ahead of provider rejections.
const RefreshBuffer = 5 * time.Minute

// TokenExpired reports whether the access token is expired or expires within
// the given buffer. Integrations without an expiry (legacy tokens) never expire.
func (i *Integration) TokenExpired(buffer time.Duration) bool {
	if i.TokenExpiresAt == nil {
		return false
	}
	return time.Now().Add(buffer).After(*i.TokenExpiresAt)
}

// TokenUpdate carries refreshed OAuth tokens back to the store.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// SyncBookkeeping is the post-sync state written onto the integration row.
type SyncBookkeeping struct {
	LastSyncedAt time.Time
	Status       string
	ErrorMessage string
}

// AuthStatus is the wire shape of the auth-status endpoint.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	NeedsAuth     bool       `json:"needs_auth"`
	Pending       bool       `json:"pending,omitempty"`
	IntegrationID *uuid.UUID `json:"integration_id,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	SyncStatus    string     `json:"last_sync_status,omitempty"`
}

// CleanupResult reports what a duplicate-cleanup pass did.
type CleanupResult struct {
	Kept    *uuid.UUID  `json:"kept,omitempty"`
	Removed []uuid.UUID `json:"removed"`
}

// CreateSlackIntegrationRequest is the payload for a legacy bot-token Slack integration.
type CreateSlackIntegrationRequest struct {
	Token string `json:"token"`
	Team  string `json:"team,omitempty"`
}

// Validate checks the Slack bot token shape before any external call.
func (r *CreateSlackIntegrationRequest) Validate() error {
	if r.Token == "" {
		return ErrMissingToken
	}
	if len(r.Token) < 20 || r.Token[:5] != "xoxb-" {
		return ErrInvalidSlackToken
	}
	return nil
}

// UpdateSlackChannelsRequest selects the channels a Slack sync ingests.
type UpdateSlackChannelsRequest struct {
	ChannelIDs []string `json:"channel_ids"`
}

// Validate rejects empty or oversized channel selections.
func (r *UpdateSlackChannelsRequest) Validate() error {
	if len(r.ChannelIDs) == 0 {
		return ErrMissingChannels
	}
	if len(r.ChannelIDs) > 200 {
		return ErrFieldTooLong("channel_ids", 200)
	}
	for _, id := range r.ChannelIDs {
		if id == "" {
			return ErrMissingChannels
		}
	}
	return nil
}
