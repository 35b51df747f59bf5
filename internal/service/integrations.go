// Package service provides business logic between API handlers and data stores.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/provider"
)

// IntegrationStore is the data-access interface IntegrationService depends on.
type IntegrationStore interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Integration, error)
	GetActive(ctx context.Context, tenantID, providerType string) (*models.Integration, error)
	List(ctx context.Context, tenantID, providerType string) ([]models.Integration, error)
	CreatePending(ctx context.Context, tenantID, providerType, state string) (*models.Integration, error)
	GetByState(ctx context.Context, providerType, state string) (*models.Integration, error)
	Activate(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate, baseURL string) (*models.Integration, error)
	CreateWithToken(ctx context.Context, tenantID, providerType, token string, config map[string]string) (*models.Integration, error)
	UpdateTokens(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate) error
	UpdateConfig(ctx context.Context, tenantID string, id uuid.UUID, config map[string]string) error
	Disconnect(ctx context.Context, tenantID, providerType string) (int, error)
	CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error)
}

// ClientFactory builds provider clients from integrations.
type ClientFactory interface {
	ClientFor(integration *models.Integration) (provider.Client, error)
}

// OAuthDriver drives the provider OAuth flows.
type OAuthDriver interface {
	AuthorizeURL(providerType, state string) (string, error)
	Exchange(ctx context.Context, providerType, code string) (*provider.TokenResponse, error)
	Refresh(ctx context.Context, integration *models.Integration) (*provider.TokenResponse, error)
}

// AuthorizeResult is either a redirect URL or a conflict with the existing
// active integration.
type AuthorizeResult struct {
	Success               bool       `json:"success"`
	RedirectURL           string     `json:"redirect_url,omitempty"`
	NeedsDisconnect       bool       `json:"needs_disconnect,omitempty"`
	ExistingIntegrationID *uuid.UUID `json:"existing_integration_id,omitempty"`
}

// ConnectionStatus is the detailed per-provider status report.
type ConnectionStatus struct {
	Provider      string     `json:"provider"`
	Connected     bool       `json:"connected"`
	Status        string     `json:"integration_status"`
	IntegrationID *uuid.UUID `json:"integration_id,omitempty"`
	Error         string     `json:"error,omitempty"`
	LatencyMS     int64      `json:"response_time_ms"`
}

// IntegrationService owns the provider connection lifecycle: OAuth
// authorize/callback, legacy token connects, disconnects, and duplicate
// cleanup.
type IntegrationService struct {
	store   IntegrationStore
	oauth   OAuthDriver
	factory ClientFactory
	log     *logrus.Logger

	// refreshes dedupes concurrent token refreshes per integration so a
	// rotating refresh token is only redeemed once.
	refreshes singleflight.Group
}

// NewIntegrationService creates an IntegrationService.
func NewIntegrationService(store IntegrationStore, oauth OAuthDriver, factory ClientFactory, log *logrus.Logger) *IntegrationService {
	return &IntegrationService{store: store, oauth: oauth, factory: factory, log: log}
}

// AuthStatus reports whether the tenant has a usable integration for the
// provider. A pending row is reported as needing auth.
func (s *IntegrationService) AuthStatus(ctx context.Context, tenantID, providerType string) (*models.AuthStatus, error) {
	integrations, err := s.store.List(ctx, tenantID, providerType)
	if err != nil {
		return nil, err
	}

	status := &models.AuthStatus{NeedsAuth: true}

	for i := range integrations {
		in := &integrations[i]

		if in.IsActive {
			status.Authenticated = true
			status.NeedsAuth = false
			status.Pending = false
			status.IntegrationID = &in.ID
			status.LastSyncedAt = in.LastSyncedAt
			status.SyncStatus = in.LastSyncStatus

			return status, nil
		}

		if in.Pending() {
			status.Pending = true
		}
	}

	return status, nil
}

// Authorize starts the OAuth flow. If an active integration already exists
// the caller must disconnect first; we return the conflict instead of
// silently stacking a second connection.
func (s *IntegrationService) Authorize(ctx context.Context, tenantID, providerType string) (*AuthorizeResult, error) {
	if existing, err := s.store.GetActive(ctx, tenantID, providerType); err == nil {
		return &AuthorizeResult{
			Success:               false,
			NeedsDisconnect:       true,
			ExistingIntegrationID: &existing.ID,
		}, nil
	} else if !errors.Is(err, models.ErrIntegrationNotFound) {
		return nil, err
	}

	state, err := provider.NewState()
	if err != nil {
		return nil, err
	}

	redirectURL, err := s.oauth.AuthorizeURL(providerType, state)
	if err != nil {
		return nil, err
	}

	pending, err := s.store.CreatePending(ctx, tenantID, providerType, state)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"provider":       providerType,
		"integration_id": pending.ID,
	}).Info("oauth flow started")

	return &AuthorizeResult{Success: true, RedirectURL: redirectURL}, nil
}

// HandleCallback completes the OAuth flow: the state identifies the pending
// row, the code is exchanged, and the row is activated with the new tokens.
func (s *IntegrationService) HandleCallback(ctx context.Context, providerType, code, state string) (*models.Integration, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("missing code or state: %w", models.ErrIntegrationNotFound)
	}

	pending, err := s.store.GetByState(ctx, providerType, state)
	if err != nil {
		return nil, err
	}

	tokens, err := s.oauth.Exchange(ctx, providerType, code)
	if err != nil {
		return nil, err
	}

	activated, err := s.store.Activate(ctx, pending.TenantID.String(), pending.ID, models.TokenUpdate{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, pending.BaseURL)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":      activated.TenantID,
		"provider":       providerType,
		"integration_id": activated.ID,
	}).Info("integration activated")

	return activated, nil
}

// ConnectSlackToken creates an active Slack integration from a legacy bot
// token after verifying it against auth.test.
func (s *IntegrationService) ConnectSlackToken(ctx context.Context, tenantID string, req models.CreateSlackIntegrationRequest) (*models.Integration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	probe := &models.Integration{Type: models.ProviderSlack, AccessToken: req.Token}

	client, err := s.factory.ClientFor(probe)
	if err != nil {
		return nil, err
	}
	if err := client.TestConnection(ctx); err != nil {
		return nil, err
	}

	config := map[string]string{}
	if req.Team != "" {
		config["team"] = req.Team
	}

	return s.store.CreateWithToken(ctx, tenantID, models.ProviderSlack, req.Token, config)
}

// UpdateSlackChannels stores the channel selection on the active Slack
// integration.
func (s *IntegrationService) UpdateSlackChannels(ctx context.Context, tenantID string, req models.UpdateSlackChannelsRequest) (*models.Integration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	integration, err := s.store.GetActive(ctx, tenantID, models.ProviderSlack)
	if err != nil {
		return nil, err
	}

	config := integration.Config
	if config == nil {
		config = map[string]string{}
	}

	config["channels"] = joinChannelIDs(req.ChannelIDs)

	if err := s.store.UpdateConfig(ctx, tenantID, integration.ID, config); err != nil {
		return nil, err
	}

	integration.Config = config

	return integration, nil
}

// ListSlackChannels lists the workspace channels with the current selection
// marked.
func (s *IntegrationService) ListSlackChannels(ctx context.Context, tenantID string) ([]provider.SlackChannel, error) {
	integration, err := s.connected(ctx, tenantID, models.ProviderSlack)
	if err != nil {
		return nil, err
	}

	client, err := s.factory.ClientFor(integration)
	if err != nil {
		return nil, err
	}

	slack, ok := client.(interface {
		ListChannels(ctx context.Context) ([]provider.SlackChannel, error)
	})
	if !ok {
		return nil, fmt.Errorf("provider %s does not list channels", integration.Type)
	}

	return slack.ListChannels(ctx)
}

// Active returns the provider's active integration.
func (s *IntegrationService) Active(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	return s.store.GetActive(ctx, tenantID, providerType)
}

// Disconnect removes every integration row for the provider, including
// pending and duplicate rows.
func (s *IntegrationService) Disconnect(ctx context.Context, tenantID, providerType string) (int, error) {
	removed, err := s.store.Disconnect(ctx, tenantID, providerType)
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"provider":  providerType,
		"removed":   removed,
	}).Info("integration disconnected")

	return removed, nil
}

// CleanupDuplicates keeps the best integration row for the provider and
// removes the rest.
func (s *IntegrationService) CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error) {
	return s.store.CleanupDuplicates(ctx, tenantID, providerType)
}

// Status tests the live connection of the provider's integration.
func (s *IntegrationService) Status(ctx context.Context, tenantID, providerType string) *ConnectionStatus {
	status := &ConnectionStatus{Provider: providerType}

	integration, err := s.connected(ctx, tenantID, providerType)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrIntegrationNotFound):
			status.Status = "not_configured"
		case errors.Is(err, models.ErrIntegrationInactive):
			status.Status = "inactive"
		default:
			status.Status = "error"
			status.Error = err.Error()
		}

		return status
	}

	status.IntegrationID = &integration.ID

	if integration.AccessToken == "" {
		status.Status = "active_no_token"

		return status
	}

	client, err := s.factory.ClientFor(integration)
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()

		return status
	}

	if err := client.TestConnection(ctx); err != nil {
		status.Status = "active_disconnected"
		status.Error = err.Error()

		return status
	}

	status.Connected = true
	status.Status = "active_connected"

	return status
}

// connected loads the active integration with fresh tokens, refreshing
// through the OAuth flow when the access token is near expiry. Refreshes
// are singleflighted per integration, and the row is re-read inside the
// flight so a caller that waited on a concurrent refresh picks up the new
// tokens instead of redeeming the already-spent refresh token again.
func (s *IntegrationService) connected(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	integration, err := s.store.GetActive(ctx, tenantID, providerType)
	if err != nil {
		return nil, err
	}

	if !integration.TokenExpired(models.RefreshBuffer) {
		return integration, nil
	}

	val, err, _ := s.refreshes.Do(integration.ID.String(), func() (any, error) {
		return s.refreshTokens(ctx, tenantID, providerType)
	})
	if err != nil {
		return nil, err
	}

	fresh, ok := val.(*models.Integration)
	if !ok {
		return nil, fmt.Errorf("unexpected refresh result type %T", val)
	}

	return fresh, nil
}

// refreshTokens runs inside a singleflight and owns the refresh exchange.
func (s *IntegrationService) refreshTokens(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	integration, err := s.store.GetActive(ctx, tenantID, providerType)
	if err != nil {
		return nil, err
	}

	refreshed, err := s.oauth.Refresh(ctx, integration)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return integration, nil
	}

	update := models.TokenUpdate{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    refreshed.ExpiresAt,
	}
	if update.RefreshToken == "" {
		update.RefreshToken = integration.RefreshToken
	}

	if err := s.store.UpdateTokens(ctx, tenantID, integration.ID, update); err != nil {
		return nil, err
	}

	integration.AccessToken = update.AccessToken
	integration.RefreshToken = update.RefreshToken
	integration.TokenExpiresAt = update.ExpiresAt

	return integration, nil
}

func joinChannelIDs(ids []string) string {
	out := ""
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if out != "" {
			out += ","
		}
		out += id
	}

	return out
}
