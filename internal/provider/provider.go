// Package provider implements clients for the external ticket sources.
// Each client normalizes the provider's records into Tickets; all network
// failures surface as errors, never panics.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/killthenoise/killthenoise/internal/config"
	"github.com/killthenoise/killthenoise/internal/models"
)

const requestTimeout = 30 * time.Second

// maxResponseBytes bounds decoded provider responses.
const maxResponseBytes = 10 << 20

// defaultPageSize is the per-page fetch size for paginated provider APIs.
const defaultPageSize = 100

// maxTickets caps a single sync fetch across all pages.
const maxTickets = 1000

// Ticket is a normalized record from an external provider, ready to become
// an issue upsert.
type Ticket struct {
	ExternalID  string
	Title       string
	Description string
	Severity    int
	Status      string
	URL         string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Client fetches tickets from one external provider on behalf of one
// integration.
type Client interface {
	// Type returns the provider name (hubspot, jira, slack).
	Type() string

	// TestConnection verifies the stored credentials against the provider.
	// Returns models.ErrNotConnected when the credentials are rejected.
	TestConnection(ctx context.Context) error

	// FetchTickets returns normalized tickets, newest first. A nil since
	// fetches everything; otherwise only tickets updated at or after since
	// are returned. limit <= 0 uses the provider default cap.
	FetchTickets(ctx context.Context, since *time.Time, limit int) ([]Ticket, error)
}

// Factory builds provider clients from stored integrations.
type Factory struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewFactory creates a Factory. All clients share one HTTP client.
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// ClientFor builds a client for the integration's provider. The integration
// must carry decrypted tokens.
func (f *Factory) ClientFor(integration *models.Integration) (Client, error) {
	switch integration.Type {
	case models.ProviderHubSpot:
		return newHubSpotClient(f.httpClient, integration.AccessToken), nil
	case models.ProviderJira:
		return newJiraClient(f.httpClient, integration)
	case models.ProviderSlack:
		return newSlackClient(f.httpClient, integration), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", integration.Type)
	}
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune, so
// truncated titles stay valid UTF-8 for Postgres.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

func capLimit(limit int) int {
	if limit <= 0 || limit > maxTickets {
		return maxTickets
	}

	return limit
}
