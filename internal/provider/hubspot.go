package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/killthenoise/killthenoise/internal/models"
)

const hubspotBaseURL = "https://api.hubapi.com"

// hubspotClient reads tickets from the HubSpot CRM v3 API.
type hubspotClient struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
}

func newHubSpotClient(httpClient *http.Client, accessToken string) *hubspotClient {
	return &hubspotClient{
		httpClient:  httpClient,
		accessToken: accessToken,
		baseURL:     hubspotBaseURL,
	}
}

func (c *hubspotClient) Type() string { return models.ProviderHubSpot }

// TestConnection introspects the access token.
func (c *hubspotClient) TestConnection(ctx context.Context) error {
	if c.accessToken == "" {
		return models.ErrNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/access-tokens/"+url.PathEscape(c.accessToken), nil)
	if err != nil {
		return fmt.Errorf("creating introspection request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling hubspot introspection: %w", err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hubspot introspection returned status %d: %w", resp.StatusCode, models.ErrNotConnected)
	}

	return nil
}

type hubspotTicket struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type hubspotPage struct {
	Results []hubspotTicket `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// FetchTickets pages through /crm/v3/objects/tickets with the after cursor.
// HubSpot's list endpoint has no server-side updated filter, so incremental
// syncs filter client-side on updatedAt.
func (c *hubspotClient) FetchTickets(ctx context.Context, since *time.Time, limit int) ([]Ticket, error) {
	limit = capLimit(limit)

	var (
		tickets []Ticket
		after   string
	)

	for len(tickets) < limit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(defaultPageSize))
		q.Set("properties", "subject,content,hs_pipeline_stage,hs_ticket_priority")
		if after != "" {
			q.Set("after", after)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/crm/v3/objects/tickets?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating tickets request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		page, err := c.fetchPage(req)
		if err != nil {
			return nil, err
		}

		for _, ht := range page.Results {
			if since != nil && ht.UpdatedAt.Before(*since) {
				continue
			}

			tickets = append(tickets, c.normalize(ht))
			if len(tickets) >= limit {
				break
			}
		}

		if page.Paging == nil || page.Paging.Next.After == "" {
			break
		}
		after = page.Paging.Next.After
	}

	return tickets, nil
}

func (c *hubspotClient) fetchPage(req *http.Request) (*hubspotPage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling hubspot tickets API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("hubspot rejected credentials (status %d): %w", resp.StatusCode, models.ErrNotConnected)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("hubspot tickets API returned status %d", resp.StatusCode)
	}

	var page hubspotPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding hubspot tickets page: %w", err)
	}

	return &page, nil
}

func (c *hubspotClient) normalize(ht hubspotTicket) Ticket {
	props := ht.Properties

	title := props["subject"]
	if title == "" {
		title = "Untitled ticket " + ht.ID
	}

	t := Ticket{
		ExternalID:  ht.ID,
		Title:       title,
		Description: props["content"],
		Severity:    hubspotSeverity(props["hs_ticket_priority"]),
		Status:      hubspotStatus(props["hs_pipeline_stage"]),
		URL:         "https://app.hubspot.com/contacts/tickets/" + ht.ID,
		CreatedAt:   ht.CreatedAt,
		UpdatedAt:   ht.UpdatedAt,
	}

	if p := props["hs_ticket_priority"]; p != "" {
		t.Tags = []string{strings.ToLower(p)}
	}

	return t
}

func hubspotSeverity(priority string) int {
	switch strings.ToLower(priority) {
	case "urgent":
		return 5
	case "high":
		return 4
	case "medium":
		return 3
	case "low":
		return 2
	default:
		return 1
	}
}

// hubspotStatus maps the default support-pipeline stages: 1 new, 2 waiting
// on contact, 3 waiting on us, 4 closed. Unknown stages stay open.
func hubspotStatus(stage string) string {
	switch stage {
	case "2", "3":
		return models.StatusPending
	case "4":
		return models.StatusClosed
	default:
		if strings.Contains(strings.ToLower(stage), "closed") {
			return models.StatusClosed
		}
		return models.StatusOpen
	}
}
