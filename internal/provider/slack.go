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

const slackBaseURL = "https://slack.com/api"

// slackConfigChannels is the integration config key holding the selected
// channel IDs, comma separated.
const slackConfigChannels = "channels"

// slackClient ingests messages from selected Slack channels as tickets.
// External IDs are "channel:ts" so edits upsert instead of duplicating.
type slackClient struct {
	httpClient *http.Client
	token      string
	channels   []string
	baseURL    string
}

func newSlackClient(httpClient *http.Client, integration *models.Integration) *slackClient {
	var channels []string

	if raw := integration.Config[slackConfigChannels]; raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				channels = append(channels, id)
			}
		}
	}

	return &slackClient{
		httpClient: httpClient,
		token:      integration.AccessToken,
		channels:   channels,
		baseURL:    slackBaseURL,
	}
}

func (c *slackClient) Type() string { return models.ProviderSlack }

type slackEnvelope struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// TestConnection calls auth.test with the bot token.
func (c *slackClient) TestConnection(ctx context.Context) error {
	if c.token == "" {
		return models.ErrNotConnected
	}

	var env slackEnvelope
	if err := c.call(ctx, "auth.test", nil, &env); err != nil {
		return err
	}

	if !env.OK {
		return fmt.Errorf("slack auth.test error %q: %w", env.Error, models.ErrNotConnected)
	}

	return nil
}

// SlackChannel is one channel from conversations.list.
type SlackChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
	Selected   bool   `json:"selected"`
}

// ListChannels pages conversations.list and marks the channels currently
// selected in the integration config.
func (c *slackClient) ListChannels(ctx context.Context) ([]SlackChannel, error) {
	selected := make(map[string]bool, len(c.channels))
	for _, id := range c.channels {
		selected[id] = true
	}

	var (
		out    []SlackChannel
		cursor string
	)

	for {
		params := url.Values{}
		params.Set("types", "public_channel,private_channel")
		params.Set("limit", strconv.Itoa(defaultPageSize))
		params.Set("exclude_archived", "true")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page struct {
			slackEnvelope
			Channels []SlackChannel `json:"channels"`
		}

		if err := c.call(ctx, "conversations.list", params, &page); err != nil {
			return nil, err
		}
		if !page.OK {
			return nil, fmt.Errorf("slack conversations.list error %q: %w", page.Error, models.ErrNotConnected)
		}

		for _, ch := range page.Channels {
			ch.Selected = selected[ch.ID]
			out = append(out, ch)
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}

	return out, nil
}

type slackMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	TS      string `json:"ts"`
	Text    string `json:"text"`
	User    string `json:"user"`
}

// FetchTickets pulls conversations.history for each selected channel.
// Join/leave messages and empty texts are skipped.
func (c *slackClient) FetchTickets(ctx context.Context, since *time.Time, limit int) ([]Ticket, error) {
	if len(c.channels) == 0 {
		return nil, nil
	}

	limit = capLimit(limit)

	var tickets []Ticket

	for _, channelID := range c.channels {
		if len(tickets) >= limit {
			break
		}

		channelTickets, err := c.fetchChannel(ctx, channelID, since, limit-len(tickets))
		if err != nil {
			return nil, fmt.Errorf("fetching channel %s: %w", channelID, err)
		}

		tickets = append(tickets, channelTickets...)
	}

	return tickets, nil
}

func (c *slackClient) fetchChannel(ctx context.Context, channelID string, since *time.Time, limit int) ([]Ticket, error) {
	var (
		tickets []Ticket
		cursor  string
	)

	for len(tickets) < limit {
		params := url.Values{}
		params.Set("channel", channelID)
		params.Set("limit", strconv.Itoa(defaultPageSize))
		if since != nil {
			params.Set("oldest", fmt.Sprintf("%d.000000", since.Unix()))
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page struct {
			slackEnvelope
			Messages []slackMessage `json:"messages"`
			HasMore  bool           `json:"has_more"`
		}

		if err := c.call(ctx, "conversations.history", params, &page); err != nil {
			return nil, err
		}
		if !page.OK {
			return nil, fmt.Errorf("slack conversations.history error %q: %w", page.Error, models.ErrNotConnected)
		}

		for _, msg := range page.Messages {
			if msg.Subtype == "channel_join" || msg.Subtype == "channel_leave" || msg.Text == "" {
				continue
			}

			tickets = append(tickets, normalizeSlackMessage(channelID, msg))
			if len(tickets) >= limit {
				break
			}
		}

		cursor = page.ResponseMetadata.NextCursor
		if !page.HasMore || cursor == "" {
			break
		}
	}

	return tickets, nil
}

func (c *slackClient) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return fmt.Errorf("slack %s returned status %d", method, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding slack %s response: %w", method, err)
	}

	return nil
}

func normalizeSlackMessage(channelID string, msg slackMessage) Ticket {
	title := truncateUTF8(msg.Text, 140)

	t := Ticket{
		ExternalID:  channelID + ":" + msg.TS,
		Title:       title,
		Description: msg.Text,
		Severity:    slackSeverity(msg.Text),
		Status:      models.StatusOpen,
		Tags:        []string{"slack"},
	}

	if ts := parseSlackTS(msg.TS); !ts.IsZero() {
		t.CreatedAt = ts
		t.UpdatedAt = ts
	}

	return t
}

// parseSlackTS converts a "1712345678.000200" timestamp to a time.
func parseSlackTS(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")

	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(n, 0).UTC()
}

// slackSeverity is a keyword heuristic; messages are unstructured so the
// priority signal is whatever the reporter typed.
func slackSeverity(text string) int {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "critical") || strings.Contains(lower, "outage"):
		return 5
	case strings.Contains(lower, "broken") || strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		return 4
	case strings.Contains(lower, "bug") || strings.Contains(lower, "issue"):
		return 3
	default:
		return 2
	}
}
