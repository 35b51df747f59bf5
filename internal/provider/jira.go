package provider

import (
	"context"
	"encoding/base64"
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

// jiraTimeFormat is Jira's issue timestamp layout.
const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

// jiraClient reads issues from the Jira Cloud REST API v3. ATATT API tokens
// use Basic auth with the account email; OAuth tokens use Bearer.
type jiraClient struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
}

func newJiraClient(httpClient *http.Client, integration *models.Integration) (*jiraClient, error) {
	baseURL := strings.TrimRight(integration.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("jira integration has no base URL: %w", models.ErrNotConnected)
	}
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("jira base URL must be https: %w", models.ErrNotConnected)
	}

	token := integration.AccessToken
	if token == "" {
		return nil, fmt.Errorf("jira integration has no token: %w", models.ErrNotConnected)
	}

	var authHeader string

	if strings.HasPrefix(token, "ATATT") {
		email := integration.Config["email"]
		if email == "" {
			return nil, fmt.Errorf("jira API token requires an email in config: %w", models.ErrNotConnected)
		}
		creds := base64.StdEncoding.EncodeToString([]byte(email + ":" + token))
		authHeader = "Basic " + creds
	} else {
		authHeader = "Bearer " + token
	}

	return &jiraClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		authHeader: authHeader,
	}, nil
}

func (c *jiraClient) Type() string { return models.ProviderJira }

// TestConnection fetches the current user.
func (c *jiraClient) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/api/3/myself", nil)
	if err != nil {
		return fmt.Errorf("creating myself request: %w", err)
	}

	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling jira myself: %w", err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jira myself returned status %d: %w", resp.StatusCode, models.ErrNotConnected)
	}

	return nil
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description any    `json:"description"`
		Created     string `json:"created"`
		Updated     string `json:"updated"`
		Status      struct {
			Name           string `json:"name"`
			StatusCategory struct {
				Key string `json:"key"`
			} `json:"statusCategory"`
		} `json:"status"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"fields"`
}

type jiraSearchPage struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

// FetchTickets pages /rest/api/3/search with a JQL query. Incremental syncs
// push the updated filter into JQL so the server does the narrowing.
func (c *jiraClient) FetchTickets(ctx context.Context, since *time.Time, limit int) ([]Ticket, error) {
	limit = capLimit(limit)

	jql := "ORDER BY updated DESC"
	if since != nil {
		jql = fmt.Sprintf("updated >= %q ORDER BY updated DESC", since.UTC().Format("2006-01-02 15:04"))
	}

	var (
		tickets []Ticket
		startAt int
	)

	for len(tickets) < limit {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(defaultPageSize))
		q.Set("fields", "summary,description,status,priority,updated,created,issuetype,project")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/rest/api/3/search?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating search request: %w", err)
		}

		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Accept", "application/json")

		page, err := c.fetchPage(req)
		if err != nil {
			return nil, err
		}

		for _, ji := range page.Issues {
			tickets = append(tickets, c.normalize(ji))
			if len(tickets) >= limit {
				break
			}
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	return tickets, nil
}

func (c *jiraClient) fetchPage(req *http.Request) (*jiraSearchPage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling jira search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("jira rejected credentials (status %d): %w", resp.StatusCode, models.ErrNotConnected)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("jira search returned status %d", resp.StatusCode)
	}

	var page jiraSearchPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding jira search page: %w", err)
	}

	return &page, nil
}

func (c *jiraClient) normalize(ji jiraIssue) Ticket {
	title := ji.Fields.Summary
	if title == "" {
		title = "Untitled issue " + ji.Key
	}

	t := Ticket{
		ExternalID:  ji.Key,
		Title:       title,
		Description: jiraDescriptionText(ji.Fields.Description),
		Severity:    jiraSeverity(ji.Fields.Priority.Name),
		Status:      jiraStatus(ji.Fields.Status.StatusCategory.Key),
		URL:         c.baseURL + "/browse/" + ji.Key,
	}

	if ji.Fields.IssueType.Name != "" {
		t.Tags = append(t.Tags, strings.ToLower(ji.Fields.IssueType.Name))
	}
	if ji.Fields.Project.Key != "" {
		t.Tags = append(t.Tags, strings.ToLower(ji.Fields.Project.Key))
	}

	if ts, err := time.Parse(jiraTimeFormat, ji.Fields.Created); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(jiraTimeFormat, ji.Fields.Updated); err == nil {
		t.UpdatedAt = ts
	}

	return t
}

// jiraDescriptionText flattens an Atlassian Document Format description to
// plain text. Plain-string descriptions pass through.
func jiraDescriptionText(desc any) string {
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		var b strings.Builder
		collectADFText(v, &b)
		return strings.TrimSpace(b.String())
	default:
		return ""
	}
}

func collectADFText(node map[string]any, b *strings.Builder) {
	if text, ok := node["text"].(string); ok {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}

	content, ok := node["content"].([]any)
	if !ok {
		return
	}

	for _, child := range content {
		if m, ok := child.(map[string]any); ok {
			collectADFText(m, b)
		}
	}
}

func jiraSeverity(priority string) int {
	switch strings.ToLower(priority) {
	case "highest", "blocker":
		return 5
	case "high", "critical":
		return 4
	case "medium", "major":
		return 3
	case "low", "minor":
		return 2
	default:
		return 1
	}
}

func jiraStatus(categoryKey string) string {
	switch categoryKey {
	case "done":
		return models.StatusResolved
	case "indeterminate":
		return models.StatusInProgress
	default:
		return models.StatusOpen
	}
}
