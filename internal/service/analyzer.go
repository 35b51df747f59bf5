package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const analyzerTimeout = 30 * time.Second

// anthropicVersion is the API version header required by the Messages API.
const anthropicVersion = "2023-06-01"

// Circuit breaker configuration.
const (
	cbFailureThreshold = 5
	cbCooldown         = 30 * time.Second
)

// Circuit breaker states.
const (
	cbClosed   = iota // Normal operation.
	cbOpen            // Fail fast.
	cbHalfOpen        // Probe with one request.
)

// ErrCircuitOpen is returned when the circuit breaker is open and requests
// are being rejected without calling the AI API.
var ErrCircuitOpen = errors.New("analyzer circuit breaker is open")

// Analyzer summarizes issue clusters via the Anthropic Messages API.
// It uses a circuit breaker to fail fast when the API is down; clustering
// falls back to heuristic titles while the breaker is open.
type Analyzer struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client

	mu              sync.Mutex
	cbState         int
	cbFailures      int
	cbLastFailureAt time.Time
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewAnalyzer creates an Analyzer for the given API endpoint, key, and model.
func NewAnalyzer(apiURL, apiKey, model string) *Analyzer {
	return &Analyzer{
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: analyzerTimeout},
		cbState: cbClosed,
	}
}

// SummarizeGroup asks the model for a title and short summary covering the
// given related issue titles. guidance is the tenant's own grouping
// instructions and is folded into the prompt when present.
func (a *Analyzer) SummarizeGroup(ctx context.Context, titles []string, guidance string) (string, string, error) {
	if err := a.cbAllow(); err != nil {
		return "", "", err
	}

	title, summary, err := a.doSummarize(ctx, titles, guidance)
	if err != nil {
		a.cbRecordFailure()

		return "", "", err
	}

	a.cbRecordSuccess()

	return title, summary, nil
}

// Probe sends a minimal request to check the messages API is reachable and
// the key is accepted. It stays off the circuit breaker so health checks
// report the API's real state even while the breaker is open.
func (a *Analyzer) Probe(ctx context.Context) error {
	body, err := json.Marshal(messagesRequest{
		Model:     a.model,
		MaxTokens: 1,
		Messages:  []message{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		return fmt.Errorf("marshaling probe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling messages API: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("messages API returned status %d", resp.StatusCode)
	}

	return nil
}

func (a *Analyzer) doSummarize(ctx context.Context, titles []string, guidance string) (string, string, error) {
	if len(titles) > 25 {
		titles = titles[:25]
	}

	var prompt strings.Builder
	prompt.WriteString("These issue reports appear to describe the same underlying problem:\n\n")
	for _, t := range titles {
		prompt.WriteString("- ")
		prompt.WriteString(t)
		prompt.WriteByte('\n')
	}
	if guidance != "" {
		prompt.WriteString("\nAdditional guidance from the team:\n")
		prompt.WriteString(guidance)
		prompt.WriteByte('\n')
	}
	prompt.WriteString("\nReply with exactly two lines:\nTITLE: <concise title, max 80 characters>\nSUMMARY: <what the issue is about, max 200 characters>")

	body, err := json.Marshal(messagesRequest{
		Model:     a.model,
		MaxTokens: 300,
		Messages:  []message{{Role: "user", Content: prompt.String()}},
	})
	if err != nil {
		return "", "", fmt.Errorf("marshaling messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("creating messages request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("calling messages API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return "", "", fmt.Errorf("messages API returned status %d", resp.StatusCode)
	}

	var result messagesResponse

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decoding messages response: %w", err)
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", "", fmt.Errorf("messages API returned no text content")
	}

	return parseSummary(text)
}

// parseSummary extracts the TITLE and SUMMARY lines from the model reply.
func parseSummary(text string) (string, string, error) {
	var title, summary string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "TITLE:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		case strings.HasPrefix(line, "SUMMARY:"):
			summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		}
	}

	if title == "" && summary == "" {
		return "", "", fmt.Errorf("could not parse model reply")
	}

	return truncateUTF8(title, 80), truncateUTF8(summary, 200), nil
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
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

// cbAllow checks whether the circuit breaker permits a request.
// In closed state, all requests pass. In open state, requests are rejected
// until the cooldown expires, at which point we transition to half-open.
// In half-open state, one probe request is allowed.
func (a *Analyzer) cbAllow() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.cbState {
	case cbClosed:
		return nil
	case cbOpen:
		if time.Since(a.cbLastFailureAt) >= cbCooldown {
			a.cbState = cbHalfOpen

			return nil
		}

		return ErrCircuitOpen
	case cbHalfOpen:
		// Already probing, reject additional requests.
		return ErrCircuitOpen
	}

	return nil
}

// cbRecordSuccess records a successful call. In half-open state this closes
// the circuit breaker, restoring normal operation.
func (a *Analyzer) cbRecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cbFailures = 0
	a.cbState = cbClosed
}

// cbRecordFailure records a failed call. After reaching the failure threshold
// the circuit breaker transitions to open state.
func (a *Analyzer) cbRecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cbFailures++
	a.cbLastFailureAt = time.Now()

	if a.cbFailures >= cbFailureThreshold || a.cbState == cbHalfOpen {
		a.cbState = cbOpen
	}
}
