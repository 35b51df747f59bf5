package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantTitle   string
		wantSummary string
		wantErr     bool
	}{
		{
			name:        "both lines",
			text:        "TITLE: Login failures\nSUMMARY: Users cannot sign in since the last deploy.",
			wantTitle:   "Login failures",
			wantSummary: "Users cannot sign in since the last deploy.",
		},
		{
			name:      "title only",
			text:      "TITLE: Login failures",
			wantTitle: "Login failures",
		},
		{
			name:        "surrounding chatter",
			text:        "Here is my analysis:\n\nTITLE: Checkout errors\nSUMMARY: Payment step times out.\n\nHope that helps!",
			wantTitle:   "Checkout errors",
			wantSummary: "Payment step times out.",
		},
		{
			name:    "no markers",
			text:    "The issues look related to login.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, summary, err := parseSummary(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}

				return
			}
			if err != nil {
				t.Fatalf("parseSummary: %v", err)
			}

			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", summary, tt.wantSummary)
			}
		})
	}
}

func TestParseSummary_TruncatesLongLines(t *testing.T) {
	text := "TITLE: " + strings.Repeat("t", 120) + "\nSUMMARY: " + strings.Repeat("s", 300)

	title, summary, err := parseSummary(text)
	if err != nil {
		t.Fatalf("parseSummary: %v", err)
	}

	if len(title) != 80 {
		t.Errorf("title length = %d, want 80", len(title))
	}
	if len(summary) != 200 {
		t.Errorf("summary length = %d, want 200", len(summary))
	}
}

func TestParseSummary_TruncatesOnRuneBoundary(t *testing.T) {
	text := "TITLE: " + strings.Repeat("t", 79) + "é\nSUMMARY: fine"

	title, _, err := parseSummary(text)
	if err != nil {
		t.Fatalf("parseSummary: %v", err)
	}

	if !utf8.ValidString(title) {
		t.Errorf("title is not valid UTF-8: %q", title)
	}
	if len(title) > 80 {
		t.Errorf("title length = %d, want <= 80", len(title))
	}
}

func TestAnalyzer_SummarizeGroup(t *testing.T) {
	var gotVersion, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")

		fmt.Fprint(w, `{"content":[{"type":"text","text":"TITLE: Login failures\nSUMMARY: Multiple reports of failed sign-ins."}]}`)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "test-key", "test-model")

	title, summary, err := a.SummarizeGroup(context.Background(), []string{"login broken", "cannot log in"}, "")
	if err != nil {
		t.Fatalf("SummarizeGroup: %v", err)
	}

	if title != "Login failures" {
		t.Errorf("title = %q", title)
	}
	if summary == "" {
		t.Error("expected a summary")
	}

	if gotVersion != anthropicVersion {
		t.Errorf("anthropic-version = %q, want %q", gotVersion, anthropicVersion)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
}

func TestAnalyzer_SummarizeGroup_IncludesGuidance(t *testing.T) {
	var gotPrompt string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			gotPrompt = req.Messages[0].Content
		}

		fmt.Fprint(w, `{"content":[{"type":"text","text":"TITLE: t\nSUMMARY: s"}]}`)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "k", "m")

	if _, _, err := a.SummarizeGroup(context.Background(), []string{"login broken"}, "Group by auth provider."); err != nil {
		t.Fatalf("SummarizeGroup: %v", err)
	}

	if !strings.Contains(gotPrompt, "Group by auth provider.") {
		t.Errorf("prompt missing tenant guidance: %q", gotPrompt)
	}
}

func TestAnalyzer_CircuitOpensAfterFailures(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "k", "m")
	ctx := context.Background()

	for n := 0; n < cbFailureThreshold; n++ {
		if _, _, err := a.SummarizeGroup(ctx, []string{"x"}, ""); err == nil {
			t.Fatal("expected failure")
		}
	}

	// Breaker is now open: the next call must fail fast without a request.
	before := calls
	_, _, err := a.SummarizeGroup(ctx, []string{"x"}, "")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != before {
		t.Errorf("expected no API call while breaker open, got %d extra", calls-before)
	}
}

func TestAnalyzer_RecoversAfterCooldown(t *testing.T) {
	fail := true

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		fmt.Fprint(w, `{"content":[{"type":"text","text":"TITLE: ok\nSUMMARY: ok"}]}`)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "k", "m")
	ctx := context.Background()

	for n := 0; n < cbFailureThreshold; n++ {
		a.SummarizeGroup(ctx, []string{"x"}, "") //nolint:errcheck
	}

	// Rewind the failure clock instead of sleeping through the cooldown.
	a.mu.Lock()
	a.cbLastFailureAt = a.cbLastFailureAt.Add(-2 * cbCooldown)
	a.mu.Unlock()

	fail = false

	if _, _, err := a.SummarizeGroup(ctx, []string{"x"}, ""); err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}

	a.mu.Lock()
	state := a.cbState
	a.mu.Unlock()

	if state != cbClosed {
		t.Errorf("expected breaker closed after successful probe, got state %d", state)
	}
}
