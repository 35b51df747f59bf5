package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/killthenoise/killthenoise/internal/models"
)

func TestNewSlackClient_ParsesChannelConfig(t *testing.T) {
	c := newSlackClient(http.DefaultClient, &models.Integration{
		AccessToken: "xoxb-1",
		Config:      map[string]string{"channels": "C1, C2 ,,C3"},
	})

	if len(c.channels) != 3 || c.channels[0] != "C1" || c.channels[1] != "C2" || c.channels[2] != "C3" {
		t.Errorf("channels = %v", c.channels)
	}

	empty := newSlackClient(http.DefaultClient, &models.Integration{AccessToken: "xoxb-1"})
	if len(empty.channels) != 0 {
		t.Errorf("expected no channels, got %v", empty.channels)
	}
}

func TestSlackSeverity(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"URGENT: prod is down", 5},
		{"we have a critical outage", 5},
		{"the page is broken", 4},
		{"seeing an error in checkout", 4},
		{"found a bug in the report", 3},
		{"small issue with fonts", 3},
		{"just a question", 2},
	}

	for _, tt := range tests {
		if got := slackSeverity(tt.text); got != tt.want {
			t.Errorf("slackSeverity(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestParseSlackTS(t *testing.T) {
	ts := parseSlackTS("1712345678.000200")
	if ts != time.Unix(1712345678, 0).UTC() {
		t.Errorf("parseSlackTS = %v", ts)
	}

	if !parseSlackTS("garbage").IsZero() {
		t.Error("expected zero time for a bad timestamp")
	}
}

func TestNormalizeSlackMessage(t *testing.T) {
	msg := slackMessage{TS: "1712345678.000200", Text: "urgent: payments are failing"}

	ticket := normalizeSlackMessage("C42", msg)

	if ticket.ExternalID != "C42:1712345678.000200" {
		t.Errorf("external id = %q", ticket.ExternalID)
	}

	if ticket.Severity != 5 {
		t.Errorf("severity = %d", ticket.Severity)
	}

	if ticket.Status != models.StatusOpen {
		t.Errorf("status = %q", ticket.Status)
	}

	if ticket.CreatedAt.IsZero() {
		t.Error("expected a timestamp from the message ts")
	}
}

func TestNormalizeSlackMessage_TitleTruncatesOnRuneBoundary(t *testing.T) {
	msg := slackMessage{TS: "1.000", Text: strings.Repeat("a", 139) + "é and more"}

	ticket := normalizeSlackMessage("C1", msg)

	if !utf8.ValidString(ticket.Title) {
		t.Errorf("title is not valid UTF-8: %q", ticket.Title)
	}
	if len(ticket.Title) > 140 {
		t.Errorf("title length = %d, want <= 140", len(ticket.Title))
	}
	if ticket.Description != msg.Text {
		t.Error("description should keep the full message text")
	}
}

func TestSlackFetchTickets_SkipsJoinLeaveAndEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.history" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		fmt.Fprint(w, `{"ok":true,"messages":[
			{"type":"message","ts":"1.000","text":"real problem report"},
			{"type":"message","subtype":"channel_join","ts":"2.000","text":"joined"},
			{"type":"message","subtype":"channel_leave","ts":"3.000","text":"left"},
			{"type":"message","ts":"4.000","text":""}
		],"has_more":false}`)
	}))
	defer srv.Close()

	c := newSlackClient(srv.Client(), &models.Integration{
		AccessToken: "xoxb-1",
		Config:      map[string]string{"channels": "C1"},
	})
	c.baseURL = srv.URL

	tickets, err := c.FetchTickets(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("FetchTickets: %v", err)
	}

	if len(tickets) != 1 || tickets[0].Title != "real problem report" {
		t.Errorf("unexpected tickets: %+v", tickets)
	}
}

func TestSlackFetchTickets_NoChannelsNoCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected API call with no channels configured")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newSlackClient(srv.Client(), &models.Integration{AccessToken: "xoxb-1"})
	c.baseURL = srv.URL

	tickets, err := c.FetchTickets(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("FetchTickets: %v", err)
	}

	if len(tickets) != 0 {
		t.Errorf("expected no tickets, got %d", len(tickets))
	}
}

func TestSlackFetchTickets_SincePassedAsOldest(t *testing.T) {
	var gotOldest string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOldest = r.URL.Query().Get("oldest")

		fmt.Fprint(w, `{"ok":true,"messages":[],"has_more":false}`)
	}))
	defer srv.Close()

	c := newSlackClient(srv.Client(), &models.Integration{
		AccessToken: "xoxb-1",
		Config:      map[string]string{"channels": "C1"},
	})
	c.baseURL = srv.URL

	since := time.Unix(1712345678, 0)

	if _, err := c.FetchTickets(context.Background(), &since, 0); err != nil {
		t.Fatalf("FetchTickets: %v", err)
	}

	if gotOldest != "1712345678.000000" {
		t.Errorf("oldest = %q", gotOldest)
	}
}

func TestSlackListChannels_MarksSelected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")

		if cursor == "" {
			fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C1","name":"support"}],"response_metadata":{"next_cursor":"next"}}`)

			return
		}

		fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C2","name":"bugs"}]}`)
	}))
	defer srv.Close()

	c := newSlackClient(srv.Client(), &models.Integration{
		AccessToken: "xoxb-1",
		Config:      map[string]string{"channels": "C2"},
	})
	c.baseURL = srv.URL

	channels, err := c.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}

	if len(channels) != 2 {
		t.Fatalf("expected 2 channels across pages, got %d", len(channels))
	}

	if channels[0].Selected || !channels[1].Selected {
		t.Errorf("selection marks wrong: %+v", channels)
	}
}

func TestSlackTestConnection_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
	}))
	defer srv.Close()

	c := newSlackClient(srv.Client(), &models.Integration{AccessToken: "xoxb-bad"})
	c.baseURL = srv.URL

	if err := c.TestConnection(context.Background()); err == nil {
		t.Fatal("expected an error for ok:false")
	}
}
