package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueGroup is a cluster of similar issues rolled up across sources.
// Signature is the deterministic clustering key; title and summary may be
// AI-generated when an analyzer is configured.
type IssueGroup struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	Signature  string         `json:"signature"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary,omitempty"`
	Severity   int            `json:"severity,omitempty"`
	Status     string         `json:"status"`
	Frequency  int            `json:"frequency"`
	Sources    map[string]int `json:"sources"`
	LastSeenAt time.Time      `json:"last_seen_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// GroupUpsert is one clustered group ready to be written.
type GroupUpsert struct {
	Signature string
	Title     string
	Summary   string
	Severity  int
	Frequency int
	Sources   map[string]int
}
