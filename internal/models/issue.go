package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue statuses used across all providers after normalization.
const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusPending    = "pending"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Severity bounds for normalized issues.
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// Issue is a normalized ticket from an external provider.
// Identity within a tenant is (source, external_id); sync upserts on that key.
type Issue struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	IntegrationID *uuid.UUID `json:"integration_id,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Source        string     `json:"source"`
	ExternalID    string     `json:"external_id"`
	Severity      int        `json:"severity"`
	Status        string     `json:"status"`
	URL           string     `json:"url,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Frequency     int        `json:"frequency"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IssueUpsert is one row of a sync upsert batch.
type IssueUpsert struct {
	IntegrationID uuid.UUID
	Title         string
	Description   string
	Source        string
	ExternalID    string
	Severity      int
	Status        string
	URL           string
	Tags          []string
}

// Validate clamps and checks an upsert row before it reaches the store.
func (u *IssueUpsert) Validate() error {
	if u.Title == "" {
		return ErrMissingTitle
	}
	if u.Source == "" {
		return ErrMissingSource
	}
	if u.ExternalID == "" {
		return ErrMissingExternalID
	}
	if u.Severity < MinSeverity || u.Severity > MaxSeverity {
		return ErrSeverityOutOfRange
	}
	if u.Status == "" {
		u.Status = StatusOpen
	}
	return nil
}

// IssueFilter narrows tenant-scoped issue listings.
type IssueFilter struct {
	Source        string
	Status        string
	IntegrationID *uuid.UUID
	MinSeverity   int
	Limit         int
	Offset        int
}

// UpsertStats summarizes one upsert batch.
type UpsertStats struct {
	Created int
	Updated int
}
