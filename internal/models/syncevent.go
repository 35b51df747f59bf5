package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync types.
const (
	SyncFull        = "full"
	SyncIncremental = "incremental"
)

// Sync event statuses.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncEvent is one row of the append-only sync audit log.
type SyncEvent struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	IntegrationID  uuid.UUID  `json:"integration_id"`
	SyncType       string     `json:"sync_type"`
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsCreated   int        `json:"items_created"`
	ItemsUpdated   int        `json:"items_updated"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMS     int64      `json:"duration_ms"`
}

// SyncMetrics aggregates sync_events for the sync-health endpoint.
type SyncMetrics struct {
	Days          int     `json:"days"`
	TotalSyncs    int     `json:"total_syncs"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	ItemsTotal    int     `json:"items_processed_total"`
}

// SyncRequest validates the sync trigger query parameters.
type SyncRequest struct {
	Type string
}

// Validate normalizes an empty sync type to incremental.
func (r *SyncRequest) Validate() error {
	switch r.Type {
	case "":
		r.Type = SyncIncremental
	case SyncFull, SyncIncremental:
	default:
		return ErrInvalidSyncType
	}
	return nil
}
