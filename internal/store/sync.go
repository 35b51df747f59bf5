package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/killthenoise/killthenoise/internal/models"
)

// SyncStore owns the sync_events audit log and the transactional sync write
// path: one transaction covers the issue upsert batch, the sync event, and
// the integration bookkeeping, so a crash mid-sync cannot leave
// last_synced_at ahead of the issues actually written.
type SyncStore struct {
	Base
}

// NewSyncStore creates a new SyncStore.
func NewSyncStore(base Base) *SyncStore {
	return &SyncStore{Base: base}
}

const syncEventColumns = `id, tenant_id, integration_id, sync_type, status,
	items_processed, items_created, items_updated, error_message,
	started_at, completed_at, duration_ms`

func scanSyncEvent(scan func(dest ...any) error) (*models.SyncEvent, error) {
	var ev models.SyncEvent

	err := scan(
		&ev.ID, &ev.TenantID, &ev.IntegrationID, &ev.SyncType, &ev.Status,
		&ev.ItemsProcessed, &ev.ItemsCreated, &ev.ItemsUpdated,
		&ev.ErrorMessage, &ev.StartedAt, &ev.CompletedAt, &ev.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	return &ev, nil
}

// SyncOutcome is everything ApplySyncResult writes atomically.
type SyncOutcome struct {
	IntegrationID  uuid.UUID
	SyncType       string
	Status         string
	ErrorMessage   string
	Issues         []models.IssueUpsert
	ItemsProcessed int
	StartedAt      time.Time
	CompletedAt    time.Time
}

// ApplySyncResult upserts the issue batch, appends the sync event, and
// updates the integration's sync bookkeeping in a single transaction.
// Returns created/updated counts from the upsert.
func (s *SyncStore) ApplySyncResult(ctx context.Context, tenantID string, outcome SyncOutcome) (*models.UpsertStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	stats := &models.UpsertStats{}

	for i := range outcome.Issues {
		up := &outcome.Issues[i]
		if err := up.Validate(); err != nil {
			return nil, fmt.Errorf("invalid issue %s/%s: %w", up.Source, up.ExternalID, err)
		}

		tags := up.Tags
		if tags == nil {
			tags = []string{}
		}

		// xmax = 0 distinguishes a fresh insert from a conflict-update.
		var inserted bool

		err := tx.QueryRow(ctx,
			`INSERT INTO issues (tenant_id, integration_id, title, description, source,
				external_id, severity, status, url, tags)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (tenant_id, source, external_id) DO UPDATE SET
				integration_id = EXCLUDED.integration_id,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				severity = EXCLUDED.severity,
				status = EXCLUDED.status,
				url = EXCLUDED.url,
				tags = EXCLUDED.tags,
				updated_at = now()
			 RETURNING (xmax = 0)`,
			tenantID, up.IntegrationID, up.Title, up.Description, up.Source,
			up.ExternalID, up.Severity, up.Status, up.URL, tags).Scan(&inserted)
		if err != nil {
			return nil, fmt.Errorf("upserting issue %s/%s: %w", up.Source, up.ExternalID, err)
		}

		if inserted {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	duration := outcome.CompletedAt.Sub(outcome.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_events (tenant_id, integration_id, sync_type, status,
			items_processed, items_created, items_updated, error_message,
			started_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tenantID, outcome.IntegrationID, outcome.SyncType, outcome.Status,
		outcome.ItemsProcessed, stats.Created, stats.Updated, outcome.ErrorMessage,
		outcome.StartedAt, outcome.CompletedAt, duration); err != nil {
		return nil, fmt.Errorf("recording sync event: %w", err)
	}

	// The watermark is the sync's start time, not its completion: a record
	// updated at the source while the sync was running would fall before a
	// completion watermark and be skipped by the next incremental run.
	if _, err := tx.Exec(ctx,
		`UPDATE tenant_integrations
		 SET last_synced_at = $3, last_sync_status = $4, sync_error_message = $5, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, outcome.IntegrationID, outcome.StartedAt, outcome.Status,
		outcome.ErrorMessage); err != nil {
		return nil, fmt.Errorf("updating sync bookkeeping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing sync result: %w", err)
	}

	return stats, nil
}

// RecordFailure appends a failed sync event and marks the integration,
// without touching last_synced_at, so the next incremental sync re-fetches
// from the previous successful watermark.
func (s *SyncStore) RecordFailure(ctx context.Context, tenantID string, outcome SyncOutcome) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	duration := outcome.CompletedAt.Sub(outcome.StartedAt).Milliseconds()

	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_events (tenant_id, integration_id, sync_type, status,
			items_processed, error_message, started_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, 'failed', $4, $5, $6, $7, $8)`,
		tenantID, outcome.IntegrationID, outcome.SyncType,
		outcome.ItemsProcessed, outcome.ErrorMessage,
		outcome.StartedAt, outcome.CompletedAt, duration); err != nil {
		return fmt.Errorf("recording failed sync event: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tenant_integrations
		 SET last_sync_status = 'failed', sync_error_message = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, outcome.IntegrationID, outcome.ErrorMessage); err != nil {
		return fmt.Errorf("marking integration sync failure: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing sync failure: %w", err)
	}

	return nil
}

// ListEvents returns recent sync events for a tenant, optionally filtered
// by integration.
func (s *SyncStore) ListEvents(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + syncEventColumns + ` FROM sync_events WHERE tenant_id = $1`
	args := []any{tenantID}

	if integrationID != nil {
		args = append(args, *integrationID)
		query += fmt.Sprintf(" AND integration_id = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync events: %w", err)
	}
	defer rows.Close()

	var events []models.SyncEvent

	for rows.Next() {
		ev, err := scanSyncEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning sync event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// Metrics aggregates sync health over the trailing N days.
func (s *SyncStore) Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if days <= 0 || days > 90 {
		days = 7
	}

	m := &models.SyncMetrics{Days: days}

	err := s.Pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'success'),
		        count(*) FILTER (WHERE status = 'failed'),
		        COALESCE(avg(duration_ms), 0),
		        COALESCE(sum(items_processed), 0)
		 FROM sync_events
		 WHERE tenant_id = $1 AND started_at >= now() - make_interval(days => $2)`,
		tenantID, days).Scan(&m.TotalSyncs, &m.Succeeded, &m.Failed, &m.AvgDurationMS, &m.ItemsTotal)
	if err != nil {
		return nil, fmt.Errorf("aggregating sync metrics: %w", err)
	}

	if m.TotalSyncs > 0 {
		m.SuccessRate = float64(m.Succeeded) / float64(m.TotalSyncs)
	}

	return m, nil
}
