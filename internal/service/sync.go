package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/metrics"
	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/store"
)

// SyncStore is the transactional sync write path SyncService depends on.
type SyncStore interface {
	ApplySyncResult(ctx context.Context, tenantID string, outcome store.SyncOutcome) (*models.UpsertStats, error)
	RecordFailure(ctx context.Context, tenantID string, outcome store.SyncOutcome) error
	ListEvents(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error)
	Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error)
}

// Reclusterer rebuilds issue groups after a sync lands new issues.
type Reclusterer interface {
	Recluster(ctx context.Context, tenantID string) error
}

// EventPublisher pushes sync lifecycle events to connected clients.
type EventPublisher interface {
	Publish(tenantID string, event any)
}

// SyncResult summarizes one completed sync run.
type SyncResult struct {
	Provider       string              `json:"provider"`
	SyncType       string              `json:"sync_type"`
	ItemsProcessed int                 `json:"items_processed"`
	Created        int                 `json:"created"`
	Updated        int                 `json:"updated"`
	Duration       time.Duration       `json:"-"`
	DurationMS     int64               `json:"duration_ms"`
	Stats          *models.UpsertStats `json:"-"`
}

// SyncService runs one sync end to end: resolve credentials, fetch from the
// provider, and commit issues plus bookkeeping in one transaction.
type SyncService struct {
	integrations *IntegrationService
	syncs        SyncStore
	cluster      Reclusterer
	events       EventPublisher
	log          *logrus.Logger

	fetchLimit int
}

// NewSyncService creates a SyncService. cluster and events may be nil.
func NewSyncService(integrations *IntegrationService, syncs SyncStore, cluster Reclusterer, events EventPublisher, log *logrus.Logger) *SyncService {
	return &SyncService{
		integrations: integrations,
		syncs:        syncs,
		cluster:      cluster,
		events:       events,
		log:          log,
		fetchLimit:   1000,
	}
}

// RunSync executes one sync for the provider. Incremental syncs fetch from
// the last successful watermark; a failed run never advances it.
func (s *SyncService) RunSync(ctx context.Context, tenantID, providerType, syncType string) (*SyncResult, error) {
	started := time.Now()

	integration, err := s.integrations.connected(ctx, tenantID, providerType)
	if err != nil {
		return nil, err
	}

	s.publish(tenantID, "sync.started", map[string]any{
		"provider":  providerType,
		"sync_type": syncType,
	})

	result, err := s.run(ctx, tenantID, integration, syncType, started)
	if err != nil {
		completed := time.Now()
		metrics.SyncsTotal.WithLabelValues(providerType, models.SyncStatusFailed).Inc()

		if recErr := s.syncs.RecordFailure(ctx, tenantID, store.SyncOutcome{
			IntegrationID: integration.ID,
			SyncType:      syncType,
			ErrorMessage:  err.Error(),
			StartedAt:     started,
			CompletedAt:   completed,
		}); recErr != nil {
			s.log.WithError(recErr).WithField("tenant_id", tenantID).Error("recording sync failure")
		}

		s.publish(tenantID, "sync.failed", map[string]any{
			"provider": providerType,
			"error":    err.Error(),
		})

		return nil, err
	}

	metrics.SyncsTotal.WithLabelValues(providerType, models.SyncStatusSuccess).Inc()
	metrics.SyncDuration.WithLabelValues(providerType).Observe(result.Duration.Seconds())
	metrics.IssuesUpserted.WithLabelValues(providerType).Add(float64(result.Created + result.Updated))

	s.publish(tenantID, "sync.completed", map[string]any{
		"provider":        providerType,
		"sync_type":       syncType,
		"items_processed": result.ItemsProcessed,
		"created":         result.Created,
		"updated":         result.Updated,
		"duration_ms":     result.DurationMS,
	})

	if s.cluster != nil {
		// Clustering failures never fail the sync that triggered them.
		if err := s.cluster.Recluster(ctx, tenantID); err != nil {
			s.log.WithError(err).WithField("tenant_id", tenantID).Warn("reclustering after sync failed")
		}
	}

	return result, nil
}

func (s *SyncService) run(ctx context.Context, tenantID string, integration *models.Integration, syncType string, started time.Time) (*SyncResult, error) {
	client, err := s.integrations.factory.ClientFor(integration)
	if err != nil {
		return nil, err
	}

	var since *time.Time
	if syncType == models.SyncIncremental && integration.LastSyncedAt != nil {
		since = integration.LastSyncedAt
	}

	tickets, err := client.FetchTickets(ctx, since, s.fetchLimit)
	if err != nil {
		return nil, err
	}

	upserts := make([]models.IssueUpsert, 0, len(tickets))
	for _, t := range tickets {
		upserts = append(upserts, models.IssueUpsert{
			IntegrationID: integration.ID,
			Title:         t.Title,
			Description:   t.Description,
			Source:        integration.Type,
			ExternalID:    t.ExternalID,
			Severity:      t.Severity,
			Status:        t.Status,
			URL:           t.URL,
			Tags:          t.Tags,
		})
	}

	completed := time.Now()

	stats, err := s.syncs.ApplySyncResult(ctx, tenantID, store.SyncOutcome{
		IntegrationID:  integration.ID,
		SyncType:       syncType,
		Status:         models.SyncStatusSuccess,
		Issues:         upserts,
		ItemsProcessed: len(tickets),
		StartedAt:      started,
		CompletedAt:    completed,
	})
	if err != nil {
		return nil, err
	}

	duration := completed.Sub(started)

	s.log.WithFields(logrus.Fields{
		"tenant_id":       tenantID,
		"provider":        integration.Type,
		"sync_type":       syncType,
		"items_processed": len(tickets),
		"created":         stats.Created,
		"updated":         stats.Updated,
		"duration_ms":     duration.Milliseconds(),
	}).Info("sync completed")

	return &SyncResult{
		Provider:       integration.Type,
		SyncType:       syncType,
		ItemsProcessed: len(tickets),
		Created:        stats.Created,
		Updated:        stats.Updated,
		Duration:       duration,
		DurationMS:     duration.Milliseconds(),
		Stats:          stats,
	}, nil
}

// Events returns recent sync events.
func (s *SyncService) Events(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error) {
	return s.syncs.ListEvents(ctx, tenantID, integrationID, limit)
}

// Metrics returns aggregated sync health.
func (s *SyncService) Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error) {
	return s.syncs.Metrics(ctx, tenantID, days)
}

func (s *SyncService) publish(tenantID, eventType string, data map[string]any) {
	if s.events == nil {
		return
	}

	s.events.Publish(tenantID, map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
}
