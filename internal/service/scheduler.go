package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// Per-provider intervals between automatic incremental syncs. HubSpot moves
// fastest, Jira issues change less often, Slack falls back to the default.
var syncIntervals = map[string]time.Duration{
	models.ProviderHubSpot: 5 * time.Minute,
	models.ProviderJira:    10 * time.Minute,
}

const (
	defaultSyncInterval = 15 * time.Minute
	schedulerTick       = time.Minute
)

// SchedulerStore lists integrations eligible for periodic syncs.
type SchedulerStore interface {
	ListSyncable(ctx context.Context) ([]models.Integration, error)
}

// SyncEnqueuer accepts sync jobs. Satisfied by SyncWorker, which already
// rejects a second job for the same integration.
type SyncEnqueuer interface {
	Enqueue(job SyncJob) error
}

// SyncScheduler triggers periodic incremental syncs for every active
// integration that has synced at least once. It only decides when a sync is
// due; execution and per-integration dedup belong to the worker.
type SyncScheduler struct {
	store SchedulerStore
	queue SyncEnqueuer
	log   *logrus.Logger
	tick  time.Duration
	now   func() time.Time
}

// NewSyncScheduler creates a scheduler that sweeps once a minute.
func NewSyncScheduler(store SchedulerStore, queue SyncEnqueuer, log *logrus.Logger) *SyncScheduler {
	return &SyncScheduler{
		store: store,
		queue: queue,
		log:   log,
		tick:  schedulerTick,
		now:   time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled. Call in a goroutine.
func (s *SyncScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info("starting sync scheduler")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep enqueues an incremental sync for every integration whose watermark is
// older than its provider's interval. A full queue aborts the sweep; the
// remaining integrations are still due on the next tick.
func (s *SyncScheduler) sweep(ctx context.Context) {
	integrations, err := s.store.ListSyncable(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scheduler sweep failed to list integrations")
		return
	}

	now := s.now()

	for _, in := range integrations {
		if in.LastSyncedAt == nil || now.Sub(*in.LastSyncedAt) < intervalFor(in.Type) {
			continue
		}

		err := s.queue.Enqueue(SyncJob{
			TenantID:      in.TenantID.String(),
			IntegrationID: in.ID,
			Provider:      in.Type,
			SyncType:      models.SyncIncremental,
		})

		switch {
		case errors.Is(err, models.ErrSyncInProgress):
			// A manual or still-running sync covers this integration.
		case errors.Is(err, ErrQueueFull):
			s.log.Warn("sync queue full, deferring remaining scheduled syncs")
			return
		case err != nil:
			s.log.WithError(err).WithFields(logrus.Fields{
				"tenant_id": in.TenantID,
				"provider":  in.Type,
			}).Warn("failed to enqueue scheduled sync")
		default:
			s.log.WithFields(logrus.Fields{
				"tenant_id": in.TenantID,
				"provider":  in.Type,
			}).Info("scheduled incremental sync")
		}
	}
}

func intervalFor(providerType string) time.Duration {
	if d, ok := syncIntervals[providerType]; ok {
		return d
	}

	return defaultSyncInterval
}
