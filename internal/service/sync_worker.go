package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/metrics"
	"github.com/killthenoise/killthenoise/internal/models"
)

// ErrQueueFull is returned when the sync queue cannot accept another job.
var ErrQueueFull = errors.New("sync queue is full")

// SyncJob is one queued sync request.
type SyncJob struct {
	TenantID      string
	IntegrationID uuid.UUID
	Provider      string
	SyncType      string
}

// SyncRunner executes one sync.
type SyncRunner interface {
	RunSync(ctx context.Context, tenantID, providerType, syncType string) (*SyncResult, error)
}

// SyncWorker processes sync jobs asynchronously. At most one job per
// integration is queued or running at a time; a second trigger for the same
// integration is rejected with ErrSyncInProgress instead of piling up.
type SyncWorker struct {
	runner      SyncRunner
	log         *logrus.Logger
	jobs        chan SyncJob
	concurrency int

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewSyncWorker creates a worker with the given queue capacity and concurrency.
func NewSyncWorker(runner SyncRunner, log *logrus.Logger, queueSize, concurrency int) *SyncWorker {
	if queueSize <= 0 {
		queueSize = 100
	}
	if concurrency <= 0 {
		concurrency = 2
	}

	return &SyncWorker{
		runner:      runner,
		log:         log,
		jobs:        make(chan SyncJob, queueSize),
		concurrency: concurrency,
		inflight:    make(map[uuid.UUID]struct{}),
	}
}

// Enqueue queues a sync job. Returns models.ErrSyncInProgress when a job for
// the same integration is already queued or running, ErrQueueFull when the
// queue has no room.
func (w *SyncWorker) Enqueue(job SyncJob) error {
	if !w.tryAcquire(job.IntegrationID) {
		return models.ErrSyncInProgress
	}

	select {
	case w.jobs <- job:
		metrics.SyncQueueDepth.Set(float64(len(w.jobs)))

		return nil
	default:
		w.release(job.IntegrationID)
		w.log.WithFields(logrus.Fields{
			"tenant_id": job.TenantID,
			"provider":  job.Provider,
		}).Warn("sync queue full, rejecting job")

		return ErrQueueFull
	}
}

// InProgress reports whether a sync is queued or running for the integration.
func (w *SyncWorker) InProgress(integrationID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.inflight[integrationID]

	return ok
}

// Run spawns N worker goroutines and blocks until the context is cancelled
// and all workers have drained. Call in a goroutine.
func (w *SyncWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithField("concurrency", w.concurrency).Info("starting sync workers")

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	w.log.Info("all sync workers stopped")
}

func (w *SyncWorker) runWorker(ctx context.Context, id int) {
	w.log.WithField("worker_id", id).Debug("sync worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			metrics.SyncQueueDepth.Set(float64(len(w.jobs)))
			w.process(ctx, job)
		}
	}
}

func (w *SyncWorker) process(ctx context.Context, job SyncJob) {
	defer w.release(job.IntegrationID)

	if _, err := w.runner.RunSync(ctx, job.TenantID, job.Provider, job.SyncType); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": job.TenantID,
			"provider":  job.Provider,
			"sync_type": job.SyncType,
		}).Warn("sync job failed")
	}
}

func (w *SyncWorker) tryAcquire(integrationID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.inflight[integrationID]; ok {
		return false
	}

	w.inflight[integrationID] = struct{}{}

	return true
}

func (w *SyncWorker) release(integrationID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.inflight, integrationID)
}
