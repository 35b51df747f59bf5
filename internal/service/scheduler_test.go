package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/killthenoise/killthenoise/internal/models"
)

type mockSchedulerStore struct {
	listSyncableFn func(ctx context.Context) ([]models.Integration, error)
}

func (m *mockSchedulerStore) ListSyncable(ctx context.Context) ([]models.Integration, error) {
	return m.listSyncableFn(ctx)
}

type mockEnqueuer struct {
	jobs []SyncJob
	err  error
}

func (m *mockEnqueuer) Enqueue(job SyncJob) error {
	m.jobs = append(m.jobs, job)
	return m.err
}

func syncableIntegration(providerType string, lastSynced time.Time) models.Integration {
	return models.Integration{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Type:         providerType,
		IsActive:     true,
		LastSyncedAt: &lastSynced,
	}
}

func newTestScheduler(store SchedulerStore, queue SyncEnqueuer, now time.Time) *SyncScheduler {
	s := NewSyncScheduler(store, queue, testLogger())
	s.now = func() time.Time { return now }
	return s
}

func TestSyncScheduler_EnqueuesDueIntegrations(t *testing.T) {
	now := time.Now()

	due := syncableIntegration(models.ProviderHubSpot, now.Add(-10*time.Minute))
	fresh := syncableIntegration(models.ProviderHubSpot, now.Add(-time.Minute))

	store := &mockSchedulerStore{listSyncableFn: func(context.Context) ([]models.Integration, error) {
		return []models.Integration{due, fresh}, nil
	}}
	queue := &mockEnqueuer{}

	newTestScheduler(store, queue, now).sweep(context.Background())

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(queue.jobs))
	}

	job := queue.jobs[0]
	if job.IntegrationID != due.ID {
		t.Errorf("enqueued integration %s, want %s", job.IntegrationID, due.ID)
	}
	if job.TenantID != due.TenantID.String() {
		t.Errorf("tenant = %q, want %q", job.TenantID, due.TenantID)
	}
	if job.SyncType != models.SyncIncremental {
		t.Errorf("sync type = %q, want incremental", job.SyncType)
	}
}

func TestSyncScheduler_PerProviderIntervals(t *testing.T) {
	now := time.Now()

	// 12 minutes since last sync: past HubSpot's 5m and Jira's 10m windows
	// but inside Slack's 15m default.
	last := now.Add(-12 * time.Minute)
	hubspot := syncableIntegration(models.ProviderHubSpot, last)
	jira := syncableIntegration(models.ProviderJira, last)
	slack := syncableIntegration(models.ProviderSlack, last)

	store := &mockSchedulerStore{listSyncableFn: func(context.Context) ([]models.Integration, error) {
		return []models.Integration{hubspot, jira, slack}, nil
	}}
	queue := &mockEnqueuer{}

	newTestScheduler(store, queue, now).sweep(context.Background())

	if len(queue.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(queue.jobs))
	}
	for _, job := range queue.jobs {
		if job.Provider == models.ProviderSlack {
			t.Error("slack integration enqueued before its interval elapsed")
		}
	}
}

func TestSyncScheduler_SkipsInProgress(t *testing.T) {
	now := time.Now()
	due := syncableIntegration(models.ProviderJira, now.Add(-time.Hour))

	store := &mockSchedulerStore{listSyncableFn: func(context.Context) ([]models.Integration, error) {
		return []models.Integration{due, due}, nil
	}}
	queue := &mockEnqueuer{err: models.ErrSyncInProgress}

	// Both enqueues fail with in-progress; the sweep must carry on quietly.
	newTestScheduler(store, queue, now).sweep(context.Background())

	if len(queue.jobs) != 2 {
		t.Fatalf("attempted %d enqueues, want 2", len(queue.jobs))
	}
}

func TestSyncScheduler_StopsSweepWhenQueueFull(t *testing.T) {
	now := time.Now()
	first := syncableIntegration(models.ProviderHubSpot, now.Add(-time.Hour))
	second := syncableIntegration(models.ProviderHubSpot, now.Add(-time.Hour))

	store := &mockSchedulerStore{listSyncableFn: func(context.Context) ([]models.Integration, error) {
		return []models.Integration{first, second}, nil
	}}
	queue := &mockEnqueuer{err: ErrQueueFull}

	newTestScheduler(store, queue, now).sweep(context.Background())

	if len(queue.jobs) != 1 {
		t.Fatalf("attempted %d enqueues, want 1 (sweep aborts on full queue)", len(queue.jobs))
	}
}

func TestSyncScheduler_ListErrorSkipsSweep(t *testing.T) {
	store := &mockSchedulerStore{listSyncableFn: func(context.Context) ([]models.Integration, error) {
		return nil, errors.New("connection refused")
	}}
	queue := &mockEnqueuer{}

	newTestScheduler(store, queue, time.Now()).sweep(context.Background())

	if len(queue.jobs) != 0 {
		t.Fatalf("enqueued %d jobs after list error, want 0", len(queue.jobs))
	}
}
