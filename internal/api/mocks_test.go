package api_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/provider"
	"github.com/killthenoise/killthenoise/internal/service"
)

// mockIntegrations implements api.IntegrationManager for testing.
type mockIntegrations struct {
	authStatusFn     func(ctx context.Context, tenantID, providerType string) (*models.AuthStatus, error)
	activeFn         func(ctx context.Context, tenantID, providerType string) (*models.Integration, error)
	authorizeFn      func(ctx context.Context, tenantID, providerType string) (*service.AuthorizeResult, error)
	callbackFn       func(ctx context.Context, providerType, code, state string) (*models.Integration, error)
	connectSlackFn   func(ctx context.Context, tenantID string, req models.CreateSlackIntegrationRequest) (*models.Integration, error)
	updateChannelsFn func(ctx context.Context, tenantID string, req models.UpdateSlackChannelsRequest) (*models.Integration, error)
	listChannelsFn   func(ctx context.Context, tenantID string) ([]provider.SlackChannel, error)
	disconnectFn     func(ctx context.Context, tenantID, providerType string) (int, error)
	cleanupFn        func(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error)
	statusFn         func(ctx context.Context, tenantID, providerType string) *service.ConnectionStatus
}

func (m *mockIntegrations) AuthStatus(ctx context.Context, tenantID, providerType string) (*models.AuthStatus, error) {
	return m.authStatusFn(ctx, tenantID, providerType)
}

func (m *mockIntegrations) Active(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	return m.activeFn(ctx, tenantID, providerType)
}

func (m *mockIntegrations) Authorize(ctx context.Context, tenantID, providerType string) (*service.AuthorizeResult, error) {
	return m.authorizeFn(ctx, tenantID, providerType)
}

func (m *mockIntegrations) HandleCallback(ctx context.Context, providerType, code, state string) (*models.Integration, error) {
	return m.callbackFn(ctx, providerType, code, state)
}

func (m *mockIntegrations) ConnectSlackToken(ctx context.Context, tenantID string, req models.CreateSlackIntegrationRequest) (*models.Integration, error) {
	return m.connectSlackFn(ctx, tenantID, req)
}

func (m *mockIntegrations) UpdateSlackChannels(ctx context.Context, tenantID string, req models.UpdateSlackChannelsRequest) (*models.Integration, error) {
	return m.updateChannelsFn(ctx, tenantID, req)
}

func (m *mockIntegrations) ListSlackChannels(ctx context.Context, tenantID string) ([]provider.SlackChannel, error) {
	return m.listChannelsFn(ctx, tenantID)
}

func (m *mockIntegrations) Disconnect(ctx context.Context, tenantID, providerType string) (int, error) {
	return m.disconnectFn(ctx, tenantID, providerType)
}

func (m *mockIntegrations) CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error) {
	return m.cleanupFn(ctx, tenantID, providerType)
}

func (m *mockIntegrations) Status(ctx context.Context, tenantID, providerType string) *service.ConnectionStatus {
	return m.statusFn(ctx, tenantID, providerType)
}

// mockSyncs implements api.SyncManager for testing.
type mockSyncs struct {
	eventsFn  func(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error)
	metricsFn func(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error)
}

func (m *mockSyncs) Events(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error) {
	return m.eventsFn(ctx, tenantID, integrationID, limit)
}

func (m *mockSyncs) Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error) {
	return m.metricsFn(ctx, tenantID, days)
}

// mockQueue implements api.SyncEnqueuer for testing.
type mockQueue struct {
	enqueueFn func(job service.SyncJob) error
	jobs      []service.SyncJob
}

func (m *mockQueue) Enqueue(job service.SyncJob) error {
	m.jobs = append(m.jobs, job)
	if m.enqueueFn != nil {
		return m.enqueueFn(job)
	}

	return nil
}

// mockIssueRepo implements api.IssueRepository for testing.
type mockIssueRepo struct {
	listFn func(ctx context.Context, tenantID string, filter models.IssueFilter) ([]models.Issue, bool, error)
	getFn  func(ctx context.Context, tenantID string, id uuid.UUID) (*models.Issue, error)
	topFn  func(ctx context.Context, tenantID string, limit, minSeverity int) ([]models.Issue, error)
}

func (m *mockIssueRepo) List(ctx context.Context, tenantID string, filter models.IssueFilter) ([]models.Issue, bool, error) {
	return m.listFn(ctx, tenantID, filter)
}

func (m *mockIssueRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Issue, error) {
	return m.getFn(ctx, tenantID, id)
}

func (m *mockIssueRepo) Top(ctx context.Context, tenantID string, limit, minSeverity int) ([]models.Issue, error) {
	return m.topFn(ctx, tenantID, limit, minSeverity)
}

// mockGroups implements api.GroupManager for testing.
type mockGroups struct {
	listFn      func(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error)
	reclusterFn func(ctx context.Context, tenantID string) error
}

func (m *mockGroups) List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error) {
	return m.listFn(ctx, tenantID, limit)
}

func (m *mockGroups) Recluster(ctx context.Context, tenantID string) error {
	return m.reclusterFn(ctx, tenantID)
}

// mockAnalytics implements api.AnalyticsRepository for testing.
type mockAnalytics struct {
	metricsFn  func(ctx context.Context, tenantID string, days int) (*models.IssueMetrics, error)
	sourcesFn  func(ctx context.Context, tenantID string, days int) ([]models.SourceMetrics, error)
	trendsFn   func(ctx context.Context, tenantID string, days int) ([]models.TrendPoint, error)
	severityFn func(ctx context.Context, tenantID string, days int) (models.Distribution, error)
	statusFn   func(ctx context.Context, tenantID string, days int) (models.Distribution, error)
	velocityFn func(ctx context.Context, tenantID string, days int) ([]models.VelocityPoint, error)
}

func (m *mockAnalytics) Metrics(ctx context.Context, tenantID string, days int) (*models.IssueMetrics, error) {
	return m.metricsFn(ctx, tenantID, days)
}

func (m *mockAnalytics) SourceComparison(ctx context.Context, tenantID string, days int) ([]models.SourceMetrics, error) {
	return m.sourcesFn(ctx, tenantID, days)
}

func (m *mockAnalytics) Trends(ctx context.Context, tenantID string, days int) ([]models.TrendPoint, error) {
	return m.trendsFn(ctx, tenantID, days)
}

func (m *mockAnalytics) SeverityDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error) {
	return m.severityFn(ctx, tenantID, days)
}

func (m *mockAnalytics) StatusDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error) {
	return m.statusFn(ctx, tenantID, days)
}

func (m *mockAnalytics) ChangeVelocity(ctx context.Context, tenantID string, days int) ([]models.VelocityPoint, error) {
	return m.velocityFn(ctx, tenantID, days)
}
