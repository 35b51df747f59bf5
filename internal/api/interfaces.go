package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/provider"
	"github.com/killthenoise/killthenoise/internal/service"
)

// IntegrationManager is the integration lifecycle surface handlers depend on.
type IntegrationManager interface {
	AuthStatus(ctx context.Context, tenantID, providerType string) (*models.AuthStatus, error)
	Active(ctx context.Context, tenantID, providerType string) (*models.Integration, error)
	Authorize(ctx context.Context, tenantID, providerType string) (*service.AuthorizeResult, error)
	HandleCallback(ctx context.Context, providerType, code, state string) (*models.Integration, error)
	ConnectSlackToken(ctx context.Context, tenantID string, req models.CreateSlackIntegrationRequest) (*models.Integration, error)
	UpdateSlackChannels(ctx context.Context, tenantID string, req models.UpdateSlackChannelsRequest) (*models.Integration, error)
	ListSlackChannels(ctx context.Context, tenantID string) ([]provider.SlackChannel, error)
	Disconnect(ctx context.Context, tenantID, providerType string) (int, error)
	CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error)
	Status(ctx context.Context, tenantID, providerType string) *service.ConnectionStatus
}

// SyncManager triggers and inspects syncs.
type SyncManager interface {
	Events(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error)
	Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error)
}

// SyncEnqueuer queues sync jobs for background execution.
type SyncEnqueuer interface {
	Enqueue(job service.SyncJob) error
}

// IssueRepository reads stored issues.
type IssueRepository interface {
	List(ctx context.Context, tenantID string, filter models.IssueFilter) ([]models.Issue, bool, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Issue, error)
	Top(ctx context.Context, tenantID string, limit, minSeverity int) ([]models.Issue, error)
}

// GroupManager reads and rebuilds issue groups.
type GroupManager interface {
	List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error)
	Recluster(ctx context.Context, tenantID string) error
}

// AnalyticsRepository runs dashboard aggregations.
type AnalyticsRepository interface {
	Metrics(ctx context.Context, tenantID string, days int) (*models.IssueMetrics, error)
	SourceComparison(ctx context.Context, tenantID string, days int) ([]models.SourceMetrics, error)
	Trends(ctx context.Context, tenantID string, days int) ([]models.TrendPoint, error)
	SeverityDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error)
	StatusDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error)
	ChangeVelocity(ctx context.Context, tenantID string, days int) ([]models.VelocityPoint, error)
}

// SettingsRepository reads and writes per-tenant AI instruction settings.
type SettingsRepository interface {
	Get(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	Upsert(ctx context.Context, tenantID string, update models.TenantSettingsUpdate) (*models.TenantSettings, error)
}

// ConnectionProber probes all provider connections for a tenant.
type ConnectionProber interface {
	CheckAll(ctx context.Context, tenantID string) []service.ConnectionStatus
}
