package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/provider"
	"github.com/killthenoise/killthenoise/internal/store"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// mockIntegrationStore implements IntegrationStore for testing.
type mockIntegrationStore struct {
	getByIDFn       func(ctx context.Context, tenantID string, id uuid.UUID) (*models.Integration, error)
	getActiveFn     func(ctx context.Context, tenantID, providerType string) (*models.Integration, error)
	listFn          func(ctx context.Context, tenantID, providerType string) ([]models.Integration, error)
	createPendingFn func(ctx context.Context, tenantID, providerType, state string) (*models.Integration, error)
	getByStateFn    func(ctx context.Context, providerType, state string) (*models.Integration, error)
	activateFn      func(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate, baseURL string) (*models.Integration, error)
	createTokenFn   func(ctx context.Context, tenantID, providerType, token string, config map[string]string) (*models.Integration, error)
	updateTokensFn  func(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate) error
	updateConfigFn  func(ctx context.Context, tenantID string, id uuid.UUID, config map[string]string) error
	disconnectFn    func(ctx context.Context, tenantID, providerType string) (int, error)
	cleanupFn       func(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error)
}

func (m *mockIntegrationStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Integration, error) {
	return m.getByIDFn(ctx, tenantID, id)
}

func (m *mockIntegrationStore) GetActive(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	return m.getActiveFn(ctx, tenantID, providerType)
}

func (m *mockIntegrationStore) List(ctx context.Context, tenantID, providerType string) ([]models.Integration, error) {
	return m.listFn(ctx, tenantID, providerType)
}

func (m *mockIntegrationStore) CreatePending(ctx context.Context, tenantID, providerType, state string) (*models.Integration, error) {
	return m.createPendingFn(ctx, tenantID, providerType, state)
}

func (m *mockIntegrationStore) GetByState(ctx context.Context, providerType, state string) (*models.Integration, error) {
	return m.getByStateFn(ctx, providerType, state)
}

func (m *mockIntegrationStore) Activate(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate, baseURL string) (*models.Integration, error) {
	return m.activateFn(ctx, tenantID, id, tokens, baseURL)
}

func (m *mockIntegrationStore) CreateWithToken(ctx context.Context, tenantID, providerType, token string, config map[string]string) (*models.Integration, error) {
	return m.createTokenFn(ctx, tenantID, providerType, token, config)
}

func (m *mockIntegrationStore) UpdateTokens(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate) error {
	return m.updateTokensFn(ctx, tenantID, id, tokens)
}

func (m *mockIntegrationStore) UpdateConfig(ctx context.Context, tenantID string, id uuid.UUID, config map[string]string) error {
	return m.updateConfigFn(ctx, tenantID, id, config)
}

func (m *mockIntegrationStore) Disconnect(ctx context.Context, tenantID, providerType string) (int, error) {
	return m.disconnectFn(ctx, tenantID, providerType)
}

func (m *mockIntegrationStore) CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error) {
	return m.cleanupFn(ctx, tenantID, providerType)
}

// mockOAuth implements OAuthDriver for testing.
type mockOAuth struct {
	authorizeURLFn func(providerType, state string) (string, error)
	exchangeFn     func(ctx context.Context, providerType, code string) (*provider.TokenResponse, error)
	refreshFn      func(ctx context.Context, integration *models.Integration) (*provider.TokenResponse, error)
}

func (m *mockOAuth) AuthorizeURL(providerType, state string) (string, error) {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(providerType, state)
	}

	return "https://example.com/authorize?state=" + state, nil
}

func (m *mockOAuth) Exchange(ctx context.Context, providerType, code string) (*provider.TokenResponse, error) {
	return m.exchangeFn(ctx, providerType, code)
}

func (m *mockOAuth) Refresh(ctx context.Context, integration *models.Integration) (*provider.TokenResponse, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, integration)
	}

	return nil, nil
}

// mockClient implements provider.Client for testing.
type mockClient struct {
	typ     string
	testFn  func(ctx context.Context) error
	fetchFn func(ctx context.Context, since *time.Time, limit int) ([]provider.Ticket, error)
}

func (m *mockClient) Type() string { return m.typ }

func (m *mockClient) TestConnection(ctx context.Context) error {
	if m.testFn != nil {
		return m.testFn(ctx)
	}

	return nil
}

func (m *mockClient) FetchTickets(ctx context.Context, since *time.Time, limit int) ([]provider.Ticket, error) {
	return m.fetchFn(ctx, since, limit)
}

// mockFactory implements ClientFactory for testing.
type mockFactory struct {
	client provider.Client
	err    error
}

func (m *mockFactory) ClientFor(_ *models.Integration) (provider.Client, error) {
	return m.client, m.err
}

// mockSyncStore implements SyncStore for testing.
type mockSyncStore struct {
	mu       sync.Mutex
	applied  []store.SyncOutcome
	failures []store.SyncOutcome

	applyFn   func(ctx context.Context, tenantID string, outcome store.SyncOutcome) (*models.UpsertStats, error)
	eventsFn  func(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error)
	metricsFn func(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error)
}

func (m *mockSyncStore) ApplySyncResult(ctx context.Context, tenantID string, outcome store.SyncOutcome) (*models.UpsertStats, error) {
	m.mu.Lock()
	m.applied = append(m.applied, outcome)
	m.mu.Unlock()

	if m.applyFn != nil {
		return m.applyFn(ctx, tenantID, outcome)
	}

	return &models.UpsertStats{Created: len(outcome.Issues)}, nil
}

func (m *mockSyncStore) RecordFailure(_ context.Context, _ string, outcome store.SyncOutcome) error {
	m.mu.Lock()
	m.failures = append(m.failures, outcome)
	m.mu.Unlock()

	return nil
}

func (m *mockSyncStore) ListEvents(ctx context.Context, tenantID string, integrationID *uuid.UUID, limit int) ([]models.SyncEvent, error) {
	return m.eventsFn(ctx, tenantID, integrationID, limit)
}

func (m *mockSyncStore) Metrics(ctx context.Context, tenantID string, days int) (*models.SyncMetrics, error) {
	return m.metricsFn(ctx, tenantID, days)
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []any
}

func (m *mockPublisher) Publish(_ string, event any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		if evt, ok := e.(map[string]any); ok {
			if t, ok := evt["type"].(string); ok {
				out = append(out, t)
			}
		}
	}

	return out
}

// mockReclusterer records recluster calls.
type mockReclusterer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockReclusterer) Recluster(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, tenantID)

	return m.err
}

// mockGroupStore implements GroupStore for testing.
type mockGroupStore struct {
	mu       sync.Mutex
	replaced []models.GroupUpsert

	listFn func(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error)
}

func (m *mockGroupStore) ReplaceAll(_ context.Context, _ string, groups []models.GroupUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replaced = groups

	return nil
}

func (m *mockGroupStore) List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error) {
	return m.listFn(ctx, tenantID, limit)
}

// mockIssueReader implements IssueReader for testing.
type mockIssueReader struct {
	issues []models.Issue
}

func (m *mockIssueReader) List(_ context.Context, _ string, _ models.IssueFilter) ([]models.Issue, bool, error) {
	return m.issues, false, nil
}

// mockSummarizer implements Summarizer for testing.
type mockSummarizer struct {
	title    string
	summary  string
	err      error
	calls    int
	guidance string
}

func (m *mockSummarizer) SummarizeGroup(_ context.Context, _ []string, guidance string) (string, string, error) {
	m.calls++
	m.guidance = guidance

	return m.title, m.summary, m.err
}
