package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/killthenoise/killthenoise/internal/models"
)

// IssueStore handles reads over the normalized issues table.
// Sync-path writes go through SyncStore so they share a transaction with
// the sync bookkeeping.
type IssueStore struct {
	Base
}

// NewIssueStore creates a new IssueStore.
func NewIssueStore(base Base) *IssueStore {
	return &IssueStore{Base: base}
}

const issueColumns = `id, tenant_id, integration_id, title, description, source,
	external_id, severity, status, url, tags, frequency, created_at, updated_at`

func scanIssue(scan func(dest ...any) error) (*models.Issue, error) {
	var is models.Issue

	err := scan(
		&is.ID, &is.TenantID, &is.IntegrationID, &is.Title, &is.Description,
		&is.Source, &is.ExternalID, &is.Severity, &is.Status, &is.URL,
		&is.Tags, &is.Frequency, &is.CreatedAt, &is.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &is, nil
}

// List returns tenant issues with optional filters, newest first.
// Returns hasMore by fetching one row past the limit.
func (s *IssueStore) List(ctx context.Context, tenantID string, filter models.IssueFilter) ([]models.Issue, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	query := `SELECT ` + issueColumns + ` FROM issues WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if filter.IntegrationID != nil {
		args = append(args, *filter.IntegrationID)
		query += fmt.Sprintf(" AND integration_id = $%d", len(args))
	}

	if filter.MinSeverity > 0 {
		args = append(args, filter.MinSeverity)
		query += fmt.Sprintf(" AND severity >= $%d", len(args))
	}

	args = append(args, filter.Limit+1, filter.Offset)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue

	for rows.Next() {
		is, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, false, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, *is)
	}

	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(issues) > filter.Limit
	if hasMore {
		issues = issues[:filter.Limit]
	}

	return issues, hasMore, nil
}

// Get returns a single issue by ID.
func (s *IssueStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Issue, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + issueColumns + ` FROM issues WHERE tenant_id = $1 AND id = $2`

	is, err := scanIssue(s.Pool.QueryRow(ctx, query, tenantID, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrIssueNotFound
		}

		return nil, fmt.Errorf("getting issue: %w", err)
	}

	return is, nil
}

// Top returns the highest-severity, most recently updated issues.
func (s *IssueStore) Top(ctx context.Context, tenantID string, limit, minSeverity int) ([]models.Issue, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `SELECT ` + issueColumns + ` FROM issues
		WHERE tenant_id = $1 AND severity >= $2
		ORDER BY severity DESC, updated_at DESC
		LIMIT $3`

	if minSeverity < models.MinSeverity {
		minSeverity = models.MinSeverity
	}

	rows, err := s.Pool.Query(ctx, query, tenantID, minSeverity, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue

	for rows.Next() {
		is, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, *is)
	}

	return issues, rows.Err()
}
