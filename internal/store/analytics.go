package store

import (
	"context"
	"fmt"

	"github.com/killthenoise/killthenoise/internal/models"
)

// AnalyticsStore runs read-only aggregate queries over the issue store.
// All queries are tenant-scoped and bounded to a trailing day range.
type AnalyticsStore struct {
	Base
}

// NewAnalyticsStore creates a new AnalyticsStore.
func NewAnalyticsStore(base Base) *AnalyticsStore {
	return &AnalyticsStore{Base: base}
}

func clampDays(days int) int {
	if days <= 0 || days > 365 {
		return 30
	}

	return days
}

// Metrics returns the headline issue counts for the dashboard.
func (s *AnalyticsStore) Metrics(ctx context.Context, tenantID string, days int) (*models.IssueMetrics, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	days = clampDays(days)
	m := &models.IssueMetrics{TimeRangeDays: days}

	var resolved int

	err := s.Pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status NOT IN ('resolved', 'closed')),
		        count(*) FILTER (WHERE status IN ('resolved', 'closed')),
		        COALESCE(avg(severity), 0)
		 FROM issues
		 WHERE tenant_id = $1 AND updated_at >= now() - make_interval(days => $2)`,
		tenantID, days).Scan(&m.TotalIssues, &m.OpenIssues, &resolved, &m.AvgSeverity)
	if err != nil {
		return nil, fmt.Errorf("aggregating issue metrics: %w", err)
	}

	if m.TotalIssues > 0 {
		m.ResolvedRatio = float64(resolved) / float64(m.TotalIssues)
	}

	return m, nil
}

// SourceComparison breaks the metrics down per source.
func (s *AnalyticsStore) SourceComparison(ctx context.Context, tenantID string, days int) ([]models.SourceMetrics, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT source,
		        count(*),
		        count(*) FILTER (WHERE status NOT IN ('resolved', 'closed')),
		        COALESCE(avg(severity), 0)
		 FROM issues
		 WHERE tenant_id = $1 AND updated_at >= now() - make_interval(days => $2)
		 GROUP BY source
		 ORDER BY count(*) DESC`,
		tenantID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("comparing sources: %w", err)
	}
	defer rows.Close()

	var out []models.SourceMetrics

	for rows.Next() {
		var sm models.SourceMetrics
		if err := rows.Scan(&sm.Source, &sm.TotalIssues, &sm.OpenIssues, &sm.AvgSeverity); err != nil {
			return nil, fmt.Errorf("scanning source metrics: %w", err)
		}
		out = append(out, sm)
	}

	return out, rows.Err()
}

// Trends returns daily issue-creation counts, gap-filled so every day in the
// range appears even when no issues were created.
func (s *AnalyticsStore) Trends(ctx context.Context, tenantID string, days int) ([]models.TrendPoint, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT to_char(d.day, 'YYYY-MM-DD'), count(i.id)
		 FROM generate_series(
			date_trunc('day', now()) - make_interval(days => $2 - 1),
			date_trunc('day', now()),
			interval '1 day') AS d(day)
		 LEFT JOIN issues i
			ON i.tenant_id = $1 AND date_trunc('day', i.created_at) = d.day
		 GROUP BY d.day
		 ORDER BY d.day`,
		tenantID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("querying trends: %w", err)
	}
	defer rows.Close()

	var out []models.TrendPoint

	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("scanning trend point: %w", err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

// SeverityDistribution buckets issues by severity level.
func (s *AnalyticsStore) SeverityDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error) {
	return s.distribution(ctx, tenantID, days, "severity::text")
}

// StatusDistribution buckets issues by status.
func (s *AnalyticsStore) StatusDistribution(ctx context.Context, tenantID string, days int) (models.Distribution, error) {
	return s.distribution(ctx, tenantID, days, "status")
}

func (s *AnalyticsStore) distribution(ctx context.Context, tenantID string, days int, column string) (models.Distribution, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+column+`, count(*)
		 FROM issues
		 WHERE tenant_id = $1 AND updated_at >= now() - make_interval(days => $2)
		 GROUP BY 1`,
		tenantID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("querying distribution: %w", err)
	}
	defer rows.Close()

	dist := models.Distribution{}

	for rows.Next() {
		var (
			label string
			count int
		)
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("scanning distribution bucket: %w", err)
		}
		dist[label] = count
	}

	return dist, rows.Err()
}

// ChangeVelocity returns created vs resolved counts per day.
func (s *AnalyticsStore) ChangeVelocity(ctx context.Context, tenantID string, days int) ([]models.VelocityPoint, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT to_char(d.day, 'YYYY-MM-DD'),
		        count(i.id) FILTER (WHERE date_trunc('day', i.created_at) = d.day),
		        count(i.id) FILTER (WHERE i.status IN ('resolved', 'closed')
		                            AND date_trunc('day', i.updated_at) = d.day)
		 FROM generate_series(
			date_trunc('day', now()) - make_interval(days => $2 - 1),
			date_trunc('day', now()),
			interval '1 day') AS d(day)
		 LEFT JOIN issues i
			ON i.tenant_id = $1
			AND (date_trunc('day', i.created_at) = d.day
			     OR date_trunc('day', i.updated_at) = d.day)
		 GROUP BY d.day
		 ORDER BY d.day`,
		tenantID, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("querying change velocity: %w", err)
	}
	defer rows.Close()

	var out []models.VelocityPoint

	for rows.Next() {
		var p models.VelocityPoint
		if err := rows.Scan(&p.Date, &p.Created, &p.Resolved); err != nil {
			return nil, fmt.Errorf("scanning velocity point: %w", err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}
