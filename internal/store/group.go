package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/killthenoise/killthenoise/internal/models"
)

// GroupStore persists clustered issue groups, keyed by (tenant, signature).
type GroupStore struct {
	Base
}

// NewGroupStore creates a new GroupStore.
func NewGroupStore(base Base) *GroupStore {
	return &GroupStore{Base: base}
}

const groupColumns = `id, tenant_id, signature, title, summary, severity,
	status, frequency, sources, last_seen_at, created_at, updated_at`

func scanGroup(scan func(dest ...any) error) (*models.IssueGroup, error) {
	var (
		g       models.IssueGroup
		sources []byte
	)

	err := scan(
		&g.ID, &g.TenantID, &g.Signature, &g.Title, &g.Summary, &g.Severity,
		&g.Status, &g.Frequency, &sources, &g.LastSeenAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &g.Sources); err != nil {
			return nil, fmt.Errorf("decoding group sources: %w", err)
		}
	}

	return &g, nil
}

// ReplaceAll rewrites the tenant's groups to match a fresh clustering pass.
// Upserts by signature and removes groups whose signature no longer exists,
// all in one transaction so readers never see a half-applied clustering.
func (s *GroupStore) ReplaceAll(ctx context.Context, tenantID string, groups []models.GroupUpsert) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	signatures := make([]string, 0, len(groups))

	for i := range groups {
		g := &groups[i]
		signatures = append(signatures, g.Signature)

		sources, err := json.Marshal(g.Sources)
		if err != nil {
			return fmt.Errorf("encoding group sources: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO issue_groups (tenant_id, signature, title, summary,
				severity, frequency, sources, last_seen_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			 ON CONFLICT (tenant_id, signature) DO UPDATE SET
				title = EXCLUDED.title,
				summary = EXCLUDED.summary,
				severity = EXCLUDED.severity,
				frequency = EXCLUDED.frequency,
				sources = EXCLUDED.sources,
				last_seen_at = now(),
				updated_at = now()`,
			tenantID, g.Signature, g.Title, g.Summary,
			g.Severity, g.Frequency, sources); err != nil {
			return fmt.Errorf("upserting group %s: %w", g.Signature, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM issue_groups WHERE tenant_id = $1 AND signature <> ALL($2)`,
		tenantID, signatures); err != nil {
		return fmt.Errorf("pruning stale groups: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing group replacement: %w", err)
	}

	return nil
}

// List returns the tenant's groups largest first.
func (s *GroupStore) List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+groupColumns+`
		 FROM issue_groups
		 WHERE tenant_id = $1
		 ORDER BY frequency DESC, severity DESC, updated_at DESC
		 LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing issue groups: %w", err)
	}
	defer rows.Close()

	var groups []models.IssueGroup

	for rows.Next() {
		g, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning issue group: %w", err)
		}
		groups = append(groups, *g)
	}

	return groups, rows.Err()
}

// Get returns one group by ID.
func (s *GroupStore) Get(ctx context.Context, tenantID string, id string) (*models.IssueGroup, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	g, err := scanGroup(s.Pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM issue_groups WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrGroupNotFound
		}
		return nil, fmt.Errorf("getting issue group: %w", err)
	}

	return g, nil
}
