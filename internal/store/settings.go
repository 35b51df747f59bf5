package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/killthenoise/killthenoise/internal/models"
)

// SettingsStore handles per-tenant AI instruction settings.
type SettingsStore struct {
	Base
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(base Base) *SettingsStore {
	return &SettingsStore{Base: base}
}

// Get returns the tenant's settings, or zero-valued defaults when the tenant
// has never saved any.
func (s *SettingsStore) Get(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out models.TenantSettings

	err := s.Pool.QueryRow(ctx,
		`SELECT tenant_id, grouping_instructions, type_instructions,
			severity_instructions, created_at, updated_at
		 FROM tenant_settings WHERE tenant_id = $1`,
		tenantID).Scan(
		&out.TenantID, &out.GroupingInstructions, &out.TypeInstructions,
		&out.SeverityInstructions, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.TenantSettings{TenantID: tenantID}, nil
		}

		return nil, fmt.Errorf("getting tenant settings: %w", err)
	}

	return &out, nil
}

// Upsert applies a partial update: nil fields keep the stored value, set
// fields replace it. Returns the resulting settings.
func (s *SettingsStore) Upsert(ctx context.Context, tenantID string, update models.TenantSettingsUpdate) (*models.TenantSettings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out models.TenantSettings

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO tenant_settings (tenant_id, grouping_instructions, type_instructions, severity_instructions)
		 VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''))
		 ON CONFLICT (tenant_id) DO UPDATE SET
			grouping_instructions = COALESCE($2, tenant_settings.grouping_instructions),
			type_instructions = COALESCE($3, tenant_settings.type_instructions),
			severity_instructions = COALESCE($4, tenant_settings.severity_instructions),
			updated_at = now()
		 RETURNING tenant_id, grouping_instructions, type_instructions,
			severity_instructions, created_at, updated_at`,
		tenantID, update.GroupingInstructions, update.TypeInstructions,
		update.SeverityInstructions).Scan(
		&out.TenantID, &out.GroupingInstructions, &out.TypeInstructions,
		&out.SeverityInstructions, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting tenant settings: %w", err)
	}

	return &out, nil
}
