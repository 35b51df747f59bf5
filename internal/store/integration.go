package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// IntegrationStore handles tenant_integrations rows and the OAuth lifecycle.
type IntegrationStore struct {
	Base
}

// NewIntegrationStore creates a new IntegrationStore.
func NewIntegrationStore(base Base) *IntegrationStore {
	return &IntegrationStore{Base: base}
}

const integrationColumns = `id, tenant_id, integration_type, is_active, auth_kind,
	access_token, refresh_token, token_expires_at, base_url, oauth_state, config,
	last_synced_at, last_sync_status, sync_error_message, created_at, updated_at`

func scanIntegration(scan func(dest ...any) error) (*models.Integration, error) {
	var in models.Integration

	err := scan(
		&in.ID, &in.TenantID, &in.Type, &in.IsActive, &in.AuthKind,
		&in.AccessToken, &in.RefreshToken, &in.TokenExpiresAt, &in.BaseURL,
		&in.OAuthState, &in.Config, &in.LastSyncedAt, &in.LastSyncStatus,
		&in.SyncErrorMsg, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &in, nil
}

// decrypt replaces the token ciphertexts on an integration with plaintext.
func (s *IntegrationStore) decrypt(ctx context.Context, in *models.Integration) error {
	tenantID := in.TenantID.String()

	access, err := s.decryptToken(ctx, tenantID, in.AccessToken)
	if err != nil {
		return err
	}

	refresh, err := s.decryptToken(ctx, tenantID, in.RefreshToken)
	if err != nil {
		return err
	}

	in.AccessToken = access
	in.RefreshToken = refresh

	return nil
}

// GetByID returns one integration for the tenant, tokens decrypted.
func (s *IntegrationStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM tenant_integrations
		WHERE tenant_id = $1 AND id = $2`

	in, err := scanIntegration(s.Pool.QueryRow(ctx, query, tenantID, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, fmt.Errorf("getting integration: %w", err)
	}

	if err := s.decrypt(ctx, in); err != nil {
		return nil, err
	}

	return in, nil
}

// GetActive returns the single active integration for (tenant, provider),
// or models.ErrIntegrationNotFound.
func (s *IntegrationStore) GetActive(ctx context.Context, tenantID, providerType string) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM tenant_integrations
		WHERE tenant_id = $1 AND integration_type = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1`

	in, err := scanIntegration(s.Pool.QueryRow(ctx, query, tenantID, providerType).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, fmt.Errorf("getting active integration: %w", err)
	}

	if err := s.decrypt(ctx, in); err != nil {
		return nil, err
	}

	return in, nil
}

// List returns all integrations for (tenant, provider), newest first.
// Tokens stay encrypted since listings never need credentials.
func (s *IntegrationStore) List(ctx context.Context, tenantID, providerType string) ([]models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM tenant_integrations
		WHERE tenant_id = $1 AND integration_type = $2
		ORDER BY created_at DESC`

	rows, err := s.Pool.Query(ctx, query, tenantID, providerType)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	defer rows.Close()

	var out []models.Integration

	for rows.Next() {
		in, err := scanIntegration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning integration: %w", err)
		}
		out = append(out, *in)
	}

	return out, rows.Err()
}

// ListSyncable returns every active integration across all tenants that has
// completed at least one sync. The scheduler uses this to find candidates for
// periodic incremental syncs; never-synced integrations wait for a manual
// trigger. Tokens stay encrypted.
func (s *IntegrationStore) ListSyncable(ctx context.Context) ([]models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM tenant_integrations
		WHERE is_active AND last_synced_at IS NOT NULL
		ORDER BY last_synced_at ASC`

	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing syncable integrations: %w", err)
	}
	defer rows.Close()

	var out []models.Integration

	for rows.Next() {
		in, err := scanIntegration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning integration: %w", err)
		}
		out = append(out, *in)
	}

	return out, rows.Err()
}

// CreatePending inserts a placeholder row for an authorization flow in
// progress. Fails with models.ErrDuplicateActive when an active row exists,
// so callers surface needs_disconnect instead of stacking integrations.
func (s *IntegrationStore) CreatePending(ctx context.Context, tenantID, providerType, state string) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var existingID uuid.UUID

	err = tx.QueryRow(ctx,
		`SELECT id FROM tenant_integrations
		 WHERE tenant_id = $1 AND integration_type = $2 AND is_active`,
		tenantID, providerType).Scan(&existingID)
	if err == nil {
		return nil, models.ErrDuplicateActive
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checking for active integration: %w", err)
	}

	// Supersede any abandoned pending rows for the same provider.
	if _, err := tx.Exec(ctx,
		`DELETE FROM tenant_integrations
		 WHERE tenant_id = $1 AND integration_type = $2 AND NOT is_active AND access_token = ''`,
		tenantID, providerType); err != nil {
		return nil, fmt.Errorf("clearing stale pending integrations: %w", err)
	}

	query := `INSERT INTO tenant_integrations (tenant_id, integration_type, is_active, auth_kind, oauth_state)
		VALUES ($1, $2, false, 'oauth', $3)
		RETURNING ` + integrationColumns

	in, err := scanIntegration(tx.QueryRow(ctx, query, tenantID, providerType, state).Scan)
	if err != nil {
		return nil, fmt.Errorf("creating pending integration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing pending integration: %w", err)
	}

	return in, nil
}

// GetByState looks up a pending integration by its OAuth state parameter.
func (s *IntegrationStore) GetByState(ctx context.Context, providerType, state string) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if state == "" {
		return nil, models.ErrIntegrationNotFound
	}

	query := `SELECT ` + integrationColumns + ` FROM tenant_integrations
		WHERE integration_type = $1 AND oauth_state = $2 AND NOT is_active`

	in, err := scanIntegration(s.Pool.QueryRow(ctx, query, providerType, state).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, fmt.Errorf("getting integration by state: %w", err)
	}

	return in, nil
}

// Activate writes exchanged tokens onto a pending row and flips it active.
// The partial unique index backs this up: racing activations surface as
// models.ErrDuplicateActive instead of duplicate active rows.
func (s *IntegrationStore) Activate(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate, baseURL string) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	access, err := s.encryptToken(ctx, tenantID, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	refresh, err := s.encryptToken(ctx, tenantID, tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	query := `UPDATE tenant_integrations
		SET is_active = true, access_token = $3, refresh_token = $4,
		    token_expires_at = $5, base_url = $6, oauth_state = '', updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + integrationColumns

	in, err := scanIntegration(s.Pool.QueryRow(ctx, query, tenantID, id, access, refresh, tokens.ExpiresAt, baseURL).Scan)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrDuplicateActive
		}

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, fmt.Errorf("activating integration: %w", err)
	}

	if err := s.decrypt(ctx, in); err != nil {
		return nil, err
	}

	return in, nil
}

// CreateWithToken inserts an active legacy-token integration (Slack bot
// tokens, Jira API tokens). The partial unique index rejects a second
// active row.
func (s *IntegrationStore) CreateWithToken(ctx context.Context, tenantID, providerType, token string, config map[string]string) (*models.Integration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	access, err := s.encryptToken(ctx, tenantID, token)
	if err != nil {
		return nil, err
	}

	if config == nil {
		config = map[string]string{}
	}

	query := `INSERT INTO tenant_integrations (tenant_id, integration_type, is_active, auth_kind, access_token, config)
		VALUES ($1, $2, true, 'token', $3, $4)
		RETURNING ` + integrationColumns

	in, err := scanIntegration(s.Pool.QueryRow(ctx, query, tenantID, providerType, access, config).Scan)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrDuplicateActive
		}

		return nil, fmt.Errorf("creating token integration: %w", err)
	}

	if err := s.decrypt(ctx, in); err != nil {
		return nil, err
	}

	return in, nil
}

// UpdateTokens persists refreshed credentials.
func (s *IntegrationStore) UpdateTokens(ctx context.Context, tenantID string, id uuid.UUID, tokens models.TokenUpdate) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	access, err := s.encryptToken(ctx, tenantID, tokens.AccessToken)
	if err != nil {
		return err
	}

	refresh, err := s.encryptToken(ctx, tenantID, tokens.RefreshToken)
	if err != nil {
		return err
	}

	tag, err := s.Pool.Exec(ctx,
		`UPDATE tenant_integrations
		 SET access_token = $3, refresh_token = $4, token_expires_at = $5, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, access, refresh, tokens.ExpiresAt)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrIntegrationNotFound
	}

	return nil
}

// UpdateConfig replaces the provider-specific config map (Slack channel
// selection, Jira project filter).
func (s *IntegrationStore) UpdateConfig(ctx context.Context, tenantID string, id uuid.UUID, config map[string]string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE tenant_integrations SET config = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, config)
	if err != nil {
		return fmt.Errorf("updating integration config: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrIntegrationNotFound
	}

	return nil
}

// Disconnect removes every row for (tenant, provider) and returns how many
// were deleted. DISCONNECT is total: pending and inactive rows go too.
func (s *IntegrationStore) Disconnect(ctx context.Context, tenantID, providerType string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM tenant_integrations WHERE tenant_id = $1 AND integration_type = $2`,
		tenantID, providerType)
	if err != nil {
		return 0, fmt.Errorf("disconnecting integrations: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CleanupDuplicates repairs historical violations of the one-active-row
// invariant: the top-ranked row survives (active over inactive, OAuth over
// legacy token, newest created), everything else is deleted.
func (s *IntegrationStore) CleanupDuplicates(ctx context.Context, tenantID, providerType string) (*models.CleanupResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	rows, err := tx.Query(ctx,
		`SELECT id FROM tenant_integrations
		 WHERE tenant_id = $1 AND integration_type = $2
		 ORDER BY is_active DESC, (auth_kind = 'oauth') DESC, created_at DESC
		 FOR UPDATE`,
		tenantID, providerType)
	if err != nil {
		return nil, fmt.Errorf("ranking integrations: %w", err)
	}

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning integration id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranking integrations: %w", err)
	}

	result := &models.CleanupResult{Removed: []uuid.UUID{}}

	if len(ids) == 0 {
		return result, tx.Commit(ctx)
	}

	keep := ids[0]
	result.Kept = &keep
	result.Removed = ids[1:]

	if len(result.Removed) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM tenant_integrations
			 WHERE tenant_id = $1 AND integration_type = $2 AND id <> $3`,
			tenantID, providerType, keep); err != nil {
			return nil, fmt.Errorf("deleting duplicate integrations: %w", err)
		}

		// The survivor must be usable; reactivate it if the duplicates held
		// the active flag.
		if _, err := tx.Exec(ctx,
			`UPDATE tenant_integrations SET is_active = true, updated_at = now()
			 WHERE id = $1 AND access_token <> ''`,
			keep); err != nil {
			return nil, fmt.Errorf("reactivating surviving integration: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing duplicate cleanup: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"provider":  providerType,
		"removed":   len(result.Removed),
	}).Info("integration duplicates cleaned")

	return result, nil
}
