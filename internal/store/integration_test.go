package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/store"
)

// insertIntegration writes a row directly so tests can control created_at
// and the active flag without going through the lifecycle methods.
func insertIntegration(t *testing.T, base store.Base, tenantID, providerType, authKind string, active bool, token string, createdAt time.Time) uuid.UUID {
	t.Helper()

	ctx := context.Background()

	ciphertext := ""
	if token != "" {
		var err error
		ciphertext, err = base.Crypto.Encrypt(ctx, tenantID, []byte(token))
		if err != nil {
			t.Fatalf("encrypting fixture token: %v", err)
		}
	}

	var id uuid.UUID

	err := base.Pool.QueryRow(ctx,
		`INSERT INTO tenant_integrations (tenant_id, integration_type, is_active, auth_kind, access_token, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		tenantID, providerType, active, authKind, ciphertext, createdAt).Scan(&id)
	if err != nil {
		t.Fatalf("inserting fixture integration: %v", err)
	}

	return id
}

func TestIntegrationStore_PendingActivateLifecycle(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewIntegrationStore(base)
	ctx := context.Background()

	pending, err := s.CreatePending(ctx, tenantID, models.ProviderHubSpot, "state-abc")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if pending.IsActive {
		t.Error("pending integration should not be active")
	}

	found, err := s.GetByState(ctx, models.ProviderHubSpot, "state-abc")
	if err != nil {
		t.Fatalf("GetByState: %v", err)
	}
	if found.ID != pending.ID {
		t.Errorf("GetByState returned %s, want %s", found.ID, pending.ID)
	}

	expires := time.Now().Add(time.Hour)
	activated, err := s.Activate(ctx, tenantID, pending.ID, models.TokenUpdate{
		AccessToken:  "access-plaintext",
		RefreshToken: "refresh-plaintext",
		ExpiresAt:    &expires,
	}, "")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !activated.IsActive {
		t.Error("activated integration should be active")
	}

	active, err := s.GetActive(ctx, tenantID, models.ProviderHubSpot)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.AccessToken != "access-plaintext" {
		t.Errorf("access token = %q, want decrypted plaintext", active.AccessToken)
	}
	if active.RefreshToken != "refresh-plaintext" {
		t.Errorf("refresh token = %q, want decrypted plaintext", active.RefreshToken)
	}

	// A second authorization attempt must surface the conflict.
	_, err = s.CreatePending(ctx, tenantID, models.ProviderHubSpot, "state-def")
	if !errors.Is(err, models.ErrDuplicateActive) {
		t.Errorf("CreatePending with active row: err = %v, want ErrDuplicateActive", err)
	}
}

func TestIntegrationStore_CreateWithToken_RejectsSecondActive(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewIntegrationStore(base)
	ctx := context.Background()

	if _, err := s.CreateWithToken(ctx, tenantID, models.ProviderSlack, "xoxb-first", nil); err != nil {
		t.Fatalf("CreateWithToken: %v", err)
	}

	_, err := s.CreateWithToken(ctx, tenantID, models.ProviderSlack, "xoxb-second", nil)
	if !errors.Is(err, models.ErrDuplicateActive) {
		t.Errorf("second CreateWithToken: err = %v, want ErrDuplicateActive", err)
	}
}

func TestIntegrationStore_CleanupDuplicates_Ranking(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewIntegrationStore(base)
	ctx := context.Background()
	now := time.Now()

	// Three inactive duplicates: OAuth beats legacy token, newest OAuth wins.
	insertIntegration(t, base, tenantID, models.ProviderHubSpot, "oauth", false, "tok-old-oauth", now.Add(-2*time.Hour))
	want := insertIntegration(t, base, tenantID, models.ProviderHubSpot, "oauth", false, "tok-new-oauth", now.Add(-30*time.Minute))
	insertIntegration(t, base, tenantID, models.ProviderHubSpot, "token", false, "tok-legacy", now.Add(-time.Hour))

	result, err := s.CleanupDuplicates(ctx, tenantID, models.ProviderHubSpot)
	if err != nil {
		t.Fatalf("CleanupDuplicates: %v", err)
	}

	if result.Kept == nil || *result.Kept != want {
		t.Fatalf("kept = %v, want %s", result.Kept, want)
	}
	if len(result.Removed) != 2 {
		t.Errorf("removed %d rows, want 2", len(result.Removed))
	}

	// The survivor holds a token, so cleanup reactivates it.
	active, err := s.GetActive(ctx, tenantID, models.ProviderHubSpot)
	if err != nil {
		t.Fatalf("GetActive after cleanup: %v", err)
	}
	if active.ID != want {
		t.Errorf("active integration = %s, want %s", active.ID, want)
	}
	if active.AccessToken != "tok-new-oauth" {
		t.Errorf("access token = %q, want %q", active.AccessToken, "tok-new-oauth")
	}
}

func TestIntegrationStore_CleanupDuplicates_ActiveRowWins(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewIntegrationStore(base)
	ctx := context.Background()
	now := time.Now()

	// An active legacy-token row outranks a newer inactive OAuth row.
	want := insertIntegration(t, base, tenantID, models.ProviderJira, "token", true, "jira-token", now.Add(-time.Hour))
	insertIntegration(t, base, tenantID, models.ProviderJira, "oauth", false, "jira-oauth", now)

	result, err := s.CleanupDuplicates(ctx, tenantID, models.ProviderJira)
	if err != nil {
		t.Fatalf("CleanupDuplicates: %v", err)
	}

	if result.Kept == nil || *result.Kept != want {
		t.Fatalf("kept = %v, want %s", result.Kept, want)
	}
	if len(result.Removed) != 1 {
		t.Errorf("removed %d rows, want 1", len(result.Removed))
	}
}

func TestIntegrationStore_Disconnect_RemovesAllRows(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewIntegrationStore(base)
	ctx := context.Background()
	now := time.Now()

	insertIntegration(t, base, tenantID, models.ProviderSlack, "token", true, "xoxb-live", now.Add(-time.Hour))
	insertIntegration(t, base, tenantID, models.ProviderSlack, "oauth", false, "", now)

	removed, err := s.Disconnect(ctx, tenantID, models.ProviderSlack)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d rows, want 2", removed)
	}

	if _, err := s.GetActive(ctx, tenantID, models.ProviderSlack); !errors.Is(err, models.ErrIntegrationNotFound) {
		t.Errorf("GetActive after disconnect: err = %v, want ErrIntegrationNotFound", err)
	}
}
