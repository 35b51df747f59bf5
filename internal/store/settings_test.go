package store_test

import (
	"context"
	"testing"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/store"
)

func strPtr(s string) *string { return &s }

func TestSettingsStore_DefaultsAndPartialUpdate(t *testing.T) {
	base, tenantID := setupTestBase(t)
	s := store.NewSettingsStore(base)
	ctx := context.Background()

	got, err := s.Get(ctx, tenantID)
	if err != nil {
		t.Fatalf("Get before any save: %v", err)
	}
	if got.GroupingInstructions != "" || got.TypeInstructions != "" || got.SeverityInstructions != "" {
		t.Errorf("expected empty defaults, got %+v", got)
	}

	saved, err := s.Upsert(ctx, tenantID, models.TenantSettingsUpdate{
		GroupingInstructions: strPtr("Group by feature area."),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if saved.GroupingInstructions != "Group by feature area." {
		t.Errorf("grouping = %q", saved.GroupingInstructions)
	}

	// A second partial update must not clobber the first field.
	saved, err = s.Upsert(ctx, tenantID, models.TenantSettingsUpdate{
		SeverityInstructions: strPtr("Billing outages are always severity 5."),
	})
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if saved.GroupingInstructions != "Group by feature area." {
		t.Errorf("grouping after partial update = %q", saved.GroupingInstructions)
	}
	if saved.SeverityInstructions != "Billing outages are always severity 5." {
		t.Errorf("severity = %q", saved.SeverityInstructions)
	}

	got, err = s.Get(ctx, tenantID)
	if err != nil {
		t.Fatalf("Get after saves: %v", err)
	}
	if got.GroupingInstructions != "Group by feature area." {
		t.Errorf("persisted grouping = %q", got.GroupingInstructions)
	}
}
