package catalog

import (
	"context"
	"testing"
)

func TestSeedAndLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Seed(ctx, "t1"); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	cat, err := Load(ctx, store, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != len(builtins) {
		t.Errorf("expected %d definitions, got %d", len(builtins), cat.Len())
	}
	if cat.TotalWeight() <= 0 {
		t.Error("total weight should be positive")
	}

	// Seeding twice must not duplicate
	if err := store.Seed(ctx, "t1"); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}
	again, _ := Load(ctx, store, "t1")
	if again.Len() != cat.Len() {
		t.Errorf("second seed duplicated definitions: %d vs %d", again.Len(), cat.Len())
	}
}

func TestLoad_EmptyTenant(t *testing.T) {
	store := NewMemoryStore()
	_, err := Load(context.Background(), store, "nobody")
	if err != ErrNoDefinitions {
		t.Errorf("expected ErrNoDefinitions, got %v", err)
	}
}

func TestByNameCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Seed(ctx, "t1")
	cat, _ := Load(ctx, store, "t1")

	d, ok := cat.ByName("timeline pressure")
	if !ok {
		t.Fatal("expected to resolve 'timeline pressure'")
	}
	if d.Category != CategoryTimeline {
		t.Errorf("expected timeline category, got %s", d.Category)
	}
}

func TestUpdateCreatesNewVersion(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	def, err := svc.CreateCustom(ctx, "t1", "Churn Risk", CategoryRelationship, 0.6, "stakeholder_count <= 1")
	if err != nil {
		t.Fatalf("CreateCustom failed: %v", err)
	}

	next, err := svc.UpdateDefinition(ctx, def.ID, "Churn Risk", CategoryRelationship, 0.8, "stakeholder_count == 0")
	if err != nil {
		t.Fatalf("UpdateDefinition failed: %v", err)
	}

	if next.ID == def.ID {
		t.Error("update must mint a new definition id")
	}
	if next.Version != def.Version+1 {
		t.Errorf("expected version %d, got %d", def.Version+1, next.Version)
	}

	// Old version retired but still resolvable by id for historical profiles
	old, err := store.Get(ctx, def.ID)
	if err != nil {
		t.Fatalf("old version should still exist: %v", err)
	}
	if old.Active {
		t.Error("old version should be inactive")
	}

	cat, _ := Load(ctx, store, "t1")
	if _, ok := cat.ByID(def.ID); ok {
		t.Error("retired definition should not be in the active catalog")
	}
	if _, ok := cat.ByID(next.ID); !ok {
		t.Error("new version should be in the active catalog")
	}
}

func TestValidate(t *testing.T) {
	bad := &Definition{Name: "x", Category: "bogus", Weight: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown category")
	}

	heavy := &Definition{Name: "x", Category: CategoryFinancial, Weight: 1.5}
	if err := heavy.Validate(); err != ErrInvalidWeight {
		t.Errorf("expected ErrInvalidWeight, got %v", err)
	}
}
