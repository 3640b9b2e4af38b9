package detect

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/opportunity"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	store := catalog.NewMemoryStore()
	if err := store.Seed(context.Background(), "t1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	cat, err := catalog.Load(context.Background(), store, "t1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return cat
}

func riskySnapshot(now time.Time) *opportunity.Snapshot {
	return &opportunity.Snapshot{
		ID:              "opp1",
		TenantID:        "t1",
		OwnerID:         "u1",
		Value:           500000,
		ExpectedRevenue: 500000,
		Probability:     65,
		Stage:           opportunity.StageProposal,
		CloseDate:       now.Add(12 * 24 * time.Hour),  // 12 days out
		LastActivityAt:  now.Add(-20 * 24 * time.Hour), // stale
		StakeholderIDs:  []string{"c1", "c2"},
		ActivityCount30d: 5,
	}
}

func TestRuleDetector_DetectsTimelineAndStagnation(t *testing.T) {
	cat := testCatalog(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := riskySnapshot(now)
	derived := snap.DeriveAt(now)

	risks := NewRuleDetector().Detect(context.Background(), snap, derived, cat)

	names := map[string]DetectedRisk{}
	for _, r := range risks {
		names[r.RiskName] = r
	}

	tp, ok := names["Timeline Pressure"]
	if !ok {
		t.Fatalf("expected Timeline Pressure, got %v", names)
	}
	if tp.Confidence != 1.0 {
		t.Errorf("rule hits are binary, expected confidence 1.0, got %f", tp.Confidence)
	}
	if tp.Source != SourceRule {
		t.Errorf("expected rule source, got %s", tp.Source)
	}
	if len(tp.Evidence) == 0 {
		t.Error("expected cited numeric evidence")
	}

	if _, ok := names["Deal Stagnation"]; !ok {
		t.Error("expected Deal Stagnation for 20 idle days")
	}
	if _, ok := names["Revenue Gap"]; ok {
		t.Error("no revenue gap expected when value == expectedRevenue")
	}
}

func TestRuleDetector_Deterministic(t *testing.T) {
	cat := testCatalog(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := riskySnapshot(now)
	derived := snap.DeriveAt(now)

	d := NewRuleDetector()
	first := d.Detect(context.Background(), snap, derived, cat)
	for i := 0; i < 5; i++ {
		again := d.Detect(context.Background(), snap, derived, cat)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("rule detection must be deterministic for a fixed snapshot and catalog")
		}
	}
}

func TestRuleDetector_SkipsBrokenExpression(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	svc := catalog.NewService(store)
	if _, err := svc.CreateCustom(ctx, "t1", "Broken", catalog.CategoryOperational, 0.5, "nonsense ~~ wat"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.CreateCustom(ctx, "t1", "Valid", catalog.CategoryTimeline, 0.5, "days_to_close < 1000"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	cat, _ := catalog.Load(ctx, store, "t1")

	now := time.Now()
	snap := riskySnapshot(now)
	risks := NewRuleDetector().Detect(ctx, snap, snap.DeriveAt(now), cat)

	if len(risks) != 1 || risks[0].RiskName != "Valid" {
		t.Errorf("broken rule should be skipped, got %v", risks)
	}
}

func TestRuleDetector_TerminalStageSuppressesStagnation(t *testing.T) {
	cat := testCatalog(t)
	now := time.Now()
	snap := riskySnapshot(now)
	snap.Stage = opportunity.StageClosedWon

	risks := NewRuleDetector().Detect(context.Background(), snap, snap.DeriveAt(now), cat)
	for _, r := range risks {
		if r.RiskName == "Deal Stagnation" {
			t.Error("stagnation must not fire for closed deals")
		}
	}
}
