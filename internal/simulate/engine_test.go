package simulate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/revenue"
)

func newTestEngine(t *testing.T) (*Engine, *opportunity.MemoryStore) {
	t.Helper()

	opps := opportunity.NewMemoryStore()
	catalogs := catalog.NewService(catalog.NewMemoryStore())
	if err := catalogs.EnsureSeeded(context.Background(), "t1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	engine := NewEngine(opps, catalogs, evaluate.NewEngine(), revenue.NewCalculator(0.5))
	return engine, opps
}

func riskyBaseline(t *testing.T, opps *opportunity.MemoryStore) *opportunity.Snapshot {
	t.Helper()
	now := time.Now()
	snap := &opportunity.Snapshot{
		ID:               "opp1",
		TenantID:         "t1",
		OwnerID:          "u1",
		Value:            200000,
		ExpectedRevenue:  200000,
		Probability:      60,
		Stage:            opportunity.StageProposal,
		CloseDate:        now.Add(12 * 24 * time.Hour),
		LastActivityAt:   now.Add(-20 * 24 * time.Hour),
		StakeholderIDs:   []string{"c1", "c2"},
		ActivityCount30d: 8,
	}
	if err := opps.Put(context.Background(), snap); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	return snap
}

func f64(v float64) *float64 { return &v }

func TestRun_ImprovedScenarioReducesRisk(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)

	// Push the close date out and raise the probability; both the timeline
	// pressure and stagnation rules should stop firing against the scenario.
	later := time.Now().Add(90 * 24 * time.Hour)

	result, err := engine.Run(context.Background(), "opp1", Overrides{
		Probability: f64(85),
		CloseDate:   &later,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Scenario.AggregateScore >= result.Baseline.AggregateScore {
		t.Errorf("improved scenario should score lower: %f >= %f",
			result.Scenario.AggregateScore, result.Baseline.AggregateScore)
	}
	if result.Delta.AggregateScore >= 0 {
		t.Errorf("expected negative score delta, got %f", result.Delta.AggregateScore)
	}
	if result.Scenario.ProbabilityWeightedValue <= result.Baseline.ProbabilityWeightedValue {
		t.Errorf("higher probability should raise pw: %f <= %f",
			result.Scenario.ProbabilityWeightedValue, result.Baseline.ProbabilityWeightedValue)
	}
}

func TestRun_DoesNotMutateBaseline(t *testing.T) {
	engine, opps := newTestEngine(t)
	original := riskyBaseline(t, opps)

	_, err := engine.Run(context.Background(), "opp1", Overrides{Probability: f64(10), Value: f64(1)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, err := opps.Get(context.Background(), "opp1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Probability != original.Probability || stored.Value != original.Value {
		t.Errorf("simulation mutated the stored baseline: %+v", stored)
	}

	revs, err := opps.Revisions(context.Background(), "opp1")
	if err != nil {
		t.Fatalf("Revisions failed: %v", err)
	}
	if len(revs) != 1 {
		t.Errorf("simulation must not append revisions, got %d", len(revs))
	}
}

func TestRun_InvalidScenarios(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)
	ctx := context.Background()

	cases := []struct {
		name string
		ov   Overrides
	}{
		{"no overrides", Overrides{}},
		{"label is not an override", Overrides{Label: "name only"}},
		{"probability above 100", Overrides{Probability: f64(120)}},
		{"negative probability", Overrides{Probability: f64(-5)}},
		{"non-positive value", Overrides{Value: f64(0)}},
		{"unknown stage", Overrides{Stage: stagePtr("daydreaming")}},
		{"zero close date", Overrides{CloseDate: &time.Time{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Run(ctx, "opp1", tc.ov); !errors.Is(err, ErrInvalidScenario) {
				t.Errorf("expected ErrInvalidScenario, got %v", err)
			}
		})
	}
}

func TestRun_OpportunityNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Run(context.Background(), "missing", Overrides{Probability: f64(50)})
	if !errors.Is(err, opportunity.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompare_RanksByRiskAdjustedValue(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)
	later := time.Now().Add(90 * 24 * time.Hour)

	results, err := engine.Compare(context.Background(), "opp1", []Overrides{
		{Probability: f64(30)},
		{Probability: f64(90), CloseDate: &later},
		{Probability: f64(60)},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i := 1; i < len(results); i++ {
		if results[i].Scenario.RiskAdjustedValue > results[i-1].Scenario.RiskAdjustedValue {
			t.Errorf("results not ranked descending at %d: %f > %f", i,
				results[i].Scenario.RiskAdjustedValue, results[i-1].Scenario.RiskAdjustedValue)
		}
	}
}

func TestCompare_LabelsSurviveRanking(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)
	later := time.Now().Add(90 * 24 * time.Hour)

	results, err := engine.Compare(context.Background(), "opp1", []Overrides{
		{Label: "worst case", Probability: f64(30)},
		{Label: "best case", Probability: f64(90), CloseDate: &later},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	byLabel := map[string]*Result{}
	for _, r := range results {
		byLabel[r.Label] = r
	}
	best, worst := byLabel["best case"], byLabel["worst case"]
	if best == nil || worst == nil {
		t.Fatalf("labels must pass through to results, got %v", results)
	}
	if best.Scenario.RiskAdjustedValue <= worst.Scenario.RiskAdjustedValue {
		t.Errorf("best case should rank above worst case: %f <= %f",
			best.Scenario.RiskAdjustedValue, worst.Scenario.RiskAdjustedValue)
	}
}

func TestCompare_ScenariosAreIndependent(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)

	// Identical scenarios in different list positions must produce identical
	// numbers: no scenario sees another's output.
	results, err := engine.Compare(context.Background(), "opp1", []Overrides{
		{Probability: f64(80)},
		{Value: f64(50000)},
		{Probability: f64(80)},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	var matched []*Result
	for _, r := range results {
		if r.Overrides.Probability != nil && *r.Overrides.Probability == 80 {
			matched = append(matched, r)
		}
	}
	if len(matched) != 2 {
		t.Fatalf("expected the two identical scenarios, got %d", len(matched))
	}
	if matched[0].Scenario.RiskAdjustedValue != matched[1].Scenario.RiskAdjustedValue {
		t.Errorf("identical scenarios diverged: %f vs %f",
			matched[0].Scenario.RiskAdjustedValue, matched[1].Scenario.RiskAdjustedValue)
	}
}

func TestCompare_AllScenariosValidatedFirst(t *testing.T) {
	engine, opps := newTestEngine(t)
	riskyBaseline(t, opps)

	_, err := engine.Compare(context.Background(), "opp1", []Overrides{
		{Probability: f64(80)},
		{Probability: f64(500)},
	})
	if !errors.Is(err, ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario for the bad member, got %v", err)
	}

	_, err = engine.Compare(context.Background(), "opp1", nil)
	if !errors.Is(err, ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario for empty list, got %v", err)
	}
}

func stagePtr(s opportunity.Stage) *opportunity.Stage { return &s }
