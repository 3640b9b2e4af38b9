package revenue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/opportunity"
)

func TestCalculator_ForOpportunity(t *testing.T) {
	calc := NewCalculator(0.5)
	snap := &opportunity.Snapshot{
		ID:          "opp1",
		Value:       500000,
		Probability: 65,
		Currency:    "USD",
	}

	figure := calc.ForOpportunity(snap, 0.4, time.Now())

	if figure.ProbabilityWeightedValue != 325000 {
		t.Errorf("pw: expected 325000, got %f", figure.ProbabilityWeightedValue)
	}
	if figure.RiskAdjustedValue != 260000 {
		t.Errorf("riskAdjusted: expected 260000, got %f", figure.RiskAdjustedValue)
	}
	if figure.AtRiskAmount != 65000 {
		t.Errorf("atRisk: expected 65000, got %f", figure.AtRiskAmount)
	}
	if figure.GrossValue != 500000 {
		t.Errorf("gross: expected 500000, got %f", figure.GrossValue)
	}
}

func TestCalculator_ZeroScoreMeansNothingAtRisk(t *testing.T) {
	calc := NewCalculator(0.5)
	snap := &opportunity.Snapshot{ID: "opp1", Value: 100000, Probability: 80}

	figure := calc.ForOpportunity(snap, 0, time.Now())

	if figure.RiskAdjustedValue != figure.ProbabilityWeightedValue {
		t.Errorf("zero score should not discount: pw=%f riskAdjusted=%f",
			figure.ProbabilityWeightedValue, figure.RiskAdjustedValue)
	}
	if figure.AtRiskAmount != 0 {
		t.Errorf("expected zero at risk, got %f", figure.AtRiskAmount)
	}
}

func TestCalculator_MonotonicInScore(t *testing.T) {
	calc := NewCalculator(0.5)
	snap := &opportunity.Snapshot{ID: "opp1", Value: 250000, Probability: 70}
	now := time.Now()

	prev := calc.ForOpportunity(snap, 0, now).RiskAdjustedValue
	for score := 0.1; score <= 1.0; score += 0.1 {
		cur := calc.ForOpportunity(snap, score, now).RiskAdjustedValue
		if cur > prev {
			t.Errorf("riskAdjusted increased with score %.1f: %f > %f", score, cur, prev)
		}
		prev = cur
	}
}

func TestCalculator_ClampsScore(t *testing.T) {
	calc := NewCalculator(0.5)
	snap := &opportunity.Snapshot{ID: "opp1", Value: 100000, Probability: 50}
	now := time.Now()

	over := calc.ForOpportunity(snap, 1.5, now)
	atOne := calc.ForOpportunity(snap, 1.0, now)
	if over.RiskAdjustedValue != atOne.RiskAdjustedValue {
		t.Errorf("score above 1 should clamp: %f vs %f", over.RiskAdjustedValue, atOne.RiskAdjustedValue)
	}

	under := calc.ForOpportunity(snap, -0.3, now)
	if under.AtRiskAmount != 0 {
		t.Errorf("negative score should clamp to zero, got at-risk %f", under.AtRiskAmount)
	}
}

func TestNewCalculator_DefaultFactor(t *testing.T) {
	if got := NewCalculator(0).ImpactFactor(); got != DefaultImpactFactor {
		t.Errorf("expected default factor %f, got %f", DefaultImpactFactor, got)
	}
	if got := NewCalculator(0.3).ImpactFactor(); got != 0.3 {
		t.Errorf("expected 0.3, got %f", got)
	}
}

func newTestRoller(t *testing.T) (*Roller, *opportunity.MemoryStore) {
	t.Helper()

	opps := opportunity.NewMemoryStore()
	catalogs := catalog.NewService(catalog.NewMemoryStore())
	if err := catalogs.EnsureSeeded(context.Background(), "t1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	engine := evaluate.NewEngine()
	roller := NewRoller(NewCalculator(0.5), opps, catalogs, engine, 4)
	return roller, opps
}

func putSnap(t *testing.T, opps *opportunity.MemoryStore, id, owner string, value, prob float64, stage opportunity.Stage) {
	t.Helper()
	now := time.Now()
	err := opps.Put(context.Background(), &opportunity.Snapshot{
		ID:              id,
		TenantID:        "t1",
		OwnerID:         owner,
		Value:           value,
		ExpectedRevenue: value,
		Probability:     prob,
		Stage:           stage,
		CloseDate:       now.Add(45 * 24 * time.Hour),
		LastActivityAt:  now.Add(-3 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put %s failed: %v", id, err)
	}
}

func TestRollup_SumsMemberComponents(t *testing.T) {
	roller, opps := newTestRoller(t)
	putSnap(t, opps, "opp1", "u1", 100000, 80, opportunity.StageProposal)
	putSnap(t, opps, "opp2", "u1", 200000, 50, opportunity.StageQualification)
	putSnap(t, opps, "opp3", "u2", 300000, 30, opportunity.StageNegotiation)

	team, err := roller.Rollup(context.Background(), RollupRequest{
		Scope:    ScopeTeam,
		ScopeID:  "team-west",
		TenantID: "t1",
		OwnerIDs: []string{"u1", "u2"},
	})
	if err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	if team.OpportunityCount != 3 {
		t.Fatalf("expected 3 members, got %d", team.OpportunityCount)
	}

	var pw, ra, atRisk float64
	for _, id := range []string{"opp1", "opp2", "opp3"} {
		fig, err := roller.ForOpportunity(context.Background(), id)
		if err != nil {
			t.Fatalf("ForOpportunity %s failed: %v", id, err)
		}
		pw += fig.ProbabilityWeightedValue
		ra += fig.RiskAdjustedValue
		atRisk += fig.AtRiskAmount
	}

	if !closeEnough(team.ProbabilityWeightedValue, pw) {
		t.Errorf("pw mismatch: rollup %f vs member sum %f", team.ProbabilityWeightedValue, pw)
	}
	if !closeEnough(team.RiskAdjustedValue, ra) {
		t.Errorf("riskAdjusted mismatch: rollup %f vs member sum %f", team.RiskAdjustedValue, ra)
	}
	if !closeEnough(team.AtRiskAmount, atRisk) {
		t.Errorf("atRisk mismatch: rollup %f vs member sum %f", team.AtRiskAmount, atRisk)
	}
}

func TestRollup_TenantScopeExcludesTerminal(t *testing.T) {
	roller, opps := newTestRoller(t)
	putSnap(t, opps, "opp1", "u1", 100000, 80, opportunity.StageProposal)
	putSnap(t, opps, "opp2", "u1", 500000, 100, opportunity.StageClosedWon)
	putSnap(t, opps, "opp3", "u2", 200000, 0, opportunity.StageClosedLost)

	figure, err := roller.Rollup(context.Background(), RollupRequest{
		Scope:    ScopeTenant,
		ScopeID:  "t1",
		TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	if figure.OpportunityCount != 1 {
		t.Errorf("closed deals must not roll up: expected 1 member, got %d", figure.OpportunityCount)
	}
	if figure.GrossValue != 100000 {
		t.Errorf("expected gross 100000, got %f", figure.GrossValue)
	}
}

func TestRollup_DeduplicatesAcrossOwners(t *testing.T) {
	roller, opps := newTestRoller(t)
	putSnap(t, opps, "opp1", "u1", 100000, 80, opportunity.StageProposal)

	figure, err := roller.Rollup(context.Background(), RollupRequest{
		Scope:    ScopePortfolio,
		ScopeID:  "u1",
		TenantID: "t1",
		OwnerIDs: []string{"u1", "u1"},
	})
	if err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}
	if figure.OpportunityCount != 1 {
		t.Errorf("duplicate owner ids must not double-count: got %d", figure.OpportunityCount)
	}
}

func TestRollup_EmptyScope(t *testing.T) {
	roller, _ := newTestRoller(t)

	figure, err := roller.Rollup(context.Background(), RollupRequest{
		Scope:    ScopePortfolio,
		ScopeID:  "u9",
		TenantID: "t1",
		OwnerIDs: []string{"u9"},
	})
	if err != nil {
		t.Fatalf("empty portfolio should not error: %v", err)
	}
	if figure.OpportunityCount != 0 || figure.AtRiskAmount != 0 {
		t.Errorf("expected zero figure, got %+v", figure)
	}
}

func TestRollup_BadRequests(t *testing.T) {
	roller, _ := newTestRoller(t)

	_, err := roller.Rollup(context.Background(), RollupRequest{Scope: "galaxy", TenantID: "t1"})
	if !errors.Is(err, ErrUnknownScope) {
		t.Errorf("expected ErrUnknownScope, got %v", err)
	}

	_, err = roller.Rollup(context.Background(), RollupRequest{Scope: ScopeTeam, TenantID: "t1"})
	if !errors.Is(err, ErrNoMembers) {
		t.Errorf("expected ErrNoMembers for team without owners, got %v", err)
	}
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
