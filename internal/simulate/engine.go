package simulate

import (
	"context"
	"sort"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/idgen"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/revenue"
	"github.com/revlens/revlens/internal/traces"
)

// Evaluator produces a risk profile for one snapshot. Satisfied by
// *evaluate.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog) (*evaluate.RiskProfile, error)
}

// Engine runs what-if simulations against stored opportunities.
type Engine struct {
	opps      opportunity.Store
	catalogs  *catalog.Service
	evaluator Evaluator
	calc      *revenue.Calculator
}

// NewEngine creates a simulation engine.
func NewEngine(opps opportunity.Store, catalogs *catalog.Service, evaluator Evaluator, calc *revenue.Calculator) *Engine {
	return &Engine{opps: opps, catalogs: catalogs, evaluator: evaluator, calc: calc}
}

// Run validates the scenario, then evaluates the baseline and the overridden
// copy and reports the delta. Validation always precedes computation so an
// invalid scenario never costs an evaluation.
func (e *Engine) Run(ctx context.Context, opportunityID string, ov Overrides) (*Result, error) {
	if err := ov.Validate(); err != nil {
		metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "simulate.Run", traces.OpportunityID(opportunityID))
	defer span.End()

	baseline, err := e.opps.Get(ctx, opportunityID)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	cat, err := e.catalogs.Snapshot(ctx, baseline.TenantID)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result, err := e.run(ctx, baseline, cat, ov)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SimulationsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (e *Engine) run(ctx context.Context, baseline *opportunity.Snapshot, cat *catalog.Catalog, ov Overrides) (*Result, error) {
	now := time.Now()

	baseOutcome, err := e.outcome(ctx, baseline, cat, now)
	if err != nil {
		return nil, err
	}
	scenOutcome, err := e.outcome(ctx, ov.Apply(baseline), cat, now)
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:            idgen.WithPrefix("sim_"),
		OpportunityID: baseline.ID,
		Label:         ov.Label,
		Overrides:     ov,
		Baseline:      *baseOutcome,
		Scenario:      *scenOutcome,
		Delta: Delta{
			AggregateScore:           scenOutcome.AggregateScore - baseOutcome.AggregateScore,
			ProbabilityWeightedValue: scenOutcome.ProbabilityWeightedValue - baseOutcome.ProbabilityWeightedValue,
			RiskAdjustedValue:        scenOutcome.RiskAdjustedValue - baseOutcome.RiskAdjustedValue,
			AtRiskAmount:             scenOutcome.AtRiskAmount - baseOutcome.AtRiskAmount,
		},
		ComputedAt: now,
	}, nil
}

func (e *Engine) outcome(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog, now time.Time) (*Outcome, error) {
	profile, err := e.evaluator.Evaluate(ctx, snap, cat)
	if err != nil {
		return nil, err
	}
	figure := e.calc.ForOpportunity(snap, profile.AggregateScore, now)
	return &Outcome{
		AggregateScore:           profile.AggregateScore,
		Risks:                    profile.Risks,
		ProbabilityWeightedValue: figure.ProbabilityWeightedValue,
		RiskAdjustedValue:        figure.RiskAdjustedValue,
		AtRiskAmount:             figure.AtRiskAmount,
	}, nil
}

// Compare runs several independent scenarios against one baseline and ranks
// them by the scenario's risk-adjusted value, best first. Every scenario is
// validated before any of them runs.
func (e *Engine) Compare(ctx context.Context, opportunityID string, scenarios []Overrides) ([]*Result, error) {
	if len(scenarios) == 0 {
		metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidScenario
	}
	for _, ov := range scenarios {
		if err := ov.Validate(); err != nil {
			metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	ctx, span := traces.StartSpan(ctx, "simulate.Compare", traces.OpportunityID(opportunityID))
	defer span.End()

	baseline, err := e.opps.Get(ctx, opportunityID)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	cat, err := e.catalogs.Snapshot(ctx, baseline.TenantID)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	results := make([]*Result, 0, len(scenarios))
	for _, ov := range scenarios {
		// Each scenario applies to the pristine baseline, never to a prior
		// scenario's output.
		result, err := e.run(ctx, baseline, cat, ov)
		if err != nil {
			metrics.SimulationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scenario.RiskAdjustedValue > results[j].Scenario.RiskAdjustedValue
	})
	metrics.SimulationsTotal.WithLabelValues("ok").Inc()
	return results, nil
}
