package revenue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/traces"
)

// Evaluator produces a risk profile for one snapshot. Satisfied by
// *evaluate.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog) (*evaluate.RiskProfile, error)
}

// RollupRequest selects the members of a portfolio, team, or tenant rollup.
type RollupRequest struct {
	Scope    Scope     `json:"scope"`
	ScopeID  string    `json:"scopeId"`
	TenantID string    `json:"tenantId"`
	OwnerIDs []string  `json:"ownerIds,omitempty"` // portfolio: one, team: several
	From     time.Time `json:"from,omitempty"`     // close-date window, optional
	To       time.Time `json:"to,omitempty"`
}

// Roller evaluates and sums revenue-at-risk across many opportunities.
// Evaluations run in bounded-parallel batches since each one may fan out to
// the AI detector.
type Roller struct {
	calc        *Calculator
	opps        opportunity.Store
	catalogs    *catalog.Service
	engine      Evaluator
	concurrency int64
}

// NewRoller creates a rollup calculator. Concurrency below 1 defaults to 8.
func NewRoller(calc *Calculator, opps opportunity.Store, catalogs *catalog.Service, engine Evaluator, concurrency int) *Roller {
	if concurrency < 1 {
		concurrency = 8
	}
	return &Roller{
		calc:        calc,
		opps:        opps,
		catalogs:    catalogs,
		engine:      engine,
		concurrency: int64(concurrency),
	}
}

// ForOpportunity evaluates one opportunity and returns its figure.
func (r *Roller) ForOpportunity(ctx context.Context, id string) (*RevenueAtRisk, error) {
	snap, err := r.opps.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cat, err := r.catalogs.Snapshot(ctx, snap.TenantID)
	if err != nil {
		return nil, err
	}

	profile, err := r.engine.Evaluate(ctx, snap, cat)
	if err != nil {
		return nil, err
	}

	figure := r.calc.ForOpportunity(snap, profile.AggregateScore, time.Now())
	return &figure, nil
}

// Rollup sums the component amounts over every open opportunity in scope.
// Sums are taken before any ratio is formed, so a rollup is always consistent
// with the sum of its members.
func (r *Roller) Rollup(ctx context.Context, req RollupRequest) (*RevenueAtRisk, error) {
	ctx, span := traces.StartSpan(ctx, "revenue.Rollup",
		traces.TenantID(req.TenantID), traces.Scope(string(req.Scope)))
	defer span.End()

	snaps, err := r.members(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.RollupOpportunities.Observe(float64(len(snaps)))

	total := &RevenueAtRisk{
		Scope:      req.Scope,
		ScopeID:    req.ScopeID,
		ComputedAt: time.Now(),
	}
	if len(snaps) == 0 {
		return total, nil
	}

	cat, err := r.catalogs.Snapshot(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	sem := semaphore.NewWeighted(r.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, snap := range snaps {
		snap := snap
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			profile, err := r.engine.Evaluate(gctx, snap, cat)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", snap.ID, err)
			}
			figure := r.calc.ForOpportunity(snap, profile.AggregateScore, total.ComputedAt)

			mu.Lock()
			total.OpportunityCount++
			total.GrossValue += figure.GrossValue
			total.ProbabilityWeightedValue += figure.ProbabilityWeightedValue
			total.RiskAdjustedValue += figure.RiskAdjustedValue
			total.AtRiskAmount += figure.AtRiskAmount
			if total.Currency == "" {
				total.Currency = figure.Currency
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.L(ctx).Debug("revenue rollup computed",
		"scope", req.Scope, "scope_id", req.ScopeID,
		"opportunities", total.OpportunityCount,
		"at_risk", total.AtRiskAmount)
	return total, nil
}

// members resolves the open, non-terminal opportunities in scope, de-duplicated
// by id.
func (r *Roller) members(ctx context.Context, req RollupRequest) ([]*opportunity.Snapshot, error) {
	switch req.Scope {
	case ScopePortfolio, ScopeTeam:
		if len(req.OwnerIDs) == 0 {
			return nil, ErrNoMembers
		}
		seen := make(map[string]bool)
		var out []*opportunity.Snapshot
		for _, owner := range req.OwnerIDs {
			snaps, err := r.opps.ListOpen(ctx, owner, req.From, req.To)
			if err != nil {
				return nil, err
			}
			for _, s := range snaps {
				if seen[s.ID] {
					continue
				}
				seen[s.ID] = true
				out = append(out, s)
			}
		}
		return out, nil

	case ScopeTenant:
		if req.TenantID == "" {
			return nil, ErrNoMembers
		}
		snaps, err := r.opps.List(ctx, opportunity.ListOptions{TenantID: req.TenantID})
		if err != nil {
			return nil, err
		}
		out := snaps[:0:0]
		for _, s := range snaps {
			if s.Stage.Terminal() {
				continue
			}
			if !req.From.IsZero() && s.CloseDate.Before(req.From) {
				continue
			}
			if !req.To.IsZero() && s.CloseDate.After(req.To) {
				continue
			}
			out = append(out, s)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, req.Scope)
	}
}
