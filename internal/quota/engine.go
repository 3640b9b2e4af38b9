package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/detect"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/revenue"
	"github.com/revlens/revlens/internal/traces"
)

// Evaluator scores one snapshot with owner quota context in the AI prompt.
// Satisfied by *evaluate.Engine.
type Evaluator interface {
	EvaluateWithQuota(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog, quota *detect.QuotaContext) (*evaluate.RiskProfile, error)
}

// Engine computes quota performance from the live pipeline.
type Engine struct {
	quotas      Store
	opps        opportunity.Store
	catalogs    *catalog.Service
	evaluator   Evaluator
	calc        *revenue.Calculator
	concurrency int64
}

// NewEngine creates a quota performance engine. Concurrency below 1 defaults
// to 8.
func NewEngine(quotas Store, opps opportunity.Store, catalogs *catalog.Service, evaluator Evaluator, calc *revenue.Calculator, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 8
	}
	return &Engine{
		quotas:      quotas,
		opps:        opps,
		catalogs:    catalogs,
		evaluator:   evaluator,
		calc:        calc,
		concurrency: int64(concurrency),
	}
}

// Performance computes attainment and forecast for one quota against every
// opportunity the target user owns in the period.
func (e *Engine) Performance(ctx context.Context, quotaID string) (*Performance, error) {
	q, err := e.quotas.Get(ctx, quotaID)
	if err != nil {
		return nil, err
	}

	won, err := e.opps.ListClosedWon(ctx, q.TargetUserID, q.PeriodStart, q.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed-won deals: %w", err)
	}
	open, err := e.opps.ListOpen(ctx, q.TargetUserID, q.PeriodStart, q.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list open deals: %w", err)
	}

	return e.compute(ctx, q, won, open)
}

// PerformanceFor computes performance over an explicitly chosen set of
// opportunities. Any member closing outside the quota period is a
// ErrPeriodMismatch, not a silent drop.
func (e *Engine) PerformanceFor(ctx context.Context, quotaID string, opportunityIDs []string) (*Performance, error) {
	q, err := e.quotas.Get(ctx, quotaID)
	if err != nil {
		return nil, err
	}

	var won, open []*opportunity.Snapshot
	for _, id := range opportunityIDs {
		snap, err := e.opps.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !q.Contains(snap.CloseDate) {
			return nil, fmt.Errorf("%w: %s closes %s", ErrPeriodMismatch,
				snap.ID, snap.CloseDate.Format("2006-01-02"))
		}
		switch {
		case snap.Stage == opportunity.StageClosedWon:
			won = append(won, snap)
		case !snap.Stage.Terminal():
			open = append(open, snap)
		}
		// closed-lost deals count toward neither actuals nor forecast
	}

	return e.compute(ctx, q, won, open)
}

func (e *Engine) compute(ctx context.Context, q *Quota, won, open []*opportunity.Snapshot) (*Performance, error) {
	ctx, span := traces.StartSpan(ctx, "quota.Performance", traces.QuotaID(q.ID), traces.TenantID(q.TenantID))
	defer span.End()

	perf := &Performance{
		QuotaID:      q.ID,
		TargetUserID: q.TargetUserID,
		PeriodStart:  q.PeriodStart,
		PeriodEnd:    q.PeriodEnd,
		TargetAmount: q.TargetAmount,
		WonCount:     len(won),
		OpenCount:    len(open),
		ComputedAt:   time.Now(),
	}

	for _, snap := range won {
		perf.ActualAmount += snap.Value
	}
	for _, snap := range open {
		perf.OpenPipelineValue += snap.Value
	}

	// The AI prompt gets the owner's quota pressure so the model can weigh
	// end-of-period dynamics; the score math never reads it.
	qctx := &detect.QuotaContext{
		TargetAmount:      q.TargetAmount,
		PeriodEnd:         q.PeriodEnd,
		AttainmentToDate:  perf.ActualAmount / q.TargetAmount,
		OpenPipelineValue: perf.OpenPipelineValue,
	}

	var pwSum, raSum float64
	if len(open) > 0 {
		cat, err := e.catalogs.Snapshot(ctx, q.TenantID)
		if err != nil {
			return nil, err
		}

		var mu sync.Mutex
		sem := semaphore.NewWeighted(e.concurrency)
		g, gctx := errgroup.WithContext(ctx)
		for _, snap := range open {
			snap := snap
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				profile, err := e.evaluator.EvaluateWithQuota(gctx, snap, cat, qctx)
				if err != nil {
					return fmt.Errorf("evaluate %s: %w", snap.ID, err)
				}
				figure := e.calc.ForOpportunity(snap, profile.AggregateScore, perf.ComputedAt)

				mu.Lock()
				pwSum += figure.ProbabilityWeightedValue
				raSum += figure.RiskAdjustedValue
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	perf.ForecastedAmount = perf.ActualAmount + pwSum
	perf.RiskAdjustedForecast = perf.ActualAmount + raSum
	perf.Attainment = perf.ActualAmount / q.TargetAmount
	perf.ForecastedAttainment = perf.ForecastedAmount / q.TargetAmount
	perf.RiskAdjustedAttainment = perf.RiskAdjustedForecast / q.TargetAmount

	logging.L(ctx).Debug("quota performance computed",
		"quota_id", q.ID, "attainment", perf.Attainment,
		"forecasted", perf.ForecastedAttainment,
		"risk_adjusted", perf.RiskAdjustedAttainment)
	return perf, nil
}

// TeamPerformance is the rollup of several quotas. Targets and amounts are
// summed before any attainment ratio is formed, so a team at 50% and 150% of
// equal targets rolls up to 100%, not the average of per-member ratios over
// unequal targets.
type TeamPerformance struct {
	TenantID             string   `json:"tenantId"`
	QuotaIDs             []string `json:"quotaIds"`
	TargetAmount         float64  `json:"targetAmount"`
	ActualAmount         float64  `json:"actualAmount"`
	ForecastedAmount     float64  `json:"forecastedAmount"`
	RiskAdjustedForecast float64  `json:"riskAdjustedForecast"`

	Attainment             float64 `json:"attainment"`
	ForecastedAttainment   float64 `json:"forecastedAttainment"`
	RiskAdjustedAttainment float64 `json:"riskAdjustedAttainment"`

	ComputedAt time.Time `json:"computedAt"`
}

// Rollup sums the components of the named quotas, then divides once.
func (e *Engine) Rollup(ctx context.Context, tenantID string, quotaIDs []string) (*TeamPerformance, error) {
	if len(quotaIDs) == 0 {
		return nil, fmt.Errorf("%w: no quotas named", ErrNotFound)
	}

	team := &TeamPerformance{
		TenantID:   tenantID,
		QuotaIDs:   quotaIDs,
		ComputedAt: time.Now(),
	}
	for _, id := range quotaIDs {
		perf, err := e.Performance(ctx, id)
		if err != nil {
			return nil, err
		}
		team.TargetAmount += perf.TargetAmount
		team.ActualAmount += perf.ActualAmount
		team.ForecastedAmount += perf.ForecastedAmount
		team.RiskAdjustedForecast += perf.RiskAdjustedForecast
	}
	if team.TargetAmount > 0 {
		team.Attainment = team.ActualAmount / team.TargetAmount
		team.ForecastedAttainment = team.ForecastedAmount / team.TargetAmount
		team.RiskAdjustedAttainment = team.RiskAdjustedForecast / team.TargetAmount
	}
	return team, nil
}
