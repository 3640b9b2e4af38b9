package evaluate

import (
	"context"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/detect"
	"github.com/revlens/revlens/internal/idgen"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/traces"
)

// AIDetector is the optional AI-assisted detection capability. When absent
// the engine runs rule-only, which is a valid degraded profile. The bool
// reports whether the AI answered; a clean run with zero risks is not degraded.
type AIDetector interface {
	Detect(ctx context.Context, snap *opportunity.Snapshot, derived opportunity.Derived, cat *catalog.Catalog, quota *detect.QuotaContext) ([]detect.DetectedRisk, bool)
}

// Engine runs both detectors and produces risk profiles.
type Engine struct {
	rules    *detect.RuleDetector
	ai       AIDetector           // nil = rule-only
	profiles ProfileStore         // nil = profiles not retained
	listener func(*RiskProfile)   // nil = no live feed
}

// Option configures the engine.
type Option func(*Engine)

// WithAIDetector enables AI-assisted detection.
func WithAIDetector(ai AIDetector) Option {
	return func(e *Engine) { e.ai = ai }
}

// WithProfileStore retains each produced profile as a historical snapshot.
func WithProfileStore(store ProfileStore) Option {
	return func(e *Engine) { e.profiles = store }
}

// WithProfileListener registers a callback invoked with every produced
// profile, after retention. Used for live streaming; must not block.
func WithProfileListener(fn func(*RiskProfile)) Option {
	return func(e *Engine) { e.listener = fn }
}

// NewEngine creates an evaluation engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: detect.NewRuleDetector()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores one snapshot against an immutable catalog snapshot.
// The two detectors run concurrently; the AI detector is best-effort and a
// cancelled or failed AI call never blocks the rule-based result.
func (e *Engine) Evaluate(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog) (*RiskProfile, error) {
	return e.evaluateAt(ctx, snap, cat, nil, time.Now())
}

// EvaluateWithQuota is Evaluate with owner quota context for the AI prompt.
func (e *Engine) EvaluateWithQuota(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog, quota *detect.QuotaContext) (*RiskProfile, error) {
	return e.evaluateAt(ctx, snap, cat, quota, time.Now())
}

func (e *Engine) evaluateAt(ctx context.Context, snap *opportunity.Snapshot, cat *catalog.Catalog, quota *detect.QuotaContext, now time.Time) (*RiskProfile, error) {
	start := time.Now()

	if err := validateSnapshot(snap); err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if cat == nil || cat.Len() == 0 {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, ErrCatalogUnavailable
	}

	ctx, span := traces.StartSpan(ctx, "evaluate.Evaluate",
		traces.OpportunityID(snap.ID), traces.TenantID(snap.TenantID))
	defer span.End()

	derived := snap.DeriveAt(now)

	// AI detection runs concurrently with the rules; it absorbs its own
	// failures and returns unavailable, so the receive below never blocks
	// past the detector's timeout.
	type aiOutcome struct {
		risks     []detect.DetectedRisk
		available bool
	}
	aiCh := make(chan aiOutcome, 1)
	if e.ai != nil {
		go func() {
			risks, available := e.ai.Detect(ctx, snap, derived, cat, quota)
			aiCh <- aiOutcome{risks, available}
		}()
	} else {
		aiCh <- aiOutcome{}
	}

	ruleRisks := e.rules.Detect(ctx, snap, derived, cat)
	aiRes := <-aiCh

	merged := mergeRisks(ruleRisks, aiRes.risks, cat)
	degraded := e.ai == nil || !aiRes.available

	profile := &RiskProfile{
		ID:             idgen.WithPrefix("prof_"),
		OpportunityID:  snap.ID,
		TenantID:       snap.TenantID,
		EvaluatedAt:    now,
		Risks:          merged,
		AggregateScore: aggregateScore(merged, cat),
		Degraded:       degraded,
		Inputs: InputSnapshot{
			Value:           snap.Value,
			ExpectedRevenue: snap.ExpectedRevenue,
			Probability:     snap.Probability,
			Stage:           string(snap.Stage),
			CloseDate:       snap.CloseDate,
			LastActivityAt:  snap.LastActivityAt,
			Derived:         derived,
		},
	}

	span.SetAttributes(traces.AggregateScore(profile.AggregateScore), traces.RiskCount(len(merged)))

	if e.profiles != nil {
		// Retention is best-effort: a dead store degrades history, not scoring.
		if err := e.profiles.Record(ctx, profile); err != nil {
			logging.L(ctx).Warn("failed to retain risk profile",
				"opportunity_id", snap.ID, "error", err)
		}
	}

	if e.listener != nil {
		e.listener(profile)
	}

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	return profile, nil
}
