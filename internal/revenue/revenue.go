// Package revenue turns risk profiles into money figures: probability-weighted
// value, risk-adjusted value, and the amount at risk, at opportunity scope or
// rolled up across a portfolio, team, or tenant.
package revenue

import (
	"errors"
	"time"

	"github.com/revlens/revlens/internal/opportunity"
)

var (
	ErrUnknownScope = errors.New("unknown revenue scope")
	ErrNoMembers    = errors.New("rollup scope has no members")
)

// Scope is the aggregation level of a revenue-at-risk figure.
type Scope string

const (
	ScopeOpportunity Scope = "opportunity"
	ScopePortfolio   Scope = "portfolio" // one owner's open deals
	ScopeTeam        Scope = "team"      // several owners
	ScopeTenant      Scope = "tenant"
)

// RevenueAtRisk is one computed figure. Rollups sum the component amounts of
// their members; ratios are never averaged across members.
type RevenueAtRisk struct {
	Scope                    Scope     `json:"scope"`
	ScopeID                  string    `json:"scopeId"`
	Currency                 string    `json:"currency,omitempty"`
	OpportunityCount         int       `json:"opportunityCount"`
	GrossValue               float64   `json:"grossValue"`
	ProbabilityWeightedValue float64   `json:"probabilityWeightedValue"`
	RiskAdjustedValue        float64   `json:"riskAdjustedValue"`
	AtRiskAmount             float64   `json:"atRiskAmount"`
	ComputedAt               time.Time `json:"computedAt"`
}

// DefaultImpactFactor scales how strongly the aggregate risk score discounts
// the probability-weighted value.
const DefaultImpactFactor = 0.5

// Calculator computes revenue-at-risk figures from snapshots and aggregate
// risk scores. It is stateless and safe for concurrent use.
type Calculator struct {
	impactFactor float64
}

// NewCalculator creates a calculator. A non-positive impact factor falls back
// to the default.
func NewCalculator(impactFactor float64) *Calculator {
	if impactFactor <= 0 {
		impactFactor = DefaultImpactFactor
	}
	return &Calculator{impactFactor: impactFactor}
}

// ImpactFactor returns the configured risk impact factor.
func (c *Calculator) ImpactFactor() float64 { return c.impactFactor }

// ForOpportunity computes the opportunity-scope figure:
//
//	pw           = value × probability/100
//	riskAdjusted = pw × (1 − aggregateScore × impactFactor)
//	atRisk       = pw − riskAdjusted
//
// riskAdjusted is monotonically non-increasing in the aggregate score.
func (c *Calculator) ForOpportunity(snap *opportunity.Snapshot, aggregateScore float64, at time.Time) RevenueAtRisk {
	if aggregateScore < 0 {
		aggregateScore = 0
	}
	if aggregateScore > 1 {
		aggregateScore = 1
	}

	pw := snap.Value * snap.Probability / 100
	riskAdjusted := pw * (1 - aggregateScore*c.impactFactor)

	return RevenueAtRisk{
		Scope:                    ScopeOpportunity,
		ScopeID:                  snap.ID,
		Currency:                 snap.Currency,
		OpportunityCount:         1,
		GrossValue:               snap.Value,
		ProbabilityWeightedValue: pw,
		RiskAdjustedValue:        riskAdjusted,
		AtRiskAmount:             pw - riskAdjusted,
		ComputedAt:               at,
	}
}
