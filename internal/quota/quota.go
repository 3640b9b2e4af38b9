// Package quota tracks sales quota targets and computes attainment and
// forecast figures from the opportunity pipeline.
//
// Performance is always computed on demand from current data, never cached:
// the quota row only stores the target.
package quota

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("quota not found")
	ErrInvalidTarget  = errors.New("quota target amount must be positive")
	ErrInvalidPeriod  = errors.New("quota period end must be after start")
	ErrMissingUser    = errors.New("quota target user is required")
	ErrPeriodMismatch = errors.New("opportunity closes outside the quota period")
)

// Type distinguishes what a quota measures.
type Type string

const (
	TypeRevenue   Type = "revenue"
	TypeDealCount Type = "deal_count"
)

// Quota is one user's target for one period.
type Quota struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	TargetUserID string    `json:"targetUserId"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
	TargetAmount float64   `json:"targetAmount"`
	Currency     string    `json:"currency,omitempty"`
	QuotaType    Type      `json:"quotaType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate checks the intake invariants.
func (q *Quota) Validate() error {
	if strings.TrimSpace(q.TargetUserID) == "" {
		return ErrMissingUser
	}
	if q.TargetAmount <= 0 {
		return ErrInvalidTarget
	}
	if !q.PeriodEnd.After(q.PeriodStart) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether the close date falls inside the quota period.
func (q *Quota) Contains(closeDate time.Time) bool {
	return !closeDate.Before(q.PeriodStart) && !closeDate.After(q.PeriodEnd)
}

// Performance is the computed attainment and forecast for one quota.
//
// forecasted assumes open deals close at their stated probability;
// riskAdjusted additionally discounts by each deal's aggregate risk score.
type Performance struct {
	QuotaID      string    `json:"quotaId"`
	TargetUserID string    `json:"targetUserId"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
	TargetAmount float64   `json:"targetAmount"`

	ActualAmount         float64 `json:"actualAmount"`         // closed-won in period
	ForecastedAmount     float64 `json:"forecastedAmount"`     // actual + Σ pw(open)
	RiskAdjustedForecast float64 `json:"riskAdjustedForecast"` // actual + Σ riskAdjusted(open)
	OpenPipelineValue    float64 `json:"openPipelineValue"`

	Attainment             float64 `json:"attainment"`
	ForecastedAttainment   float64 `json:"forecastedAttainment"`
	RiskAdjustedAttainment float64 `json:"riskAdjustedAttainment"`

	WonCount   int       `json:"wonCount"`
	OpenCount  int       `json:"openCount"`
	ComputedAt time.Time `json:"computedAt"`
}

// Store persists quota targets.
type Store interface {
	Create(ctx context.Context, q *Quota) error
	Get(ctx context.Context, id string) (*Quota, error)
	// ListByTenant returns quotas for a tenant, newest period first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Quota, error)
	Delete(ctx context.Context, id string) error
}
