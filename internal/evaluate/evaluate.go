// Package evaluate merges rule-based and AI-assisted detections into one
// ranked risk profile with an aggregate score.
//
// Profiles are immutable value objects: a new evaluation produces a new
// profile, historical profiles are never mutated.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/detect"
	"github.com/revlens/revlens/internal/opportunity"
)

var (
	// ErrInvalidSnapshot is the evaluation input error: risk cannot be
	// meaningfully scored without a stage and a positive value.
	ErrInvalidSnapshot = errors.New("snapshot missing required fields")

	// ErrCatalogUnavailable means no usable risk definitions exist for the tenant.
	ErrCatalogUnavailable = errors.New("no active risk catalog for tenant")
)

// RiskProfile is the merged, scored output of one evaluation.
type RiskProfile struct {
	ID             string                `json:"id"`
	OpportunityID  string                `json:"opportunityId"`
	TenantID       string                `json:"tenantId"`
	EvaluatedAt    time.Time             `json:"evaluatedAt"`
	Risks          []detect.DetectedRisk `json:"risks"`
	AggregateScore float64               `json:"aggregateScore"` // 0-1
	Degraded       bool                  `json:"degraded"`       // true when AI detection was absent or unavailable
	Inputs         InputSnapshot         `json:"snapshotOfInputs"`
}

// InputSnapshot freezes the inputs a profile was scored against.
type InputSnapshot struct {
	Value           float64             `json:"value"`
	ExpectedRevenue float64             `json:"expectedRevenue"`
	Probability     float64             `json:"probability"`
	Stage           string              `json:"stage"`
	CloseDate       time.Time           `json:"closeDate,omitempty"`
	LastActivityAt  time.Time           `json:"lastActivityAt,omitempty"`
	Derived         opportunity.Derived `json:"derived"`
}

// ProfileStore retains historical profiles as immutable snapshots.
type ProfileStore interface {
	Record(ctx context.Context, profile *RiskProfile) error
	// ListByOpportunity returns profiles newest first, up to limit.
	ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*RiskProfile, error)
}

// validateSnapshot enforces the evaluation input invariants.
func validateSnapshot(snap *opportunity.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Stage == "" {
		return fmt.Errorf("%w: stage is required", ErrInvalidSnapshot)
	}
	if snap.Value <= 0 {
		return fmt.Errorf("%w: value must be positive", ErrInvalidSnapshot)
	}
	return nil
}

// aggregateScore computes the weighted mean over the full catalog: undetected
// risks contribute confidence 0, so the score reflects breadth and severity,
// not just the count of hits.
func aggregateScore(risks []detect.DetectedRisk, cat *catalog.Catalog) float64 {
	total := cat.TotalWeight()
	if total <= 0 {
		return 0
	}

	var weighted float64
	for _, r := range risks {
		def, ok := cat.ByID(r.RiskID)
		if !ok {
			continue
		}
		weighted += r.Confidence * def.Weight
	}

	score := weighted / total
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
