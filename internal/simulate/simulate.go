// Package simulate answers what-if questions: apply overrides to a copy of an
// opportunity, re-evaluate, and report the delta against the baseline. The
// stored opportunity is never touched.
package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/revlens/revlens/internal/detect"
	"github.com/revlens/revlens/internal/opportunity"
)

// ErrInvalidScenario rejects a scenario before any computation runs.
var ErrInvalidScenario = errors.New("invalid simulation scenario")

// Overrides are the what-if inputs. Nil fields keep the baseline value;
// at least one must be set. Label optionally names the scenario so compare
// output stays identifiable; it is not an override.
type Overrides struct {
	Label       string             `json:"label,omitempty"`
	Probability *float64           `json:"probability,omitempty"` // 0-100
	CloseDate   *time.Time         `json:"closeDate,omitempty"`
	Stage       *opportunity.Stage `json:"stage,omitempty"`
	Value       *float64           `json:"value,omitempty"`
}

// Validate checks a scenario before anything is computed.
func (o *Overrides) Validate() error {
	if o.Probability == nil && o.CloseDate == nil && o.Stage == nil && o.Value == nil {
		return fmt.Errorf("%w: at least one override is required", ErrInvalidScenario)
	}
	if o.Probability != nil && (*o.Probability < 0 || *o.Probability > 100) {
		return fmt.Errorf("%w: probability must be within [0,100]", ErrInvalidScenario)
	}
	if o.CloseDate != nil && o.CloseDate.IsZero() {
		return fmt.Errorf("%w: close date must be a valid date", ErrInvalidScenario)
	}
	if o.Stage != nil && !validStage(*o.Stage) {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidScenario, *o.Stage)
	}
	if o.Value != nil && *o.Value <= 0 {
		return fmt.Errorf("%w: value must be positive", ErrInvalidScenario)
	}
	return nil
}

// Apply returns a copy of the baseline with the overrides in effect.
func (o *Overrides) Apply(baseline *opportunity.Snapshot) *opportunity.Snapshot {
	c := baseline.Clone()
	if o.Probability != nil {
		c.Probability = *o.Probability
	}
	if o.CloseDate != nil {
		c.CloseDate = *o.CloseDate
	}
	if o.Stage != nil {
		c.Stage = *o.Stage
	}
	if o.Value != nil {
		c.Value = *o.Value
	}
	return c
}

func validStage(s opportunity.Stage) bool {
	switch s {
	case opportunity.StageProspecting, opportunity.StageQualification,
		opportunity.StageProposal, opportunity.StageNegotiation,
		opportunity.StageClosedWon, opportunity.StageClosedLost:
		return true
	}
	return false
}

// Outcome is one evaluated side of a simulation.
type Outcome struct {
	AggregateScore           float64               `json:"aggregateScore"`
	Risks                    []detect.DetectedRisk `json:"risks"`
	ProbabilityWeightedValue float64               `json:"probabilityWeightedValue"`
	RiskAdjustedValue        float64               `json:"riskAdjustedValue"`
	AtRiskAmount             float64               `json:"atRiskAmount"`
}

// Delta is scenario minus baseline for each headline number. A negative
// at-risk delta means the scenario reduces exposure.
type Delta struct {
	AggregateScore           float64 `json:"aggregateScore"`
	ProbabilityWeightedValue float64 `json:"probabilityWeightedValue"`
	RiskAdjustedValue        float64 `json:"riskAdjustedValue"`
	AtRiskAmount             float64 `json:"atRiskAmount"`
}

// Result is one completed what-if run.
type Result struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	Label         string    `json:"label,omitempty"`
	Overrides     Overrides `json:"overrides"`
	Baseline      Outcome   `json:"baseline"`
	Scenario      Outcome   `json:"scenario"`
	Delta         Delta     `json:"delta"`
	ComputedAt    time.Time `json:"computedAt"`
}
