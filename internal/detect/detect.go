// Package detect produces candidate risks for an opportunity snapshot.
//
// Two detectors feed the evaluation engine: a deterministic rule-based
// detector driven by catalog rule expressions, and a best-effort AI-assisted
// detector backed by an external completion service. Both emit the same
// tagged DetectedRisk shape so the merge step never branches on source type.
package detect

import (
	"fmt"

	"github.com/revlens/revlens/internal/catalog"
)

// Source tags which detector produced a risk.
type Source string

const (
	SourceRule Source = "rule"
	SourceAI   Source = "ai"
)

// Fact is a single numeric evidence item cited by a detection.
type Fact struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// DetectedRisk is one candidate risk, ephemeral per evaluation.
type DetectedRisk struct {
	RiskID      string           `json:"riskId"`
	RiskName    string           `json:"riskName"`
	Category    catalog.Category `json:"category"`
	Source      Source           `json:"source"`
	Confidence  float64          `json:"confidence"` // 0-1
	Explanation string           `json:"explanation"`
	Evidence    []Fact           `json:"evidence,omitempty"`
}

// clamp bounds confidence to [0,1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (f Fact) String() string {
	return fmt.Sprintf("%s=%.4g", f.Name, f.Value)
}
