package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/opportunity"
)

// RuleDetector evaluates catalog rule expressions against a snapshot.
// Deterministic: the same snapshot and catalog always produce the same risk
// set. Rules are binary, so hits carry confidence 1.0.
type RuleDetector struct{}

// NewRuleDetector creates a rule-based detector.
func NewRuleDetector() *RuleDetector {
	return &RuleDetector{}
}

// Detect returns one DetectedRisk per definition whose expression matches.
// Definitions with empty or unparsable expressions are skipped (and logged),
// never failed: a broken custom rule must not take down evaluation.
func (d *RuleDetector) Detect(ctx context.Context, snap *opportunity.Snapshot, derived opportunity.Derived, cat *catalog.Catalog) []DetectedRisk {
	fields := FieldValues(snap, derived)
	stage := string(snap.Stage)

	var risks []DetectedRisk
	for _, def := range cat.Definitions() {
		if def.RuleExpression == "" {
			continue
		}
		expr, err := ParseExpr(def.RuleExpression)
		if err != nil {
			logging.L(ctx).Warn("skipping unparsable rule expression",
				"risk_id", def.ID, "rule", def.RuleExpression, "error", err)
			continue
		}

		matched, facts := expr.Eval(fields, stage)
		if !matched {
			continue
		}

		risks = append(risks, DetectedRisk{
			RiskID:      def.ID,
			RiskName:    def.Name,
			Category:    def.Category,
			Source:      SourceRule,
			Confidence:  1.0,
			Explanation: fmt.Sprintf("%s: %s", def.Name, expr.Describe(fields, stage)),
			Evidence:    facts,
		})
	}

	// Stable output order regardless of catalog map iteration upstream.
	sort.Slice(risks, func(i, j int) bool { return risks[i].RiskID < risks[j].RiskID })
	return risks
}

// FieldValues resolves the numeric surface rule expressions can reference.
func FieldValues(snap *opportunity.Snapshot, derived opportunity.Derived) map[string]float64 {
	return map[string]float64{
		"value":               snap.Value,
		"expected_revenue":    snap.ExpectedRevenue,
		"probability":         snap.Probability,
		"days_to_close":       derived.DaysToClose,
		"days_since_activity": derived.DaysSinceActivity,
		"revenue_gap_pct":     derived.RevenueGapPct,
		"stakeholder_count":   float64(len(snap.StakeholderIDs)),
		"activity_count_30d":  float64(snap.ActivityCount30d),
	}
}
