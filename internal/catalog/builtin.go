package catalog

import (
	"time"

	"github.com/revlens/revlens/internal/idgen"
)

// builtinSpec describes one default definition; ids are minted per tenant at seed time.
type builtinSpec struct {
	name     string
	category Category
	weight   float64
	rule     string
}

// The built-in detection set. Rule fields reference the snapshot's numeric
// surface plus the derived fields computed at evaluation time.
var builtins = []builtinSpec{
	{
		name:     "Timeline Pressure",
		category: CategoryTimeline,
		weight:   0.8,
		rule:     "days_to_close < 30 && probability < 70",
	},
	{
		name:     "Overdue Close Date",
		category: CategoryTimeline,
		weight:   0.9,
		rule:     "days_to_close < 0 && stage not_in (closed_won, closed_lost)",
	},
	{
		name:     "Deal Stagnation",
		category: CategoryOperational,
		weight:   0.7,
		rule:     "days_since_activity > 14 && stage not_in (closed_won, closed_lost)",
	},
	{
		name:     "Revenue Gap",
		category: CategoryFinancial,
		weight:   0.6,
		rule:     "revenue_gap_pct > 0.15",
	},
	{
		name:     "Late-Stage Low Confidence",
		category: CategoryStage,
		weight:   0.75,
		rule:     "stage == negotiation && probability < 50",
	},
	{
		name:     "Single-Threaded Relationship",
		category: CategoryRelationship,
		weight:   0.5,
		rule:     "stakeholder_count <= 1 && stage not_in (closed_won, closed_lost)",
	},
	{
		name:     "Low Engagement",
		category: CategoryOperational,
		weight:   0.4,
		rule:     "activity_count_30d < 3 && days_to_close < 60",
	},
}

// BuiltinDefinitions mints the default definition set for a tenant.
func BuiltinDefinitions(tenantID string) []*Definition {
	now := time.Now()
	defs := make([]*Definition, 0, len(builtins))
	for _, b := range builtins {
		defs = append(defs, &Definition{
			ID:             idgen.WithPrefix("risk_"),
			TenantID:       tenantID,
			Name:           b.name,
			Category:       b.category,
			Weight:         b.weight,
			RuleExpression: b.rule,
			IsCustom:       false,
			Version:        1,
			Active:         true,
			CreatedAt:      now,
		})
	}
	return defs
}
