package detect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/opportunity"
)

// QuotaContext is optional owner quota pressure passed to the AI prompt.
// Informational only: it never feeds the aggregate score.
type QuotaContext struct {
	TargetAmount      float64   `json:"targetAmount"`
	PeriodEnd         time.Time `json:"periodEnd"`
	AttainmentToDate  float64   `json:"attainmentToDate"`
	OpenPipelineValue float64   `json:"openPipelineValue"`
}

// promptContext is the structured numerical surface sent to the completer.
type promptContext struct {
	Opportunity promptOpportunity `json:"opportunity"`
	Quota       *QuotaContext     `json:"ownerQuota,omitempty"`
	Categories  []string          `json:"riskCategories"`
	KnownRisks  []promptRiskDef   `json:"knownRisks"`
}

type promptOpportunity struct {
	ID                string  `json:"id"`
	Name              string  `json:"name,omitempty"`
	Value             float64 `json:"value"`
	Currency          string  `json:"currency,omitempty"`
	ExpectedRevenue   float64 `json:"expectedRevenue"`
	Probability       float64 `json:"probability"`
	Stage             string  `json:"stage"`
	CloseDate         string  `json:"closeDate,omitempty"`
	LastActivityAt    string  `json:"lastActivityAt,omitempty"`
	DaysToClose       float64 `json:"daysToClose"`
	DaysSinceActivity float64 `json:"daysSinceActivity"`
	RevenueGapPct     float64 `json:"revenueGapPct"`
	StakeholderCount  int     `json:"stakeholderCount"`
	ActivityCount30d  int     `json:"activityCount30d"`
	AccountID         string  `json:"accountId,omitempty"`
}

// SchemaHint is the response structure the detector asks the completer for.
const SchemaHint = `{"risks":[{"riskId":"string","riskName":"string","category":"string","confidence":0.0,"explanation":"string citing numeric evidence"}]}`

// BuildPrompt renders the detection instruction plus the JSON context block.
func BuildPrompt(snap *opportunity.Snapshot, derived opportunity.Derived, cat *catalog.Catalog, quota *QuotaContext) (string, error) {
	pc := promptContext{
		Opportunity: promptOpportunity{
			ID:                snap.ID,
			Name:              snap.Name,
			Value:             snap.Value,
			Currency:          snap.Currency,
			ExpectedRevenue:   snap.ExpectedRevenue,
			Probability:       snap.Probability,
			Stage:             string(snap.Stage),
			DaysToClose:       derived.DaysToClose,
			DaysSinceActivity: derived.DaysSinceActivity,
			RevenueGapPct:     derived.RevenueGapPct,
			StakeholderCount:  len(snap.StakeholderIDs),
			ActivityCount30d:  snap.ActivityCount30d,
			AccountID:         snap.AccountID,
		},
		Quota: quota,
	}
	if !snap.CloseDate.IsZero() {
		pc.Opportunity.CloseDate = snap.CloseDate.Format(time.RFC3339)
	}
	if !snap.LastActivityAt.IsZero() {
		pc.Opportunity.LastActivityAt = snap.LastActivityAt.Format(time.RFC3339)
	}
	for _, c := range catalog.Categories() {
		pc.Categories = append(pc.Categories, string(c))
	}
	for _, def := range cat.Definitions() {
		pc.KnownRisks = append(pc.KnownRisks, promptRiskDef{
			ID: def.ID, Name: def.Name, Category: string(def.Category),
		})
	}

	blob, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt context: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze this sales opportunity for risks. ")
	b.WriteString("Only report risks from the knownRisks list, referencing their riskId. ")
	b.WriteString("Score each risk's confidence between 0 and 1 and cite the numeric evidence in the explanation.\n\n")
	b.Write(blob)
	return b.String(), nil
}

type promptRiskDef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
