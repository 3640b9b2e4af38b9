package evaluate

import (
	"sort"
	"strings"

	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/detect"
)

// mergeRisks deduplicates detections by riskId. When both sources detect the
// same risk the higher confidence wins and distinguishable evidence from both
// explanations is concatenated. The result is sorted descending by
// confidence × weight, ties broken by riskId for stable output.
func mergeRisks(ruleRisks, aiRisks []detect.DetectedRisk, cat *catalog.Catalog) []detect.DetectedRisk {
	byID := make(map[string]detect.DetectedRisk, len(ruleRisks)+len(aiRisks))

	for _, r := range ruleRisks {
		byID[r.RiskID] = r
	}
	for _, r := range aiRisks {
		existing, seen := byID[r.RiskID]
		if !seen {
			byID[r.RiskID] = r
			continue
		}
		byID[r.RiskID] = mergePair(existing, r)
	}

	merged := make([]detect.DetectedRisk, 0, len(byID))
	for _, r := range byID {
		merged = append(merged, r)
	}

	sort.Slice(merged, func(i, j int) bool {
		wi := rankWeight(merged[i], cat)
		wj := rankWeight(merged[j], cat)
		if wi != wj {
			return wi > wj
		}
		return merged[i].RiskID < merged[j].RiskID
	})
	return merged
}

// mergePair combines two detections of the same risk from different sources.
func mergePair(a, b detect.DetectedRisk) detect.DetectedRisk {
	kept, other := a, b
	if b.Confidence > a.Confidence {
		kept, other = b, a
	}

	if other.Explanation != "" && !strings.Contains(kept.Explanation, other.Explanation) {
		kept.Explanation = kept.Explanation + "; " + other.Explanation
	}
	kept.Evidence = appendNewFacts(kept.Evidence, other.Evidence)
	return kept
}

// appendNewFacts adds facts from other that kept does not already cite.
func appendNewFacts(kept, other []detect.Fact) []detect.Fact {
	seen := make(map[detect.Fact]bool, len(kept))
	for _, f := range kept {
		seen[f] = true
	}
	for _, f := range other {
		if !seen[f] {
			kept = append(kept, f)
			seen[f] = true
		}
	}
	return kept
}

func rankWeight(r detect.DetectedRisk, cat *catalog.Catalog) float64 {
	if def, ok := cat.ByID(r.RiskID); ok {
		return r.Confidence * def.Weight
	}
	return 0
}
