package detect

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/revlens/revlens/internal/catalog"
)

// ParserConfig sets the confidence assigned to lexical cues when the
// completer's response is not parseable JSON. The cutoffs are qualitative
// buckets, not reproduced exact behavior, so they stay configurable.
type ParserConfig struct {
	HighConfidence   float64 // "high", "likely"
	MediumConfidence float64 // "medium", "possible"
	LowConfidence    float64 // "low", "unlikely"
}

// DefaultParserConfig returns the default cue buckets.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		HighConfidence:   0.8,
		MediumConfidence: 0.5,
		LowConfidence:    0.2,
	}
}

type aiResponse struct {
	Risks []aiRisk `json:"risks"`
}

type aiRisk struct {
	RiskID      string  `json:"riskId"`
	RiskName    string  `json:"riskName"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

var (
	percentRe = regexp.MustCompile(`(\d{1,3})\s*%`)
	numberRe  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ParseResponse turns raw completer output into detected risks. It first
// attempts the structured contract; on malformed or missing structure it
// falls back to lexical scanning. Risk names that do not resolve in the
// catalog are dropped. The bool reports whether the structured path was used.
func ParseResponse(raw string, cat *catalog.Catalog, cfg ParserConfig) ([]DetectedRisk, bool) {
	if risks, ok := parseStructured(raw, cat); ok {
		return risks, true
	}
	return parseLexical(raw, cat, cfg), false
}

func parseStructured(raw string, cat *catalog.Catalog) ([]DetectedRisk, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return nil, false
	}
	if resp.Risks == nil {
		return nil, false
	}

	var risks []DetectedRisk
	for _, r := range resp.Risks {
		def, ok := cat.ByID(r.RiskID)
		if !ok {
			def, ok = cat.ByName(r.RiskName)
		}
		if !ok {
			continue // unresolvable risk, dropped
		}
		risks = append(risks, DetectedRisk{
			RiskID:      def.ID,
			RiskName:    def.Name,
			Category:    def.Category,
			Source:      SourceAI,
			Confidence:  clamp(r.Confidence),
			Explanation: r.Explanation,
			Evidence:    citedNumbers(r.Explanation),
		})
	}
	return risks, true
}

// parseLexical scans free text for catalog risk names and categories, and
// assigns confidence from nearby cues. An explicit percentage overrides the
// cue buckets. A category mention covers every definition in that category
// the name scan did not already produce.
func parseLexical(raw string, cat *catalog.Catalog, cfg ParserConfig) []DetectedRisk {
	lower := strings.ToLower(raw)

	var risks []DetectedRisk
	named := make(map[string]bool)
	for _, def := range cat.Definitions() {
		idx := strings.Index(lower, strings.ToLower(def.Name))
		if idx < 0 {
			continue
		}
		risks = append(risks, lexicalRisk(def, raw, lower, idx, cfg))
		named[def.ID] = true
	}

	for _, def := range cat.Definitions() {
		if named[def.ID] {
			continue
		}
		idx := strings.Index(lower, string(def.Category))
		if idx < 0 {
			continue
		}
		risks = append(risks, lexicalRisk(def, raw, lower, idx, cfg))
	}
	return risks
}

// lexicalRisk builds a detection for a definition mentioned at idx.
// Confidence cues are read from the sentence the mention appears in.
func lexicalRisk(def *catalog.Definition, raw, lower string, idx int, cfg ParserConfig) DetectedRisk {
	sentence := surroundingSentence(lower, idx)
	confidence := cueConfidence(sentence, cfg)
	if pct, ok := explicitPercent(sentence); ok {
		confidence = pct
	}

	return DetectedRisk{
		RiskID:      def.ID,
		RiskName:    def.Name,
		Category:    def.Category,
		Source:      SourceAI,
		Confidence:  clamp(confidence),
		Explanation: strings.TrimSpace(surroundingSentence(raw, idx)),
		Evidence:    citedNumbers(sentence),
	}
}

// surroundingSentence returns the period-delimited sentence containing idx.
func surroundingSentence(s string, idx int) string {
	start := strings.LastIndex(s[:idx], ".") + 1
	end := strings.Index(s[idx:], ".")
	if end < 0 {
		end = len(s)
	} else {
		end += idx
	}
	return s[start:end]
}

func cueConfidence(sentence string, cfg ParserConfig) float64 {
	// "unlikely" must win over its "likely" substring.
	switch {
	case strings.Contains(sentence, "unlikely") || strings.Contains(sentence, "low"):
		return cfg.LowConfidence
	case strings.Contains(sentence, "high") || strings.Contains(sentence, "likely"):
		return cfg.HighConfidence
	default:
		return cfg.MediumConfidence
	}
}

func explicitPercent(sentence string) (float64, bool) {
	m := percentRe.FindStringSubmatch(sentence)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct / 100, true
}

// citedNumbers extracts the numeric facts an explanation cites, capped so a
// rambling response cannot bloat the profile.
func citedNumbers(text string) []Fact {
	matches := numberRe.FindAllString(text, 6)
	facts := make([]Fact, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		facts = append(facts, Fact{Name: "cited", Value: v})
	}
	if len(facts) == 0 {
		return nil
	}
	return facts
}
