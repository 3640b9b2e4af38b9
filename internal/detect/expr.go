package detect

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule expressions are conjunctions of simple comparisons over the snapshot's
// numeric surface and derived fields, e.g.
//
//	days_to_close < 30 && probability < 70
//	stage not_in (closed_won, closed_lost) && days_since_activity > 14
//
// The grammar is deliberately tiny: clauses joined by &&, each clause
// `field op literal`. Numeric fields take < <= > >= == !=; the stage field
// takes == != in not_in with stage-name literals.

// numericFields are the resolvable numeric field names.
var numericFields = map[string]bool{
	"value":              true,
	"expected_revenue":   true,
	"probability":        true,
	"days_to_close":      true,
	"days_since_activity": true,
	"revenue_gap_pct":    true,
	"stakeholder_count":  true,
	"activity_count_30d": true,
}

type clause struct {
	field string
	op    string
	num   float64  // numeric comparisons
	set   []string // stage in/not_in sets, or single stage for ==/!=
}

// Expr is a parsed rule expression.
type Expr struct {
	clauses []clause
	raw     string
}

// ParseExpr parses a rule expression. Definitions with unparsable expressions
// are skipped at detection time, so admins get errors at authoring time via
// this same function.
func ParseExpr(raw string) (*Expr, error) {
	parts := strings.Split(raw, "&&")
	expr := &Expr{raw: raw}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty clause in %q", raw)
		}
		cl, err := parseClause(part)
		if err != nil {
			return nil, err
		}
		expr.clauses = append(expr.clauses, cl)
	}
	if len(expr.clauses) == 0 {
		return nil, fmt.Errorf("expression %q has no clauses", raw)
	}
	return expr, nil
}

func parseClause(part string) (clause, error) {
	fields := strings.Fields(part)
	if len(fields) < 3 {
		return clause{}, fmt.Errorf("malformed clause %q", part)
	}

	cl := clause{field: fields[0], op: fields[1]}
	rest := strings.Join(fields[2:], " ")

	if cl.field == "stage" {
		switch cl.op {
		case "==", "!=":
			cl.set = []string{strings.TrimSpace(rest)}
		case "in", "not_in":
			trimmed := strings.TrimSpace(rest)
			if !strings.HasPrefix(trimmed, "(") || !strings.HasSuffix(trimmed, ")") {
				return clause{}, fmt.Errorf("stage set in %q must be parenthesized", part)
			}
			for _, s := range strings.Split(trimmed[1:len(trimmed)-1], ",") {
				s = strings.TrimSpace(s)
				if s == "" {
					return clause{}, fmt.Errorf("empty stage name in %q", part)
				}
				cl.set = append(cl.set, s)
			}
		default:
			return clause{}, fmt.Errorf("unsupported stage operator %q", cl.op)
		}
		return cl, nil
	}

	if !numericFields[cl.field] {
		return clause{}, fmt.Errorf("unknown field %q", cl.field)
	}
	switch cl.op {
	case "<", "<=", ">", ">=", "==", "!=":
	default:
		return clause{}, fmt.Errorf("unsupported operator %q for field %q", cl.op, cl.field)
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return clause{}, fmt.Errorf("bad numeric literal in %q: %w", part, err)
	}
	cl.num = num
	return cl, nil
}

// Eval evaluates the expression against the resolved field values and stage.
// When every clause holds it returns true plus the numeric facts the clauses
// cited, in clause order.
func (e *Expr) Eval(fields map[string]float64, stage string) (bool, []Fact) {
	facts := make([]Fact, 0, len(e.clauses))
	for _, cl := range e.clauses {
		if cl.field == "stage" {
			if !evalStage(cl, stage) {
				return false, nil
			}
			continue
		}

		v := fields[cl.field]
		if !evalNumeric(cl.op, v, cl.num) {
			return false, nil
		}
		facts = append(facts, Fact{Name: cl.field, Value: v})
	}
	return true, facts
}

// Describe renders the matched clauses with their observed values, e.g.
// "days_to_close=12 (< 30), probability=55 (< 70)".
func (e *Expr) Describe(fields map[string]float64, stage string) string {
	parts := make([]string, 0, len(e.clauses))
	for _, cl := range e.clauses {
		if cl.field == "stage" {
			parts = append(parts, fmt.Sprintf("stage=%s (%s %s)", stage, cl.op, strings.Join(cl.set, ",")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.4g (%s %.4g)", cl.field, fields[cl.field], cl.op, cl.num))
	}
	return strings.Join(parts, ", ")
}

func evalStage(cl clause, stage string) bool {
	switch cl.op {
	case "==":
		return stage == cl.set[0]
	case "!=":
		return stage != cl.set[0]
	case "in":
		return stageInSet(stage, cl.set)
	case "not_in":
		return !stageInSet(stage, cl.set)
	}
	return false
}

func stageInSet(stage string, set []string) bool {
	for _, s := range set {
		if s == stage {
			return true
		}
	}
	return false
}

func evalNumeric(op string, actual, target float64) bool {
	switch op {
	case "<":
		return actual < target
	case "<=":
		return actual <= target
	case ">":
		return actual > target
	case ">=":
		return actual >= target
	case "==":
		return actual == target
	case "!=":
		return actual != target
	}
	return false
}
