package detect

import (
	"testing"
)

func TestParseExpr_Numeric(t *testing.T) {
	expr, err := ParseExpr("days_to_close < 30 && probability < 70")
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}

	fields := map[string]float64{"days_to_close": 12, "probability": 55}
	ok, facts := expr.Eval(fields, "proposal")
	if !ok {
		t.Fatal("expected expression to match")
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 cited facts, got %d", len(facts))
	}
	if facts[0].Name != "days_to_close" || facts[0].Value != 12 {
		t.Errorf("unexpected first fact: %+v", facts[0])
	}

	fields["probability"] = 90
	if ok, _ := expr.Eval(fields, "proposal"); ok {
		t.Error("expected expression to miss at probability 90")
	}
}

func TestParseExpr_StageSet(t *testing.T) {
	expr, err := ParseExpr("days_since_activity > 14 && stage not_in (closed_won, closed_lost)")
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}

	fields := map[string]float64{"days_since_activity": 20}
	if ok, _ := expr.Eval(fields, "negotiation"); !ok {
		t.Error("expected match for open stage")
	}
	if ok, _ := expr.Eval(fields, "closed_won"); ok {
		t.Error("expected no match for terminal stage")
	}
}

func TestParseExpr_StageEquality(t *testing.T) {
	expr, err := ParseExpr("stage == negotiation && probability < 50")
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}

	fields := map[string]float64{"probability": 40}
	if ok, _ := expr.Eval(fields, "negotiation"); !ok {
		t.Error("expected match")
	}
	if ok, _ := expr.Eval(fields, "proposal"); ok {
		t.Error("expected stage mismatch")
	}
}

func TestParseExpr_Errors(t *testing.T) {
	cases := []string{
		"",
		"days_to_close <",
		"bogus_field > 5",
		"probability ~ 50",
		"stage in closed_won",  // missing parens
		"days_to_close < soon", // bad literal
	}
	for _, c := range cases {
		if _, err := ParseExpr(c); err == nil {
			t.Errorf("expected parse error for %q", c)
		}
	}
}

func TestDescribe(t *testing.T) {
	expr, _ := ParseExpr("days_to_close < 30 && probability < 70")
	got := expr.Describe(map[string]float64{"days_to_close": 62, "probability": 65}, "proposal")
	want := "days_to_close=62 (< 30), probability=65 (< 70)"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestEval_Deterministic(t *testing.T) {
	expr, _ := ParseExpr("revenue_gap_pct > 0.15")
	fields := map[string]float64{"revenue_gap_pct": 0.2}
	for i := 0; i < 10; i++ {
		ok, facts := expr.Eval(fields, "proposal")
		if !ok || len(facts) != 1 || facts[0].Value != 0.2 {
			t.Fatal("evaluation must be deterministic")
		}
	}
}
