package rules

import (
	"context"
	"testing"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

func testProductRule(id, expression string) *domain.ProductRule {
	return &domain.ProductRule{
		ID:          id,
		TenantID:    "*",
		Name:        "Test Rule " + id,
		Description: "测试规则触发",
		Version:     "1.0.0",
		Expression:  expression,
		Category:    "预定利率",
		Severity:    domain.SeverityHigh,
		Enabled:     true,
	}
}

func TestEngineLoadRule(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	t.Run("ValidRule", func(t *testing.T) {
		if err := engine.LoadRule(testProductRule("pr-001", `interest_rate > 0.035`)); err != nil {
			t.Errorf("LoadRule failed: %v", err)
		}
		if engine.RulesCount() != 1 {
			t.Errorf("expected 1 rule, got %d", engine.RulesCount())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		err := engine.LoadRule(testProductRule("pr-bad", `interest_rate >`))
		if err == nil {
			t.Error("expected error for invalid expression")
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		err := engine.LoadRule(testProductRule("pr-nonbool", `interest_rate + 1.0`))
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		err := engine.LoadRule(testProductRule("pr-unknown", `nonexistent > 1.0`))
		if err == nil {
			t.Error("expected error for unknown variable")
		}
	})
}

func TestEngineValidateRule(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if err := engine.ValidateRule(testProductRule("pr-v", `expense_rate > 0.35`)); err != nil {
		t.Errorf("ValidateRule failed: %v", err)
	}

	// Validation must not load the rule
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 loaded rules after validation, got %d", engine.RulesCount())
	}

	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestEngineEvaluateAll(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	rules := []*domain.ProductRule{
		testProductRule("pr-interest", `interest_rate > 0.035`),
		testProductRule("pr-dividend", `has_dividend && product_type == "accident"`),
		testProductRule("pr-never", `expense_rate > 0.99`),
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	input := &EvaluateInput{
		TenantID:    "tenant-001",
		AuditID:     "AUD-test",
		ProductType: "accident",
		Info: domain.ProductInfo{
			ProductName: "测试意外险",
			ProductType: "意外险",
		},
		Params: domain.PricingParams{
			InterestRate: "4.5",
			ExpenseRate:  "0.20",
			HasDividend:  true,
		},
	}

	results, err := engine.EvaluateAll(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	triggered := map[string]bool{}
	for _, r := range results {
		triggered[r.RuleID] = r.Triggered
		if r.TenantID != "tenant-001" {
			t.Errorf("expected tenant tenant-001, got %s", r.TenantID)
		}
	}

	// 4.5 is treated as a percentage and normalized to 0.045
	if !triggered["pr-interest"] {
		t.Error("expected pr-interest to trigger")
	}
	if !triggered["pr-dividend"] {
		t.Error("expected pr-dividend to trigger")
	}
	if triggered["pr-never"] {
		t.Error("expected pr-never not to trigger")
	}
}

func TestEngineEvaluateAllEmpty(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	results, err := engine.EvaluateAll(context.Background(), &EvaluateInput{})
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty engine, got %d", len(results))
	}
}

func TestEngineReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRule(testProductRule("pr-old", `interest_rate > 0.01`)); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	newRules := []*domain.ProductRule{
		testProductRule("pr-new-1", `expense_rate > 0.35`),
		testProductRule("pr-new-2", `has_cash_value`),
	}
	disabled := testProductRule("pr-disabled", `has_dividend`)
	disabled.Enabled = false
	newRules = append(newRules, disabled)

	if err := engine.ReloadRules(newRules); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	loaded := engine.GetLoadedRules()
	for _, r := range loaded {
		if r.ID == "pr-old" {
			t.Error("expected old rule to be replaced")
		}
		if r.ID == "pr-disabled" {
			t.Error("expected disabled rule to be skipped")
		}
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"0.035", 0.035},
		{"3.5", 0.035},
		{"15", 0.15},
		{"1", 1},
		{"", 0},
		{"终身", 0},
	}

	for _, tt := range tests {
		if got := ParseRate(tt.input); got != tt.expected {
			t.Errorf("ParseRate(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestToViolations(t *testing.T) {
	loaded := []*domain.ProductRule{
		testProductRule("pr-001", `interest_rate > 0.035`),
	}

	results := []domain.ProductRuleResult{
		{RuleID: "pr-001", Triggered: true, Severity: domain.SeverityHigh},
		{RuleID: "pr-001", Triggered: false},
		{RuleID: "pr-gone", Triggered: true},
	}

	violations := ToViolations(results, loaded)

	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if v.Rule != "pr-001" {
		t.Errorf("expected rule pr-001, got %s", v.Rule)
	}
	if v.ClauseIndex != -1 {
		t.Errorf("expected clause index -1, got %d", v.ClauseIndex)
	}
	if v.Severity != domain.SeverityHigh {
		t.Errorf("expected severity high, got %s", v.Severity)
	}
}
