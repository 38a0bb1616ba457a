package pricing

import (
	"testing"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

func TestNormalizeProductType(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"寿险", domain.ProductTypeLife},
		{"终身寿险", domain.ProductTypeLife},
		{"健康险", domain.ProductTypeHealth},
		{"医疗保险", domain.ProductTypeHealth},
		{"重疾险", domain.ProductTypeHealth},
		{"意外伤害保险", domain.ProductTypeAccident},
		{"万能险", "万能险"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeProductType(tt.input); got != tt.expected {
			t.Errorf("NormalizeProductType(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestAnalyze(t *testing.T) {
	t.Run("AllReasonable", func(t *testing.T) {
		params := domain.PricingParams{
			MortalityRate: "0.0005",
			InterestRate:  "3.5",
			ExpenseRate:   "0.12",
		}

		analysis := Analyze(params, "寿险")

		if analysis.ID == "" {
			t.Error("expected analysis ID")
		}
		if analysis.ProductType != domain.ProductTypeLife {
			t.Errorf("expected product type life, got %s", analysis.ProductType)
		}
		if analysis.OverallScore != 100 {
			t.Errorf("expected score 100, got %d", analysis.OverallScore)
		}
		if !analysis.IsReasonable {
			t.Error("expected reasonable analysis")
		}
		if len(analysis.Recommendations) != 1 {
			t.Fatalf("expected 1 recommendation, got %d", len(analysis.Recommendations))
		}
		if analysis.Recommendations[0] != "定价参数合理，符合监管要求和行业标准" {
			t.Errorf("unexpected recommendation: %s", analysis.Recommendations[0])
		}
	})

	t.Run("InterestExceedsCeiling", func(t *testing.T) {
		params := domain.PricingParams{
			InterestRate: "4.5",
		}

		analysis := Analyze(params, "寿险")

		if analysis.Interest.Reasonable == nil || *analysis.Interest.Reasonable {
			t.Error("expected interest to be unreasonable")
		}
		if analysis.Interest.Note != "预定利率超过监管上限" {
			t.Errorf("unexpected note: %s", analysis.Interest.Note)
		}

		found := false
		for _, rec := range analysis.Recommendations {
			if rec == "预定利率超过监管上限，需调整至符合规定" {
				found = true
			}
		}
		if !found {
			t.Error("expected ceiling recommendation")
		}
	})

	t.Run("InterestBelowBenchmarkStillFails", func(t *testing.T) {
		// 2.0% is under the 3.5% ceiling but deviates more than 10%
		analysis := Analyze(domain.PricingParams{InterestRate: "2.0"}, "寿险")

		if analysis.Interest.Reasonable == nil || *analysis.Interest.Reasonable {
			t.Error("expected interest to be unreasonable on deviation")
		}
		if analysis.Interest.Note != "预定利率偏离行业标准" {
			t.Errorf("unexpected note: %s", analysis.Interest.Note)
		}
	})

	t.Run("ExpenseExceedsCeiling", func(t *testing.T) {
		analysis := Analyze(domain.PricingParams{ExpenseRate: "30"}, "寿险")

		if analysis.Expense.Reasonable == nil || *analysis.Expense.Reasonable {
			t.Error("expected expense to be unreasonable")
		}
		if analysis.Expense.Note != "费用率超过监管上限" {
			t.Errorf("unexpected note: %s", analysis.Expense.Note)
		}
	})

	t.Run("MortalityDeviation", func(t *testing.T) {
		// life benchmark is 0.0005; 0.001 deviates +100%
		analysis := Analyze(domain.PricingParams{MortalityRate: "0.001"}, "寿险")

		if analysis.Mortality.Reasonable == nil || *analysis.Mortality.Reasonable {
			t.Error("expected mortality to be unreasonable")
		}
		if analysis.Mortality.Deviation == nil || *analysis.Mortality.Deviation != 100 {
			t.Errorf("expected deviation 100, got %v", analysis.Mortality.Deviation)
		}
	})

	t.Run("UnparsedInput", func(t *testing.T) {
		analysis := Analyze(domain.PricingParams{MortalityRate: "中国生命表"}, "寿险")

		if analysis.Mortality.Reasonable != nil {
			t.Error("expected nil verdict for unparsed input")
		}
		if analysis.Mortality.Raw != "中国生命表" {
			t.Errorf("expected raw value preserved, got %q", analysis.Mortality.Raw)
		}
		if analysis.Mortality.Note != "无法解析死亡率数值" {
			t.Errorf("unexpected note: %s", analysis.Mortality.Note)
		}
	})

	t.Run("AllUnparsedScoresNeutral", func(t *testing.T) {
		analysis := Analyze(domain.PricingParams{}, "寿险")

		// Three unknown verdicts average to 50
		if analysis.OverallScore != 50 {
			t.Errorf("expected score 50, got %d", analysis.OverallScore)
		}
		if analysis.IsReasonable {
			t.Error("expected not reasonable at score 50")
		}
	})

	t.Run("UnknownTypeUsesDefaults", func(t *testing.T) {
		analysis := Analyze(domain.PricingParams{InterestRate: "3.0"}, "万能险")

		// default interest benchmark is 3.0%
		if analysis.Interest.Benchmark != 0.030 {
			t.Errorf("expected default benchmark 0.030, got %v", analysis.Interest.Benchmark)
		}
		if analysis.Interest.Reasonable == nil || !*analysis.Interest.Reasonable {
			t.Error("expected interest at benchmark to be reasonable")
		}
	})

	t.Run("PercentageNormalization", func(t *testing.T) {
		// 3.5 and 0.035 both mean 3.5%
		a1 := Analyze(domain.PricingParams{InterestRate: "3.5"}, "寿险")
		a2 := Analyze(domain.PricingParams{InterestRate: "0.035"}, "寿险")

		if *a1.Interest.Value != *a2.Interest.Value {
			t.Errorf("expected equal values, got %v and %v", *a1.Interest.Value, *a2.Interest.Value)
		}
	})
}

func TestIssueCount(t *testing.T) {
	analysis := Analyze(domain.PricingParams{
		InterestRate: "4.5",
		ExpenseRate:  "30",
	}, "寿险")

	// Interest and expense fail; mortality is unknown
	if got := analysis.IssueCount(); got != 2 {
		t.Errorf("expected 2 issues, got %d", got)
	}

	var nilAnalysis *domain.PricingAnalysis
	if got := nilAnalysis.IssueCount(); got != 0 {
		t.Errorf("expected 0 issues for nil analysis, got %d", got)
	}
}
