package rules

import (
	"testing"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

func testRuleSet() []*domain.NegativeRule {
	return []*domain.NegativeRule{
		{
			ID:          "neg-001",
			RuleNumber:  "1.1",
			Category:    "保险责任",
			Description: "等待期超过监管上限",
			Severity:    domain.SeverityHigh,
			Keywords:    []string{"等待期180天", "等待期一年"},
			Enabled:     true,
		},
		{
			ID:          "neg-002",
			RuleNumber:  "2.3",
			Category:    "收益演示",
			Description: "承诺保证收益",
			Severity:    domain.SeverityMedium,
			Keywords:    []string{"保证收益"},
			Patterns:    []string{`收益率?不低于[\d.]+%`},
			Enabled:     true,
		},
	}
}

func TestMatcherCheck(t *testing.T) {
	m := NewMatcher()

	t.Run("KeywordMatch", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "本产品等待期180天，等待期内发生保险事故不承担责任。", Reference: "第五条"},
		}

		result := m.Check(clauses, testRuleSet())

		if result.Count != 1 {
			t.Fatalf("expected 1 violation, got %d", result.Count)
		}
		v := result.Violations[0]
		if v.Rule != "1.1" {
			t.Errorf("expected rule 1.1, got %s", v.Rule)
		}
		if v.ClauseReference != "第五条" {
			t.Errorf("expected reference 第五条, got %s", v.ClauseReference)
		}
		if v.Severity != domain.SeverityHigh {
			t.Errorf("expected severity high, got %s", v.Severity)
		}
		if result.Summary.High != 1 {
			t.Errorf("expected 1 high in summary, got %d", result.Summary.High)
		}
	})

	t.Run("PatternMatch", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "本产品历史年化收益率不低于4.5%，欢迎投保。", Reference: "第八条"},
		}

		result := m.Check(clauses, testRuleSet())

		if result.Count != 1 {
			t.Fatalf("expected 1 violation, got %d", result.Count)
		}
		if result.Violations[0].Rule != "2.3" {
			t.Errorf("expected rule 2.3, got %s", result.Violations[0].Rule)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "本合同自您签收保险单之日起生效，合同内容以保险单为准。", Reference: "第一条"},
		}

		result := m.Check(clauses, testRuleSet())

		if result.Count != 0 {
			t.Errorf("expected 0 violations, got %d", result.Count)
		}
	})

	t.Run("MultipleRulesOneClause", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "等待期180天，且本产品提供保证收益，收益率不低于3.0%。", Reference: "第二条"},
		}

		result := m.Check(clauses, testRuleSet())

		// One violation per matching rule, not per keyword
		if result.Count != 2 {
			t.Errorf("expected 2 violations, got %d", result.Count)
		}
	})

	t.Run("EmptyRuleSet", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "任何条款内容都不会命中空规则集。", Reference: "第一条"},
		}

		result := m.Check(clauses, nil)

		if result.Count != 0 {
			t.Errorf("expected 0 violations, got %d", result.Count)
		}
		if result.Message == "" {
			t.Error("expected explanatory message for empty rule set")
		}
	})

	t.Run("MissingReferenceGetsIndex", func(t *testing.T) {
		clauses := []domain.Clause{
			{Text: "等待期180天的条款没有引用信息。"},
		}

		result := m.Check(clauses, testRuleSet())

		if result.Count != 1 {
			t.Fatalf("expected 1 violation, got %d", result.Count)
		}
		if result.Violations[0].ClauseReference != "条款1" {
			t.Errorf("expected reference 条款1, got %s", result.Violations[0].ClauseReference)
		}
	})

	t.Run("LongClauseTruncated", func(t *testing.T) {
		long := "等待期180天。"
		for i := 0; i < 50; i++ {
			long += "填充文字填充文字"
		}
		clauses := []domain.Clause{{Text: long, Reference: "第九条"}}

		result := m.Check(clauses, testRuleSet())

		if result.Count != 1 {
			t.Fatalf("expected 1 violation, got %d", result.Count)
		}
		text := result.Violations[0].ClauseText
		if len([]rune(text)) > clausePreviewLen+3 {
			t.Errorf("expected truncated clause text, got %d runes", len([]rune(text)))
		}
	})
}

func TestMatcherInvalidPattern(t *testing.T) {
	m := NewMatcher()

	rule := &domain.NegativeRule{
		ID:       "neg-bad",
		Patterns: []string{"([unclosed"},
	}

	// Invalid patterns never match and never panic
	if m.Match("任何文本", rule) {
		t.Error("expected no match for invalid pattern")
	}

	// Second call hits the invalid cache
	if m.Match("任何文本", rule) {
		t.Error("expected no match on cached invalid pattern")
	}
}

func TestGroupBySeverity(t *testing.T) {
	violations := []domain.Violation{
		{Severity: "high"},
		{Severity: "HIGH"},
		{Severity: "medium"},
		{Severity: "low"},
		{Severity: "unknown"},
	}

	counts := GroupBySeverity(violations)

	if counts.High != 2 {
		t.Errorf("expected 2 high, got %d", counts.High)
	}
	if counts.Medium != 1 {
		t.Errorf("expected 1 medium, got %d", counts.Medium)
	}
	if counts.Low != 1 {
		t.Errorf("expected 1 low, got %d", counts.Low)
	}
	if counts.Total() != 4 {
		t.Errorf("expected total 4, got %d", counts.Total())
	}
}
