// Package evaluation turns check and pricing results into an overall
// compliance score, grade and summary.
package evaluation

import (
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

// Per-violation score deductions.
const (
	deductHigh   = 20
	deductMedium = 10
	deductLow    = 5

	deductPricing = 10
)

// CalculateScore computes the compliance score from a base of 100.
// Each violation deducts by severity and each unreasonable pricing
// dimension deducts a flat amount. The result is clamped to [0, 100].
func CalculateScore(violations []domain.Violation, pricing *domain.PricingAnalysis) int {
	score := 100

	counts := rules.GroupBySeverity(violations)
	score -= counts.High * deductHigh
	score -= counts.Medium * deductMedium
	score -= counts.Low * deductLow

	if pricing != nil {
		score -= pricing.IssueCount() * deductPricing
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Grade maps a score to a compliance grade.
func Grade(score int) string {
	switch {
	case score >= 90:
		return domain.GradeExcellent
	case score >= 75:
		return domain.GradeGood
	case score >= 60:
		return domain.GradePass
	default:
		return domain.GradeFail
	}
}

// Summarize builds the audit summary. An audit is critical when any high
// severity violation exists or more than one pricing dimension fails.
func Summarize(violations []domain.Violation, pricing *domain.PricingAnalysis) domain.AuditSummary {
	counts := rules.GroupBySeverity(violations)

	pricingIssues := 0
	if pricing != nil {
		pricingIssues = pricing.IssueCount()
	}

	return domain.AuditSummary{
		TotalViolations:   len(violations),
		ViolationSeverity: counts,
		PricingIssues:     pricingIssues,
		HasCriticalIssues: counts.High > 0 || pricingIssues > 1,
		HasIssues:         len(violations) > 0 || pricingIssues > 0,
	}
}
