// Package rules provides negative list matching and the CEL-based
// product rule engine.
package rules

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

// clausePreviewLen caps the clause text stored on a violation, in runes.
const clausePreviewLen = 100

// Matcher checks clauses against negative list rules.
// Compiled regex patterns are cached across calls; invalid patterns are
// remembered and treated as non-matches.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	invalid  map[string]bool
}

// NewMatcher creates a new negative list matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		compiled: make(map[string]*regexp.Regexp),
		invalid:  make(map[string]bool),
	}
}

// Check runs every rule against every clause and returns the violations.
// An empty rule set yields an empty result with an explanatory message,
// never an error.
func (m *Matcher) Check(clauses []domain.Clause, ruleSet []*domain.NegativeRule) *domain.CheckResult {
	if len(ruleSet) == 0 {
		return &domain.CheckResult{
			Violations: []domain.Violation{},
			Message:    "no negative list rules configured",
		}
	}

	violations := []domain.Violation{}
	for idx, clause := range clauses {
		reference := clause.Reference
		if reference == "" {
			reference = "条款" + strconv.Itoa(idx+1)
		}

		for _, rule := range ruleSet {
			if !m.Match(clause.Text, rule) {
				continue
			}

			violations = append(violations, domain.Violation{
				ClauseIndex:     idx,
				ClauseText:      preview(clause.Text),
				ClauseReference: reference,
				Rule:            rule.RuleNumber,
				Description:     rule.Description,
				Severity:        rule.Severity,
				Category:        rule.Category,
				Remediation:     rule.Remediation,
			})
		}
	}

	return &domain.CheckResult{
		Violations: violations,
		Count:      len(violations),
		Summary:    GroupBySeverity(violations),
	}
}

// Match reports whether a rule fires against a clause text. A rule matches
// when any keyword is a substring of the text, or any pattern matches it.
func (m *Matcher) Match(clauseText string, rule *domain.NegativeRule) bool {
	for _, keyword := range rule.Keywords {
		if keyword != "" && strings.Contains(clauseText, keyword) {
			return true
		}
	}

	for _, pattern := range rule.Patterns {
		re := m.pattern(pattern)
		if re != nil && re.MatchString(clauseText) {
			return true
		}
	}

	return false
}

// pattern returns the compiled regex for a pattern, or nil when the pattern
// does not compile. Invalid patterns never fail a check.
func (m *Matcher) pattern(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	bad := m.invalid[pattern]
	m.mu.RUnlock()

	if ok {
		return re
	}
	if bad {
		return nil
	}

	re, err := regexp.Compile(pattern)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.invalid[pattern] = true
		slog.Debug("skipping invalid rule pattern", "pattern", pattern, "error", err)
		return nil
	}
	m.compiled[pattern] = re
	return re
}

// GroupBySeverity buckets violations into high/medium/low counts.
// Unknown severities join no bucket.
func GroupBySeverity(violations []domain.Violation) domain.SeverityCounts {
	var counts domain.SeverityCounts
	for _, v := range violations {
		switch strings.ToLower(v.Severity) {
		case domain.SeverityHigh:
			counts.High++
		case domain.SeverityMedium:
			counts.Medium++
		case domain.SeverityLow:
			counts.Low++
		}
	}
	return counts
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= clausePreviewLen {
		return text
	}
	return string(runes[:clausePreviewLen]) + "..."
}
