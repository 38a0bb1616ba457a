package domain

// Severity levels for negative list rules and product rules.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// NegativeRule defines a single negative list entry.
// A rule fires against a clause when any keyword is a substring of the
// clause text, or any regex pattern matches it.
type NegativeRule struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId"`
	RuleNumber  string   `json:"ruleNumber"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Keywords    []string `json:"keywords"`
	Patterns    []string `json:"patterns,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// ProductRule defines a structured product-level check as a CEL expression.
// Expressions are evaluated against extracted product attributes and pricing
// parameters and must return bool. A true result produces a violation.
type ProductRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Remediation string `json:"remediation,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// ProductRuleResult is the output of a product rule evaluation.
type ProductRuleResult struct {
	RuleID    string `json:"ruleId"`
	TenantID  string `json:"tenantId"`
	Triggered bool   `json:"triggered"`
	Severity  string `json:"severity"`
	Reason    string `json:"reason,omitempty"`
	Err       string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs"`
}
