package domain

import "time"

// Audit types supported by the pipeline.
const (
	// AuditFull runs preprocessing, negative list check, pricing analysis
	// and report generation.
	AuditFull = "full"

	// AuditNegativeOnly skips pricing analysis.
	AuditNegativeOnly = "negative-only"
)

// Compliance grades derived from the final score.
const (
	GradeExcellent = "优秀"
	GradeGood      = "良好"
	GradePass      = "合格"
	GradeFail      = "不合格"
)

// Violation records a single negative list hit against a clause.
// At most one violation is produced per (clause, rule) pair.
type Violation struct {
	ClauseIndex     int    `json:"clause_index"`
	ClauseText      string `json:"clause_text"`
	ClauseReference string `json:"clause_reference"`
	Rule            string `json:"rule"`
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	Category        string `json:"category"`
	Remediation     string `json:"remediation,omitempty"`
}

// SeverityCounts buckets violations by severity. Unknown severities stay in
// the violation list but join no bucket.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Total returns the sum of all bucketed counts.
func (s SeverityCounts) Total() int {
	return s.High + s.Medium + s.Low
}

// CheckResult is the output of a negative list check.
type CheckResult struct {
	Violations []Violation    `json:"violations"`
	Count      int            `json:"count"`
	Summary    SeverityCounts `json:"summary"`

	// Message explains an empty result, e.g. no rules configured.
	Message string `json:"message,omitempty"`
}

// AuditSummary is the headline view of an audit outcome.
type AuditSummary struct {
	TotalViolations   int            `json:"total_violations"`
	ViolationSeverity SeverityCounts `json:"violation_severity"`
	PricingIssues     int            `json:"pricing_issues"`
	HasCriticalIssues bool           `json:"has_critical_issues"`
	HasIssues         bool           `json:"has_issues"`
}

// AuditResult is the complete result of a product audit.
type AuditResult struct {
	ID          string `json:"audit_id"`
	TenantID    string `json:"tenantId"`
	DocumentURL string `json:"document_url,omitempty"`
	AuditType   string `json:"audit_type"`

	ProductInfo ProductInfo      `json:"product_info"`
	Violations  []Violation      `json:"violations"`
	Pricing     *PricingAnalysis `json:"pricing,omitempty"`

	Score   int          `json:"score"`
	Grade   string       `json:"grade"`
	Summary AuditSummary `json:"summary"`

	ReportID string `json:"report_id,omitempty"`
	Report   string `json:"report,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Processing metadata
	Metadata AuditMetadata `json:"metadata"`
}

// AuditMetadata contains processing information for an audit run.
type AuditMetadata struct {
	TraceID        string `json:"traceId"`
	PreprocessMs   int64  `json:"preprocessMs"`
	CheckMs        int64  `json:"checkMs"`
	PricingMs      int64  `json:"pricingMs"`
	TotalMs        int64  `json:"totalMs"`
	ClausesChecked int    `json:"clausesChecked"`
	RulesApplied   int    `json:"rulesApplied"`
	EngineVersion  string `json:"engineVersion"`
}
