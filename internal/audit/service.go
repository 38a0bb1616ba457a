// Package audit orchestrates the filing audit pipeline: preprocessing,
// negative list checking, product rule evaluation, pricing analysis,
// scoring and report generation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/evaluation"
	"github.com/opensource-insurance/kestrel/internal/ids"
	"github.com/opensource-insurance/kestrel/internal/preprocess"
	"github.com/opensource-insurance/kestrel/internal/pricing"
	"github.com/opensource-insurance/kestrel/internal/report"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

const saveTimeout = 10 * time.Second

// Request is an audit request.
type Request struct {
	Content     string `json:"content"`
	DocumentURL string `json:"document_url,omitempty"`
	AuditType   string `json:"audit_type,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

// Service runs audits and persists results.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	matcher *rules.Matcher
	engine  *rules.Engine

	ruleCacheTTL time.Duration
}

// NewService creates the audit service.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, matcher *rules.Matcher, engine *rules.Engine, cfg domain.AuditConfig) *Service {
	ttl := time.Duration(cfg.RuleCacheTTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		matcher:      matcher,
		engine:       engine,
		ruleCacheTTL: ttl,
	}
}

// Run executes the full audit pipeline for a document. Pricing analysis
// only runs for full audits; negative-only audits skip it. The result is
// persisted asynchronously so a storage failure never fails the audit.
func (s *Service) Run(ctx context.Context, tenantID string, req *Request) (*domain.AuditResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("document content is required")
	}

	auditType := req.AuditType
	if auditType == "" {
		auditType = domain.AuditFull
	}
	if auditType != domain.AuditFull && auditType != domain.AuditNegativeOnly {
		return nil, fmt.Errorf("unknown audit type: %s", auditType)
	}

	start := time.Now()
	auditID := ids.NewAuditID()

	slog.Debug("starting audit",
		"audit_id", auditID,
		"tenant_id", tenantID,
		"audit_type", auditType,
		"content_length", len(req.Content),
	)

	// 1. Preprocess
	preStart := time.Now()
	pre := preprocess.Run(req.Content, req.DocumentURL)
	preMs := time.Since(preStart).Milliseconds()

	// 2. Negative list check
	checkStart := time.Now()
	ruleSet, err := s.negativeRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load negative rules: %w", err)
	}
	check := s.matcher.Check(pre.Clauses, ruleSet)
	violations := check.Violations

	// 3. Product rule evaluation
	productType := pricing.NormalizeProductType(pre.ProductInfo.ProductType)
	if s.engine != nil && s.engine.RulesCount() > 0 {
		evalInput := &rules.EvaluateInput{
			TenantID:    tenantID,
			AuditID:     auditID,
			ProductType: productType,
			Info:        pre.ProductInfo,
			Params:      pre.PricingParams,
		}
		results, err := s.engine.EvaluateAll(ctx, evalInput)
		if err != nil {
			slog.Error("product rule evaluation failed",
				"audit_id", auditID,
				"error", err,
			)
		} else {
			violations = append(violations, rules.ToViolations(results, s.engine.GetLoadedRules())...)
		}
	}
	checkMs := time.Since(checkStart).Milliseconds()

	// 4. Pricing analysis (full audits only)
	var analysis *domain.PricingAnalysis
	pricingMs := int64(0)
	if auditType == domain.AuditFull {
		pricingStart := time.Now()
		analysis = pricing.Analyze(pre.PricingParams, pre.ProductInfo.ProductType)
		pricingMs = time.Since(pricingStart).Milliseconds()
	}

	// 5. Score and summarize
	score := evaluation.CalculateScore(violations, analysis)
	grade := evaluation.Grade(score)
	summary := evaluation.Summarize(violations, analysis)

	// 6. Report
	rpt := report.Generate(violations, analysis, pre.ProductInfo, score, grade, summary)

	result := &domain.AuditResult{
		ID:          auditID,
		TenantID:    tenantID,
		DocumentURL: req.DocumentURL,
		AuditType:   auditType,
		ProductInfo: pre.ProductInfo,
		Violations:  violations,
		Pricing:     analysis,
		Score:       score,
		Grade:       grade,
		Summary:     summary,
		ReportID:    rpt.ID,
		Report:      rpt.Content,
		CreatedAt:   time.Now().UTC(),
		Metadata: domain.AuditMetadata{
			TraceID:        req.TraceID,
			PreprocessMs:   preMs,
			CheckMs:        checkMs,
			PricingMs:      pricingMs,
			TotalMs:        time.Since(start).Milliseconds(),
			ClausesChecked: len(pre.Clauses),
			RulesApplied:   len(ruleSet),
			EngineVersion:  "kestrel-1.0",
		},
	}

	s.saveAsync(result)
	s.publish(ctx, tenantID, result)
	s.countAudit(ctx, tenantID)

	slog.Info("audit completed",
		"audit_id", auditID,
		"tenant_id", tenantID,
		"score", score,
		"grade", grade,
		"violations", len(violations),
		"duration_ms", result.Metadata.TotalMs,
	)

	return result, nil
}

// Check runs only the negative list check over a document. Used by the
// quick check endpoint.
func (s *Service) Check(ctx context.Context, tenantID, content string) (*domain.CheckResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("document content is required")
	}

	clauses := preprocess.ExtractClauses(content)

	ruleSet, err := s.negativeRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load negative rules: %w", err)
	}

	return s.matcher.Check(clauses, ruleSet), nil
}

// negativeRules loads the tenant's negative list, preferring the cache.
// Cache failures fall through to the repository.
func (s *Service) negativeRules(ctx context.Context, tenantID string) ([]*domain.NegativeRule, error) {
	if s.cache != nil {
		if ruleSet, err := s.cache.GetRuleSet(ctx, tenantID); err == nil && ruleSet != nil {
			return ruleSet, nil
		}
	}

	ruleSet, err := s.repo.ListNegativeRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	enabled := make([]*domain.NegativeRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetRuleSet(ctx, tenantID, enabled, s.ruleCacheTTL); err != nil {
			slog.Warn("failed to cache rule set",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	return enabled, nil
}

// saveAsync persists the result in the background. Failures are logged,
// never surfaced to the caller.
func (s *Service) saveAsync(result *domain.AuditResult) {
	if s.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.repo.SaveAudit(ctx, result.TenantID, result); err != nil {
			slog.Warn("failed to save audit result",
				"audit_id", result.ID,
				"tenant_id", result.TenantID,
				"error", err,
			)
		}
	}()
}

func (s *Service) publish(ctx context.Context, tenantID string, result *domain.AuditResult) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(result)
	if err := s.bus.Publish(ctx, tenantID, domain.TopicAuditCompleted, payload); err != nil {
		slog.Error("failed to publish audit completion",
			"audit_id", result.ID,
			"error", err,
		)
	}

	if result.Summary.HasCriticalIssues {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAuditAlert, payload); err != nil {
			slog.Error("failed to publish audit alert",
				"audit_id", result.ID,
				"error", err,
			)
		}
	}
}

func (s *Service) countAudit(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.IncrementCounter(ctx, tenantID, "audits", 24*time.Hour); err != nil {
		slog.Debug("failed to increment audit counter",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}
