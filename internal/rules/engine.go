package rules

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/opensource-insurance/kestrel/internal/domain"
)

// Engine is the CEL-based product rule engine. Product rules express
// structured checks over extracted product attributes, e.g.
// `interest_rate > 0.035` or `has_dividend && product_type == "accident"`.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ProductRule
	Program cel.Program
}

// NewEngine creates a new product rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with product attribute variables
	env, err := cel.NewEnv(
		cel.Variable("product", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("product_type", cel.StringType),
		cel.Variable("product_name", cel.StringType),
		cel.Variable("insurance_period", cel.StringType),
		cel.Variable("age_range", cel.StringType),
		cel.Variable("occupation_class", cel.StringType),
		cel.Variable("interest_rate", cel.DoubleType),
		cel.Variable("expense_rate", cel.DoubleType),
		cel.Variable("mortality_rate", cel.DoubleType),
		cel.Variable("has_cash_value", cel.BoolType),
		cel.Variable("has_dividend", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ProductRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ProductRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.ProductRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the product data for rule evaluation.
type EvaluateInput struct {
	TenantID    string
	AuditID     string
	ProductType string // canonical type: life, health, accident
	Info        domain.ProductInfo
	Params      domain.PricingParams
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.ProductRuleResult, error) {
	e.mu.RLock()
	loaded := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		loaded = append(loaded, rule)
	}
	e.mu.RUnlock()

	if len(loaded) == 0 {
		return nil, nil
	}

	activation := map[string]any{
		"product": map[string]any{
			"name":             input.Info.ProductName,
			"company":          input.Info.InsuranceCompany,
			"type":             input.ProductType,
			"insurance_period": input.Info.InsurancePeriod,
			"payment_method":   input.Info.PaymentMethod,
		},
		"product_type":     input.ProductType,
		"product_name":     input.Info.ProductName,
		"insurance_period": input.Info.InsurancePeriod,
		"age_range":        input.Info.AgeRange,
		"occupation_class": input.Info.OccupationClass,
		"interest_rate":    ParseRate(input.Params.InterestRate),
		"expense_rate":     ParseRate(input.Params.ExpenseRate),
		"mortality_rate":   ParseRate(input.Params.MortalityRate),
		"has_cash_value":   input.Params.HasCashValue,
		"has_dividend":     input.Params.HasDividend,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.ProductRuleResult, len(loaded))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range loaded {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.ProductRuleResult {
	start := time.Now()

	result := domain.ProductRuleResult{
		RuleID:   rule.Config.ID,
		TenantID: input.TenantID,
		Severity: rule.Config.Severity,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	triggered, ok := out.Value().(bool)
	if ok && triggered {
		result.Triggered = true
		result.Reason = rule.Config.Description
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.ProductRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ProductRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	loaded := make([]*domain.ProductRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		loaded = append(loaded, compiled.Config)
	}
	return loaded
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ProductRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// ParseRate parses a raw rate capture into a fraction. Values above 1 are
// treated as percentages and divided by 100 exactly once. Unparseable
// input yields 0.
func ParseRate(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if v > 1 {
		v = v / 100
	}
	return v
}

// ToViolations converts triggered product rule results into violations so
// they flow through the same aggregation, scoring and reporting as
// negative list hits.
func ToViolations(results []domain.ProductRuleResult, loaded []*domain.ProductRule) []domain.Violation {
	byID := make(map[string]*domain.ProductRule, len(loaded))
	for _, r := range loaded {
		byID[r.ID] = r
	}

	var violations []domain.Violation
	for _, res := range results {
		if !res.Triggered {
			continue
		}
		rule := byID[res.RuleID]
		if rule == nil {
			continue
		}
		violations = append(violations, domain.Violation{
			ClauseIndex:     -1,
			ClauseReference: rule.Name,
			Rule:            rule.ID,
			Description:     rule.Description,
			Severity:        rule.Severity,
			Category:        rule.Category,
			Remediation:     rule.Remediation,
		})
	}
	return violations
}
