package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

// RuleFile is the on-disk JSON format for bulk rule imports. Either
// section may be empty.
type RuleFile struct {
	NegativeRules []*domain.NegativeRule `json:"negative_rules"`
	ProductRules  []*domain.ProductRule  `json:"product_rules"`
}

// LoadFile reads and validates a rule file.
func LoadFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file RuleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	for i, rule := range file.NegativeRules {
		if rule.ID == "" {
			return nil, fmt.Errorf("negative rule %d: id is required", i)
		}
		if rule.Description == "" {
			return nil, fmt.Errorf("negative rule %s: description is required", rule.ID)
		}
		if len(rule.Keywords) == 0 && len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("negative rule %s: at least one keyword or pattern is required", rule.ID)
		}
	}

	for i, rule := range file.ProductRules {
		if rule.ID == "" {
			return nil, fmt.Errorf("product rule %d: id is required", i)
		}
		if rule.Expression == "" {
			return nil, fmt.Errorf("product rule %s: expression is required", rule.ID)
		}
		if rule.Version == "" {
			rule.Version = "1.0.0"
		}
	}

	return &file, nil
}

// ImportStats reports how many rules an import persisted.
type ImportStats struct {
	NegativeRules int
	ProductRules  int
}

// Import persists all rules from a rule file under the given tenant.
// Product rule expressions are compiled through the engine first so a
// broken expression never reaches the database.
func Import(ctx context.Context, repo domain.Repository, engine *Engine, tenantID string, file *RuleFile) (*ImportStats, error) {
	stats := &ImportStats{}

	for _, rule := range file.NegativeRules {
		rule.TenantID = tenantID
		if err := repo.SaveNegativeRule(ctx, tenantID, rule); err != nil {
			return stats, fmt.Errorf("failed to save negative rule %s: %w", rule.ID, err)
		}
		stats.NegativeRules++
	}

	for _, rule := range file.ProductRules {
		rule.TenantID = tenantID
		if engine != nil {
			if err := engine.ValidateRule(rule); err != nil {
				return stats, fmt.Errorf("product rule %s: %w", rule.ID, err)
			}
		}
		if err := repo.SaveProductRule(ctx, tenantID, rule); err != nil {
			return stats, fmt.Errorf("failed to save product rule %s: %w", rule.ID, err)
		}
		stats.ProductRules++
	}

	return stats, nil
}
