// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-insurance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveNegativeRule stores a negative list rule with tenant isolation.
func (r *SQLRepository) SaveNegativeRule(ctx context.Context, tenantID string, rule *domain.NegativeRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	keywords, _ := json.Marshal(rule.Keywords)
	patterns, _ := json.Marshal(rule.Patterns)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO negative_rules (
			id, tenant_id, rule_number, category, description, severity,
			keywords, patterns, remediation, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			rule_number = excluded.rule_number,
			category = excluded.category,
			description = excluded.description,
			severity = excluded.severity,
			keywords = excluded.keywords,
			patterns = excluded.patterns,
			remediation = excluded.remediation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.RuleNumber, rule.Category,
		rule.Description, rule.Severity,
		string(keywords), string(patterns), rule.Remediation, enabled,
		now, now,
	)
	return err
}

// GetNegativeRule retrieves a negative list rule with tenant isolation.
func (r *SQLRepository) GetNegativeRule(ctx context.Context, tenantID string, ruleID string) (*domain.NegativeRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, rule_number, category, description, severity,
			   keywords, patterns, remediation, enabled
		FROM negative_rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanNegativeRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListNegativeRules retrieves all negative list rules for a tenant.
func (r *SQLRepository) ListNegativeRules(ctx context.Context, tenantID string) ([]*domain.NegativeRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, rule_number, category, description, severity,
			   keywords, patterns, remediation, enabled
		FROM negative_rules
		WHERE tenant_id = ?
		ORDER BY rule_number
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ruleSet []*domain.NegativeRule
	for rows.Next() {
		rule, err := scanNegativeRule(rows)
		if err != nil {
			return nil, err
		}
		ruleSet = append(ruleSet, rule)
	}

	return ruleSet, rows.Err()
}

// DeleteNegativeRule soft-deletes a negative rule by setting enabled = 0.
func (r *SQLRepository) DeleteNegativeRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE negative_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveProductRule stores a product rule with tenant isolation.
func (r *SQLRepository) SaveProductRule(ctx context.Context, tenantID string, rule *domain.ProductRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO product_rules (
			id, tenant_id, name, description, version, expression,
			category, severity, remediation, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			category = excluded.category,
			severity = excluded.severity,
			remediation = excluded.remediation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Category, rule.Severity,
		rule.Remediation, enabled,
		now, now,
	)
	return err
}

// GetProductRule retrieves the latest enabled version of a product rule.
func (r *SQLRepository) GetProductRule(ctx context.Context, tenantID string, ruleID string) (*domain.ProductRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   category, severity, remediation, enabled
		FROM product_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := scanProductRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListProductRules retrieves all enabled product rules for a tenant.
func (r *SQLRepository) ListProductRules(ctx context.Context, tenantID string) ([]*domain.ProductRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   category, severity, remediation, enabled
		FROM product_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ruleSet []*domain.ProductRule
	for rows.Next() {
		rule, err := scanProductRule(rows)
		if err != nil {
			return nil, err
		}
		ruleSet = append(ruleSet, rule)
	}

	return ruleSet, rows.Err()
}

// SaveAudit stores an audit result with tenant isolation.
func (r *SQLRepository) SaveAudit(ctx context.Context, tenantID string, audit *domain.AuditResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	productInfo, _ := json.Marshal(audit.ProductInfo)
	violations, _ := json.Marshal(audit.Violations)
	summary, _ := json.Marshal(audit.Summary)
	metadata, _ := json.Marshal(audit.Metadata)

	var pricingJSON string
	if audit.Pricing != nil {
		b, _ := json.Marshal(audit.Pricing)
		pricingJSON = string(b)
	}

	query := `
		INSERT INTO audits (
			id, tenant_id, document_url, audit_type, product_info,
			violations, pricing, score, grade, summary,
			report_id, report, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		audit.ID, tenantID, audit.DocumentURL, audit.AuditType,
		string(productInfo), string(violations), pricingJSON,
		audit.Score, audit.Grade, string(summary),
		audit.ReportID, audit.Report, audit.CreatedAt, string(metadata),
	)
	return err
}

// GetAudit retrieves an audit result by ID with tenant isolation.
func (r *SQLRepository) GetAudit(ctx context.Context, tenantID string, auditID string) (*domain.AuditResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, document_url, audit_type, product_info,
			   violations, pricing, score, grade, summary,
			   report_id, report, created_at, metadata
		FROM audits
		WHERE tenant_id = ? AND id = ?
	`

	audit, err := scanAudit(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, auditID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return audit, err
}

// ListAudits retrieves recent audits for a tenant, newest first.
func (r *SQLRepository) ListAudits(ctx context.Context, tenantID string, limit int) ([]*domain.AuditResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, document_url, audit_type, product_info,
			   violations, pricing, score, grade, summary,
			   report_id, report, created_at, metadata
		FROM audits
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []*domain.AuditResult
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNegativeRule(s scanner) (*domain.NegativeRule, error) {
	var rule domain.NegativeRule
	var keywords, patterns string
	var enabled int

	if err := s.Scan(
		&rule.ID, &rule.TenantID, &rule.RuleNumber, &rule.Category,
		&rule.Description, &rule.Severity,
		&keywords, &patterns, &rule.Remediation, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	json.Unmarshal([]byte(keywords), &rule.Keywords)
	if patterns != "" {
		json.Unmarshal([]byte(patterns), &rule.Patterns)
	}

	return &rule, nil
}

func scanProductRule(s scanner) (*domain.ProductRule, error) {
	var rule domain.ProductRule
	var enabled int

	if err := s.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Category, &rule.Severity,
		&rule.Remediation, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

func scanAudit(s scanner) (*domain.AuditResult, error) {
	var audit domain.AuditResult
	var productInfo, violations, pricingJSON, summary, metadata string

	if err := s.Scan(
		&audit.ID, &audit.TenantID, &audit.DocumentURL, &audit.AuditType,
		&productInfo, &violations, &pricingJSON,
		&audit.Score, &audit.Grade, &summary,
		&audit.ReportID, &audit.Report, &audit.CreatedAt, &metadata,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(productInfo), &audit.ProductInfo)
	json.Unmarshal([]byte(violations), &audit.Violations)
	json.Unmarshal([]byte(summary), &audit.Summary)
	json.Unmarshal([]byte(metadata), &audit.Metadata)
	if pricingJSON != "" {
		var pricing domain.PricingAnalysis
		if err := json.Unmarshal([]byte(pricingJSON), &pricing); err == nil {
			audit.Pricing = &pricing
		}
	}

	return &audit, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
