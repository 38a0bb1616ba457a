// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Negative list operations
	SaveNegativeRule(ctx context.Context, tenantID string, rule *NegativeRule) error
	GetNegativeRule(ctx context.Context, tenantID string, ruleID string) (*NegativeRule, error)
	ListNegativeRules(ctx context.Context, tenantID string) ([]*NegativeRule, error)
	DeleteNegativeRule(ctx context.Context, tenantID string, ruleID string) error

	// Product rule operations
	SaveProductRule(ctx context.Context, tenantID string, rule *ProductRule) error
	GetProductRule(ctx context.Context, tenantID string, ruleID string) (*ProductRule, error)
	ListProductRules(ctx context.Context, tenantID string) ([]*ProductRule, error)

	// Audit records
	SaveAudit(ctx context.Context, tenantID string, audit *AuditResult) error
	GetAudit(ctx context.Context, tenantID string, auditID string) (*AuditResult, error)
	ListAudits(ctx context.Context, tenantID string, limit int) ([]*AuditResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
