package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaNegativeRules = `
CREATE TABLE IF NOT EXISTS negative_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    rule_number TEXT NOT NULL,
    category TEXT NOT NULL,
    description TEXT NOT NULL,
    severity TEXT NOT NULL,
    keywords TEXT NOT NULL,
    patterns TEXT,
    remediation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_negative_rules_tenant ON negative_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_negative_rules_enabled ON negative_rules(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_negative_rules_category ON negative_rules(tenant_id, category);
`

const schemaProductRules = `
CREATE TABLE IF NOT EXISTS product_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    category TEXT,
    severity TEXT NOT NULL,
    remediation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_product_rules_tenant ON product_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_product_rules_enabled ON product_rules(tenant_id, enabled);
`

const schemaAudits = `
CREATE TABLE IF NOT EXISTS audits (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    document_url TEXT,
    audit_type TEXT NOT NULL,
    product_info TEXT NOT NULL,
    violations TEXT NOT NULL,
    pricing TEXT,
    score INTEGER NOT NULL,
    grade TEXT NOT NULL,
    summary TEXT NOT NULL,
    report_id TEXT,
    report TEXT,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audits_tenant ON audits(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audits_created ON audits(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audits_grade ON audits(tenant_id, grade);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaNegativeRules,
		schemaProductRules,
		schemaAudits,
	}
}
