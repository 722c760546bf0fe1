package repository

// Schema definitions for RingWatch.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalysisRuns = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    accounts_analyzed INTEGER NOT NULL,
    rings_detected INTEGER NOT NULL,
    summary TEXT NOT NULL,
    report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_tenant ON analysis_runs(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_fingerprint ON analysis_runs(tenant_id, fingerprint);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    run_id TEXT NOT NULL,
    ring_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    risk_score REAL NOT NULL,
    member_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (run_id, ring_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_rings_tenant ON fraud_rings(tenant_id, pattern_type);
`

// ring_members indexes ring membership so an account can be traced
// across runs without decoding ring bodies.
const schemaRingMembers = `
CREATE TABLE IF NOT EXISTS ring_members (
    run_id TEXT NOT NULL,
    ring_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (run_id, ring_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_ring_members_account ON ring_members(tenant_id, account_id);
`

const schemaSuspiciousAccounts = `
CREATE TABLE IF NOT EXISTS suspicious_accounts (
    run_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    suspicion_score REAL NOT NULL,
    detected_patterns TEXT NOT NULL,
    ring_id TEXT,
    PRIMARY KEY (run_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_suspicious_accounts_score ON suspicious_accounts(tenant_id, suspicion_score);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalysisRuns,
		schemaFraudRings,
		schemaRingMembers,
		schemaSuspiciousAccounts,
	}
}
