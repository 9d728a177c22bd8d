package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    reference TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    sender_account TEXT NOT NULL,
    receiver_account TEXT NOT NULL,
    sender_name TEXT,
    receiver_name TEXT,
    type TEXT NOT NULL,
    channel TEXT NOT NULL,
    country_origin TEXT,
    country_destination TEXT,
    description TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    fraud_score INTEGER,
    is_suspicious INTEGER NOT NULL DEFAULT 0,
    explanation TEXT,
    analysis_date TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_transactions_suspicious ON transactions(tenant_id, is_suspicious);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_parties ON transactions(tenant_id, sender_account, receiver_account);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    suspicious INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    factors TEXT NOT NULL,
    components TEXT NOT NULL,
    analyzed_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_tx ON analyses(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(tenant_id, analyzed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAnalyses,
	}
}
