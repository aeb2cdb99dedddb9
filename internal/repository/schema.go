package repository

// Schema definitions for the CredBud database.
// Compatible with both SQLite and PostgreSQL.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    full_name TEXT NOT NULL,
    phone TEXT,
    city_tier INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

const schemaLoanApplications = `
CREATE TABLE IF NOT EXISTS loan_applications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount_requested REAL NOT NULL,
    num_debts INTEGER NOT NULL,
    total_debt_amount REAL NOT NULL,
    monthly_emis REAL NOT NULL,
    total_assets REAL NOT NULL,
    monthly_income REAL NOT NULL,
    purpose TEXT,
    term_months INTEGER NOT NULL DEFAULT 0,
    ml_score REAL NOT NULL,
    acceptance_rate REAL NOT NULL,
    status TEXT NOT NULL,
    feedback TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loans_user ON loan_applications(user_id);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loan_applications(user_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_created ON loan_applications(user_id, created_at);
`

// Rows and analysis are stored as JSON text.
const schemaStatements = `
CREATE TABLE IF NOT EXISTS statements (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    format TEXT NOT NULL,
    status TEXT NOT NULL,
    row_count INTEGER NOT NULL DEFAULT 0,
    row_data TEXT NOT NULL,
    analysis TEXT,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    analyzed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_statements_user ON statements(user_id, created_at);
`

const schemaFinancialBehavior = `
CREATE TABLE IF NOT EXISTS financial_behavior (
    user_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    statement_id TEXT,
    total_score REAL NOT NULL,
    rating TEXT NOT NULL,
    category_scores TEXT NOT NULL,
    liquidity_resilience_days INTEGER NOT NULL,
    stable_inflow INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPolicyRules = `
CREATE TABLE IF NOT EXISTS policy_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaUsers,
		schemaLoanApplications,
		schemaStatements,
		schemaFinancialBehavior,
		schemaPolicyRules,
	}
}
