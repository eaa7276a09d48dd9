package database

import (
	"database/sql"
	"fmt"
)

// schemaStatements creates the persisted state layout. Balances live on the
// account row; transactions carry a foreign key to their account so an
// account cannot be removed while transactions reference it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS businesses (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		business_id UUID NOT NULL REFERENCES businesses(id),
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, business_id)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL REFERENCES businesses(id),
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		number TEXT NOT NULL DEFAULT '',
		institution TEXT NOT NULL DEFAULT '',
		balance NUMERIC(19,4) NOT NULL DEFAULT 0,
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL REFERENCES businesses(id),
		account_id UUID NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		amount NUMERIC(19,4) NOT NULL CHECK (amount > 0),
		currency CHAR(3) NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_business_date ON transactions (business_id, date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_business ON accounts (business_id)`,
}

// EnsureSchema creates missing tables and indexes on startup.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}
	return nil
}
