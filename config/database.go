package config

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func InitDB() (*sql.DB, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			email VARCHAR(255) UNIQUE,
			external_id VARCHAR(128) UNIQUE,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			email_verified_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS open_banking_consents (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider VARCHAR(64) NOT NULL,
			consent_id VARCHAR(128) UNIQUE NOT NULL,
			status VARCHAR(64) NOT NULL,
			scopes TEXT[] NOT NULL,
			redirect_uri TEXT,
			expires_at TIMESTAMPTZ,
			authorized_at TIMESTAMPTZ,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS open_banking_tokens (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			consent_id UUID NOT NULL REFERENCES open_banking_consents(id) ON DELETE CASCADE,
			provider VARCHAR(64) NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token_encrypted TEXT NOT NULL,
			refresh_token_hash VARCHAR(64) NOT NULL,
			token_type VARCHAR(32),
			scope TEXT,
			expires_at TIMESTAMPTZ,
			issued_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			rotated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			consent_id UUID REFERENCES open_banking_consents(id) ON DELETE SET NULL,
			provider VARCHAR(64) NOT NULL,
			provider_account_id VARCHAR(128) NOT NULL,
			name VARCHAR(255),
			type VARCHAR(64),
			currency VARCHAR(8),
			institution_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS balances (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			balance_type VARCHAR(64) NOT NULL,
			amount NUMERIC(18,4) NOT NULL,
			currency VARCHAR(8),
			as_of TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			provider VARCHAR(64) NOT NULL,
			provider_transaction_id VARCHAR(128) NOT NULL,
			amount NUMERIC(18,4) NOT NULL,
			currency VARCHAR(8),
			description TEXT,
			merchant VARCHAR(255),
			category VARCHAR(128),
			status VARCHAR(64),
			booked_at TIMESTAMPTZ,
			value_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			account_id UUID REFERENCES accounts(id) ON DELETE SET NULL,
			type VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			severity VARCHAR(32) NOT NULL DEFAULT 'info',
			triggered_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS budgets (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category VARCHAR(128) NOT NULL,
			amount NUMERIC(18,4) NOT NULL,
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS pockets (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(128) NOT NULL,
			balance NUMERIC(18,4) NOT NULL DEFAULT 0,
			currency VARCHAR(8),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS rewards (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(64) NOT NULL,
			points INTEGER NOT NULL DEFAULT 0,
			description TEXT,
			awarded_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS email_verification_codes (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			email VARCHAR(255) NOT NULL,
			code_hash VARCHAR(128) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 3,
			consumed_at TIMESTAMPTZ,
			last_sent_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Natural-key uniqueness is load-bearing: every sync path relies on
		// ON CONFLICT against these indexes.
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_open_banking_tokens_consent_provider
			ON open_banking_tokens(consent_id, provider)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_accounts_user_provider_account
			ON accounts(user_id, provider, provider_account_id)`,
		// COALESCE keeps balances without an as_of timestamp on a single row
		// instead of multiplying under Postgres NULL-distinct semantics.
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_balances_account_type_asof
			ON balances(account_id, balance_type, COALESCE(as_of, 'epoch'::timestamptz))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_transactions_account_provider_id
			ON transactions(account_id, provider, provider_transaction_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_budgets_user_category_period
			ON budgets(user_id, category, period_start, period_end)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_pockets_user_name
			ON pockets(user_id, name)`,

		`CREATE INDEX IF NOT EXISTS idx_consents_user_id ON open_banking_consents(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON open_banking_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_expires_at ON open_banking_tokens(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balances_account_id ON balances(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_type ON alerts(user_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_email_verifications_email ON email_verification_codes(email)`,

		// Older installs created consents before the redirect URI was stored.
		`ALTER TABLE open_banking_consents ADD COLUMN IF NOT EXISTS redirect_uri TEXT`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
