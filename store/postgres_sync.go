package store

import (
	"context"
	"database/sql"
	"fmt"

	"momali-api/models"
)

func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReconcileAccounts upserts every account by (user, provider, provider_account_id)
// inside one transaction.
func (s *Postgres) ReconcileAccounts(ctx context.Context, accounts []models.Account) error {
	query := `
		INSERT INTO accounts (user_id, consent_id, provider, provider_account_id, name, type, currency, institution_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider, provider_account_id)
		DO UPDATE SET
			consent_id = EXCLUDED.consent_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			currency = EXCLUDED.currency,
			institution_name = EXCLUDED.institution_name,
			updated_at = NOW()
	`
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, account := range accounts {
			_, err := tx.ExecContext(ctx, query,
				account.UserID, nullable(account.ConsentID), account.Provider, account.ProviderAccountID,
				nullable(account.Name), nullable(account.Type), nullable(account.Currency), nullable(account.InstitutionName),
			)
			if err != nil {
				return fmt.Errorf("failed to reconcile account %s: %w", account.ProviderAccountID, err)
			}
		}
		return nil
	})
}

// ReconcileBalances replaces only an exact (account, type, as_of) match, so
// balance history for earlier as_of timestamps is kept.
func (s *Postgres) ReconcileBalances(ctx context.Context, balances []models.Balance) error {
	query := `
		INSERT INTO balances (user_id, account_id, balance_type, amount, currency, as_of)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, balance_type, COALESCE(as_of, 'epoch'::timestamptz))
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, balance := range balances {
			_, err := tx.ExecContext(ctx, query,
				balance.UserID, balance.AccountID, balance.BalanceType,
				balance.Amount, nullable(balance.Currency), balance.AsOf,
			)
			if err != nil {
				return fmt.Errorf("failed to reconcile balance: %w", err)
			}
		}
		return nil
	})
}

func (s *Postgres) ReconcileTransactions(ctx context.Context, transactions []models.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, account_id, provider, provider_transaction_id, amount, currency,
			description, merchant, category, status, booked_at, value_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, provider, provider_transaction_id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			description = EXCLUDED.description,
			merchant = EXCLUDED.merchant,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			booked_at = EXCLUDED.booked_at,
			value_date = EXCLUDED.value_date,
			updated_at = NOW()
	`
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, transaction := range transactions {
			_, err := tx.ExecContext(ctx, query,
				transaction.UserID, transaction.AccountID, transaction.Provider, transaction.ProviderTransactionID,
				transaction.Amount, nullable(transaction.Currency), nullable(transaction.Description),
				nullable(transaction.Merchant), nullable(transaction.Category), nullable(transaction.Status),
				transaction.BookedAt, transaction.ValueDate,
			)
			if err != nil {
				return fmt.Errorf("failed to reconcile transaction %s: %w", transaction.ProviderTransactionID, err)
			}
		}
		return nil
	})
}

func (s *Postgres) ListAccounts(ctx context.Context, userID, provider string) ([]models.Account, error) {
	query := `
		SELECT id, user_id, consent_id, provider, provider_account_id, name, type, currency, institution_name,
		       created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND provider = $2
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		var consentID, name, accountType, currency, institution sql.NullString
		err := rows.Scan(
			&account.ID, &account.UserID, &consentID, &account.Provider, &account.ProviderAccountID,
			&name, &accountType, &currency, &institution, &account.CreatedAt, &account.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		account.ConsentID = consentID.String
		account.Name = name.String
		account.Type = accountType.String
		account.Currency = currency.String
		account.InstitutionName = institution.String
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Postgres) ListBalances(ctx context.Context) ([]models.Balance, error) {
	query := `
		SELECT id, user_id, account_id, balance_type, amount, currency, as_of
		FROM balances
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []models.Balance
	for rows.Next() {
		var balance models.Balance
		var currency sql.NullString
		if err := rows.Scan(&balance.ID, &balance.UserID, &balance.AccountID, &balance.BalanceType,
			&balance.Amount, &currency, &balance.AsOf); err != nil {
			return nil, err
		}
		balance.Currency = currency.String
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

func (s *Postgres) HasUnresolvedAlert(ctx context.Context, accountID, alertType string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE account_id = $1 AND type = $2 AND resolved_at IS NULL
		)
	`, accountID, alertType).Scan(&exists)
	return exists, err
}

func (s *Postgres) CreateAlerts(ctx context.Context, alerts []models.Alert) error {
	query := `
		INSERT INTO alerts (user_id, account_id, type, message, severity, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, alert := range alerts {
			_, err := tx.ExecContext(ctx, query,
				alert.UserID, nullable(alert.AccountID), alert.Type,
				alert.Message, alert.Severity, alert.TriggeredAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create alert: %w", err)
			}
		}
		return nil
	})
}
