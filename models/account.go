package models

import "time"

// Account is reconciled from provider data by (user, provider, provider_account_id).
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ConsentID         string    `json:"consent_id,omitempty"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	Name              string    `json:"name,omitempty"`
	Type              string    `json:"type,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	InstitutionName   string    `json:"institution_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Balance keeps history: rows for different as_of timestamps coexist, only an
// exact (account, type, as_of) match is replaced.
type Balance struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	AccountID   string     `json:"account_id"`
	BalanceType string     `json:"balance_type"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency,omitempty"`
	AsOf        *time.Time `json:"as_of,omitempty"`
}

type Transaction struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	AccountID             string     `json:"account_id"`
	Provider              string     `json:"provider"`
	ProviderTransactionID string     `json:"provider_transaction_id"`
	Amount                float64    `json:"amount"`
	Currency              string     `json:"currency,omitempty"`
	Description           string     `json:"description,omitempty"`
	Merchant              string     `json:"merchant,omitempty"`
	Category              string     `json:"category,omitempty"`
	Status                string     `json:"status,omitempty"`
	BookedAt              *time.Time `json:"booked_at,omitempty"`
	ValueDate             *time.Time `json:"value_date,omitempty"`
}
