package store

import (
	"context"
	"errors"
	"time"

	"momali-api/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

type ConsentStore interface {
	CreateConsent(ctx context.Context, consent *models.Consent) error
	// GetConsentByProviderID looks up by the provider-issued consent
	// identifier, which is globally unique.
	GetConsentByProviderID(ctx context.Context, providerConsentID string) (*models.Consent, error)
	UpdateConsent(ctx context.Context, consent *models.Consent) error
	ListConsents(ctx context.Context) ([]models.Consent, error)
}

type TokenStore interface {
	GetTokenByConsent(ctx context.Context, consentRowID, provider string) (*models.Token, error)
	// UpsertToken writes the single token row for (consent, provider) in one
	// atomic statement; concurrent callers cannot create duplicates, the
	// later write wins.
	UpsertToken(ctx context.Context, token *models.Token) (*models.Token, error)
	ListExpiringTokens(ctx context.Context, cutoff time.Time) ([]models.Token, error)
}

type SyncStore interface {
	// Reconcile operations match on the natural key: update every mutable
	// field when found, insert otherwise. Each batch commits atomically for
	// its entity type; there is no transaction spanning entity types.
	ReconcileAccounts(ctx context.Context, accounts []models.Account) error
	ReconcileBalances(ctx context.Context, balances []models.Balance) error
	ReconcileTransactions(ctx context.Context, transactions []models.Transaction) error
	ListAccounts(ctx context.Context, userID, provider string) ([]models.Account, error)
	ListBalances(ctx context.Context) ([]models.Balance, error)
}

type AlertStore interface {
	HasUnresolvedAlert(ctx context.Context, accountID, alertType string) (bool, error)
	CreateAlerts(ctx context.Context, alerts []models.Alert) error
}

type VerificationStore interface {
	LatestCode(ctx context.Context, email string) (*models.EmailVerificationCode, error)
	CountCodesSince(ctx context.Context, email string, since time.Time) (int, error)
	CreateCode(ctx context.Context, code *models.EmailVerificationCode) error
	IncrementAttempts(ctx context.Context, codeID string) error
	ConsumeCode(ctx context.Context, codeID string, at time.Time) error
}

// Store aggregates every persistence capability of the app.
type Store interface {
	UserStore
	ConsentStore
	TokenStore
	SyncStore
	AlertStore
	VerificationStore
}
