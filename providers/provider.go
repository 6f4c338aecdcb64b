package providers

import (
	"context"
	"fmt"
	"time"
)

// ConsentResult is the provider's view of a consent.
type ConsentResult struct {
	ConsentID        string
	Status           string
	AuthorizationURL string
	ExpiresAt        *time.Time
}

// TokenResult always carries an access token; expiry is computed from the
// provider-reported lifetime. A zero lifetime means the token is already stale.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time
	IssuedAt     time.Time
}

type AccountRecord struct {
	ProviderAccountID string
	Name              string
	Type              string
	Currency          string
	InstitutionName   string
}

type BalanceRecord struct {
	ProviderAccountID string
	BalanceType       string
	Amount            float64
	Currency          string
	AsOf              *time.Time
}

type TransactionRecord struct {
	ProviderAccountID     string
	ProviderTransactionID string
	Amount                float64
	Currency              string
	Description           string
	Merchant              string
	Category              string
	Status                string
	BookedAt              *time.Time
	ValueDate             *time.Time
}

// Provider is the capability set a remote banking API must satisfy. Any
// conforming adapter (including a test double) can be swapped in.
type Provider interface {
	Name() string
	CreateConsent(ctx context.Context, redirectURI string, scopes []string) (*ConsentResult, error)
	GetConsentStatus(ctx context.Context, consentID string) (*ConsentResult, error)
	ExchangeToken(ctx context.Context, consentID, authorizationCode, redirectURI string) (*TokenResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error)
	FetchAccounts(ctx context.Context, accessToken string) ([]AccountRecord, error)
	FetchBalances(ctx context.Context, accessToken, accountID string) ([]BalanceRecord, error)
	FetchTransactions(ctx context.Context, accessToken, accountID string, fromDate *time.Time) ([]TransactionRecord, error)
}

// ProviderError covers network failures, non-2xx responses and malformed
// payloads from the remote API. Invalid marks a payload the provider returned
// successfully but that is missing a required field.
type ProviderError struct {
	Op         string
	StatusCode int
	Invalid    bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Err: err}
}

func newStatusError(op string, status int) *ProviderError {
	return &ProviderError{Op: op, StatusCode: status}
}

func newInvalidResponse(op, detail string) *ProviderError {
	return &ProviderError{Op: op, Invalid: true, Err: fmt.Errorf("%s", detail)}
}
