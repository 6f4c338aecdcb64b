package services

import (
	"context"
	"time"

	"momali-api/providers"
)

// stubProvider lets each test script provider behaviour and observe call
// counts without any network traffic.
type stubProvider struct {
	name string

	createConsentFn     func(redirectURI string, scopes []string) (*providers.ConsentResult, error)
	getConsentStatusFn  func(consentID string) (*providers.ConsentResult, error)
	exchangeTokenFn     func(consentID, code, redirectURI string) (*providers.TokenResult, error)
	refreshTokenFn      func(refreshToken string) (*providers.TokenResult, error)
	fetchAccountsFn     func(accessToken string) ([]providers.AccountRecord, error)
	fetchBalancesFn     func(accessToken, accountID string) ([]providers.BalanceRecord, error)
	fetchTransactionsFn func(accessToken, accountID string, fromDate *time.Time) ([]providers.TransactionRecord, error)

	refreshCalls  int
	exchangeCalls int
}

func (p *stubProvider) Name() string {
	if p.name == "" {
		return "stub"
	}
	return p.name
}

func (p *stubProvider) CreateConsent(ctx context.Context, redirectURI string, scopes []string) (*providers.ConsentResult, error) {
	if p.createConsentFn == nil {
		return &providers.ConsentResult{ConsentID: "consent-1", Status: "pending"}, nil
	}
	return p.createConsentFn(redirectURI, scopes)
}

func (p *stubProvider) GetConsentStatus(ctx context.Context, consentID string) (*providers.ConsentResult, error) {
	if p.getConsentStatusFn == nil {
		return &providers.ConsentResult{ConsentID: consentID, Status: "pending"}, nil
	}
	return p.getConsentStatusFn(consentID)
}

func (p *stubProvider) ExchangeToken(ctx context.Context, consentID, code, redirectURI string) (*providers.TokenResult, error) {
	p.exchangeCalls++
	if p.exchangeTokenFn == nil {
		return tokenResult("access-1", "refresh-1", 3600), nil
	}
	return p.exchangeTokenFn(consentID, code, redirectURI)
}

func (p *stubProvider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenResult, error) {
	p.refreshCalls++
	if p.refreshTokenFn == nil {
		return tokenResult("access-2", "refresh-2", 3600), nil
	}
	return p.refreshTokenFn(refreshToken)
}

func (p *stubProvider) FetchAccounts(ctx context.Context, accessToken string) ([]providers.AccountRecord, error) {
	if p.fetchAccountsFn == nil {
		return nil, nil
	}
	return p.fetchAccountsFn(accessToken)
}

func (p *stubProvider) FetchBalances(ctx context.Context, accessToken, accountID string) ([]providers.BalanceRecord, error) {
	if p.fetchBalancesFn == nil {
		return nil, nil
	}
	return p.fetchBalancesFn(accessToken, accountID)
}

func (p *stubProvider) FetchTransactions(ctx context.Context, accessToken, accountID string, fromDate *time.Time) ([]providers.TransactionRecord, error) {
	if p.fetchTransactionsFn == nil {
		return nil, nil
	}
	return p.fetchTransactionsFn(accessToken, accountID, fromDate)
}

func tokenResult(accessToken, refreshToken string, lifetimeSeconds int) *providers.TokenResult {
	issued := time.Now().UTC()
	expiry := issued.Add(time.Duration(lifetimeSeconds) * time.Second)
	return &providers.TokenResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Scope:        "accounts.read",
		ExpiresAt:    &expiry,
		IssuedAt:     issued,
	}
}
