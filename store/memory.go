package store

import (
	"context"
	"sync"
	"time"

	"momali-api/models"

	"github.com/google/uuid"
)

// Memory is an in-memory Store with the same upsert semantics as Postgres.
// It backs tests and local sandboxing; it is not safe for durability, only
// for concurrency.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]models.User
	consents     map[string]models.Consent
	tokens       map[string]models.Token
	accounts     map[string]models.Account
	balances     map[string]models.Balance
	transactions map[string]models.Transaction
	alerts       []models.Alert
	codes        []models.EmailVerificationCode
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]models.User),
		consents:     make(map[string]models.Consent),
		tokens:       make(map[string]models.Token),
		accounts:     make(map[string]models.Account),
		balances:     make(map[string]models.Balance),
		transactions: make(map[string]models.Transaction),
	}
}

func (s *Memory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[id]; ok {
		return &user, nil
	}
	return nil, ErrNotFound
}

func (s *Memory) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.ExternalID != "" && u.ExternalID == externalID })
}

func (s *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email != "" && u.Email == email })
}

func (s *Memory) findUser(match func(models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if match(user) {
			found := user
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = *user
	return nil
}

func (s *Memory) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.EmailVerified = true
	user.EmailVerifiedAt = &at
	user.UpdatedAt = time.Now().UTC()
	s.users[userID] = user
	return nil
}

func (s *Memory) CreateConsent(ctx context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	consent.ID = uuid.New().String()
	consent.CreatedAt = time.Now().UTC()
	consent.UpdatedAt = consent.CreatedAt
	s.consents[consent.ID] = *consent
	return nil
}

func (s *Memory) GetConsentByProviderID(ctx context.Context, providerConsentID string) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, consent := range s.consents {
		if consent.ConsentID == providerConsentID {
			found := consent
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) UpdateConsent(ctx context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[consent.ID]; !ok {
		return ErrNotFound
	}
	consent.UpdatedAt = time.Now().UTC()
	s.consents[consent.ID] = *consent
	return nil
}

func (s *Memory) ListConsents(ctx context.Context) ([]models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consents := make([]models.Consent, 0, len(s.consents))
	for _, consent := range s.consents {
		consents = append(consents, consent)
	}
	return consents, nil
}

func tokenKey(consentRowID, provider string) string {
	return consentRowID + "|" + provider
}

func (s *Memory) GetTokenByConsent(ctx context.Context, consentRowID, provider string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token, ok := s.tokens[tokenKey(consentRowID, provider)]; ok {
		return &token, nil
	}
	return nil, ErrNotFound
}

func (s *Memory) UpsertToken(ctx context.Context, token *models.Token) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey(token.ConsentID, token.Provider)
	if existing, ok := s.tokens[key]; ok {
		token.ID = existing.ID
	} else {
		token.ID = uuid.New().String()
	}
	s.tokens[key] = *token
	return token, nil
}

func (s *Memory) ListExpiringTokens(ctx context.Context, cutoff time.Time) ([]models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tokens []models.Token
	for _, token := range s.tokens {
		if token.ExpiresAt != nil && !token.ExpiresAt.After(cutoff) {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (s *Memory) ReconcileAccounts(ctx context.Context, accounts []models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range accounts {
		key := account.UserID + "|" + account.Provider + "|" + account.ProviderAccountID
		if existing, ok := s.accounts[key]; ok {
			account.ID = existing.ID
			account.CreatedAt = existing.CreatedAt
		} else {
			account.ID = uuid.New().String()
			account.CreatedAt = time.Now().UTC()
		}
		account.UpdatedAt = time.Now().UTC()
		s.accounts[key] = account
	}
	return nil
}

func balanceKey(balance models.Balance) string {
	asOf := "epoch"
	if balance.AsOf != nil {
		asOf = balance.AsOf.UTC().Format(time.RFC3339Nano)
	}
	return balance.AccountID + "|" + balance.BalanceType + "|" + asOf
}

func (s *Memory) ReconcileBalances(ctx context.Context, balances []models.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, balance := range balances {
		key := balanceKey(balance)
		if existing, ok := s.balances[key]; ok {
			balance.ID = existing.ID
		} else {
			balance.ID = uuid.New().String()
		}
		s.balances[key] = balance
	}
	return nil
}

func (s *Memory) ReconcileTransactions(ctx context.Context, transactions []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, transaction := range transactions {
		key := transaction.AccountID + "|" + transaction.Provider + "|" + transaction.ProviderTransactionID
		if existing, ok := s.transactions[key]; ok {
			transaction.ID = existing.ID
		} else {
			transaction.ID = uuid.New().String()
		}
		s.transactions[key] = transaction
	}
	return nil
}

func (s *Memory) ListAccounts(ctx context.Context, userID, provider string) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accounts []models.Account
	for _, account := range s.accounts {
		if account.UserID == userID && account.Provider == provider {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (s *Memory) ListBalances(ctx context.Context) ([]models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make([]models.Balance, 0, len(s.balances))
	for _, balance := range s.balances {
		balances = append(balances, balance)
	}
	return balances, nil
}

func (s *Memory) HasUnresolvedAlert(ctx context.Context, accountID, alertType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, alert := range s.alerts {
		if alert.AccountID == accountID && alert.Type == alertType && alert.ResolvedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *Memory) CreateAlerts(ctx context.Context, alerts []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range alerts {
		alert.ID = uuid.New().String()
		s.alerts = append(s.alerts, alert)
	}
	return nil
}

// Alerts returns a snapshot for tests.
func (s *Memory) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]models.Alert, len(s.alerts))
	copy(snapshot, s.alerts)
	return snapshot
}

func (s *Memory) LatestCode(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.codes) - 1; i >= 0; i-- {
		if s.codes[i].Email == email && s.codes[i].ConsumedAt == nil {
			found := s.codes[i]
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) CountCodesSince(ctx context.Context, email string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, code := range s.codes {
		if code.Email == email && !code.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Memory) CreateCode(ctx context.Context, code *models.EmailVerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now().UTC()
	s.codes = append(s.codes, *code)
	return nil
}

func (s *Memory) IncrementAttempts(ctx context.Context, codeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.codes {
		if s.codes[i].ID == codeID {
			s.codes[i].Attempts++
			return nil
		}
	}
	return ErrNotFound
}

func (s *Memory) ConsumeCode(ctx context.Context, codeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.codes {
		if s.codes[i].ID == codeID {
			s.codes[i].ConsumedAt = &at
			return nil
		}
	}
	return ErrNotFound
}
