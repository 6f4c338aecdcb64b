package services

import (
	"context"
	"time"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/store"
)

// SyncService pulls accounts, balances and transactions through the provider
// contract and reconciles them into the store by natural key. Counts are rows
// processed, not rows changed; replaying the same provider data is a no-op
// apart from refreshed field values.
type SyncService struct {
	store    store.Store
	provider providers.Provider
}

func NewSyncService(st store.Store, provider providers.Provider) *SyncService {
	return &SyncService{store: st, provider: provider}
}

// SyncAccounts fetches the provider's accounts for a consent and reconciles
// them by (user, provider, provider_account_id).
func (s *SyncService) SyncAccounts(ctx context.Context, user *models.User, consent *models.Consent, accessToken string) (int, error) {
	records, err := s.provider.FetchAccounts(ctx, accessToken)
	if err != nil {
		return 0, err
	}

	accounts := make([]models.Account, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, models.Account{
			UserID:            user.ID,
			ConsentID:         consent.ID,
			Provider:          consent.Provider,
			ProviderAccountID: record.ProviderAccountID,
			Name:              record.Name,
			Type:              record.Type,
			Currency:          record.Currency,
			InstitutionName:   record.InstitutionName,
		})
	}
	if err := s.store.ReconcileAccounts(ctx, accounts); err != nil {
		return 0, err
	}
	return len(accounts), nil
}

// SyncBalances fetches balances account by account and reconciles each batch
// by (account, balance_type, as_of). Each account commits separately, so a
// failure partway leaves earlier accounts' rows in place.
func (s *SyncService) SyncBalances(ctx context.Context, user *models.User, accounts []models.Account, accessToken string) (int, error) {
	total := 0
	for _, account := range accounts {
		records, err := s.provider.FetchBalances(ctx, accessToken, account.ProviderAccountID)
		if err != nil {
			return total, err
		}

		balances := make([]models.Balance, 0, len(records))
		for _, record := range records {
			balances = append(balances, models.Balance{
				UserID:      user.ID,
				AccountID:   account.ID,
				BalanceType: record.BalanceType,
				Amount:      record.Amount,
				Currency:    record.Currency,
				AsOf:        record.AsOf,
			})
		}
		if err := s.store.ReconcileBalances(ctx, balances); err != nil {
			return total, err
		}
		total += len(balances)
	}
	return total, nil
}

// SyncTransactions fetches transactions account by account, optionally bounded
// by fromDate, and reconciles each batch by (account, provider,
// provider_transaction_id).
func (s *SyncService) SyncTransactions(ctx context.Context, user *models.User, accounts []models.Account, accessToken string, fromDate *time.Time) (int, error) {
	total := 0
	for _, account := range accounts {
		records, err := s.provider.FetchTransactions(ctx, accessToken, account.ProviderAccountID, fromDate)
		if err != nil {
			return total, err
		}

		transactions := make([]models.Transaction, 0, len(records))
		for _, record := range records {
			transactions = append(transactions, models.Transaction{
				UserID:                user.ID,
				AccountID:             account.ID,
				Provider:              account.Provider,
				ProviderTransactionID: record.ProviderTransactionID,
				Amount:                record.Amount,
				Currency:              record.Currency,
				Description:           record.Description,
				Merchant:              record.Merchant,
				Category:              record.Category,
				Status:                record.Status,
				BookedAt:              record.BookedAt,
				ValueDate:             record.ValueDate,
			})
		}
		if err := s.store.ReconcileTransactions(ctx, transactions); err != nil {
			return total, err
		}
		total += len(transactions)
	}
	return total, nil
}
