package services

import (
	"context"
	"testing"
	"time"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/store"
)

func newSyncFixture(t *testing.T, provider *stubProvider) (*SyncService, *store.Memory, *models.User, *models.Consent) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	user := &models.User{Email: "u@example.com"}
	if err := mem.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	consent := &models.Consent{UserID: user.ID, Provider: "stub", ConsentID: "c1", Status: "authorized"}
	if err := mem.CreateConsent(ctx, consent); err != nil {
		t.Fatal(err)
	}
	return NewSyncService(mem, provider), mem, user, consent
}

func TestSyncAccountsIdempotent(t *testing.T) {
	name := "Checking"
	provider := &stubProvider{
		fetchAccountsFn: func(accessToken string) ([]providers.AccountRecord, error) {
			return []providers.AccountRecord{
				{ProviderAccountID: "acc-1", Name: name, Currency: "ZAR"},
				{ProviderAccountID: "acc-2", Name: "Savings", Currency: "ZAR"},
			}, nil
		},
	}
	svc, mem, user, consent := newSyncFixture(t, provider)
	ctx := context.Background()

	count, err := svc.SyncAccounts(ctx, user, consent, "access")
	if err != nil {
		t.Fatalf("SyncAccounts: %v", err)
	}
	if count != 2 {
		t.Fatalf("processed %d, want 2", count)
	}

	// Replay with one changed field: still two rows, field refreshed.
	name = "Everyday Checking"
	count, err = svc.SyncAccounts(ctx, user, consent, "access")
	if err != nil {
		t.Fatalf("second SyncAccounts: %v", err)
	}
	if count != 2 {
		t.Fatalf("second run processed %d, want 2", count)
	}

	accounts, err := mem.ListAccounts(ctx, user.ID, consent.Provider)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("got %d account rows, want 2", len(accounts))
	}
	for _, account := range accounts {
		if account.ProviderAccountID == "acc-1" && account.Name != "Everyday Checking" {
			t.Fatalf("replay did not refresh account name: %q", account.Name)
		}
	}
}

func TestSyncBalancesAccumulatesAcrossAccounts(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		fetchBalancesFn: func(accessToken, accountID string) ([]providers.BalanceRecord, error) {
			return []providers.BalanceRecord{
				{ProviderAccountID: accountID, BalanceType: "current", Amount: 100, Currency: "ZAR", AsOf: &asOf},
				{ProviderAccountID: accountID, BalanceType: "available", Amount: 90, Currency: "ZAR", AsOf: &asOf},
			}, nil
		},
	}
	svc, mem, user, _ := newSyncFixture(t, provider)
	ctx := context.Background()

	accounts := []models.Account{
		{ID: "row-1", UserID: user.ID, Provider: "stub", ProviderAccountID: "acc-1"},
		{ID: "row-2", UserID: user.ID, Provider: "stub", ProviderAccountID: "acc-2"},
	}

	count, err := svc.SyncBalances(ctx, user, accounts, "access")
	if err != nil {
		t.Fatalf("SyncBalances: %v", err)
	}
	if count != 4 {
		t.Fatalf("processed %d, want 4", count)
	}

	// Replaying the same snapshot must not grow the balance set.
	if _, err := svc.SyncBalances(ctx, user, accounts, "access"); err != nil {
		t.Fatal(err)
	}
	balances, err := mem.ListBalances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 4 {
		t.Fatalf("got %d balance rows, want 4", len(balances))
	}

	// A newer as_of adds rows instead of overwriting history.
	asOf = asOf.Add(time.Hour)
	if _, err := svc.SyncBalances(ctx, user, accounts, "access"); err != nil {
		t.Fatal(err)
	}
	balances, _ = mem.ListBalances(ctx)
	if len(balances) != 8 {
		t.Fatalf("got %d balance rows after new snapshot, want 8", len(balances))
	}
}

func TestSyncTransactionsIdempotent(t *testing.T) {
	provider := &stubProvider{
		fetchTransactionsFn: func(accessToken, accountID string, fromDate *time.Time) ([]providers.TransactionRecord, error) {
			return []providers.TransactionRecord{
				{ProviderAccountID: accountID, ProviderTransactionID: "tx-1", Amount: -42.5, Currency: "ZAR", Description: "Coffee"},
				{ProviderAccountID: accountID, ProviderTransactionID: "tx-2", Amount: 1000, Currency: "ZAR", Description: "Salary"},
			}, nil
		},
	}
	svc, _, user, _ := newSyncFixture(t, provider)
	ctx := context.Background()

	accounts := []models.Account{{ID: "row-1", UserID: user.ID, Provider: "stub", ProviderAccountID: "acc-1"}}

	count, err := svc.SyncTransactions(ctx, user, accounts, "access", nil)
	if err != nil {
		t.Fatalf("SyncTransactions: %v", err)
	}
	if count != 2 {
		t.Fatalf("processed %d, want 2", count)
	}

	count, err = svc.SyncTransactions(ctx, user, accounts, "access", nil)
	if err != nil {
		t.Fatalf("second SyncTransactions: %v", err)
	}
	if count != 2 {
		t.Fatalf("second run processed %d, want 2", count)
	}
}

func TestSyncTransactionsPassesFromDate(t *testing.T) {
	var seen *time.Time
	provider := &stubProvider{
		fetchTransactionsFn: func(accessToken, accountID string, fromDate *time.Time) ([]providers.TransactionRecord, error) {
			seen = fromDate
			return nil, nil
		},
	}
	svc, _, user, _ := newSyncFixture(t, provider)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	accounts := []models.Account{{ID: "row-1", UserID: user.ID, Provider: "stub", ProviderAccountID: "acc-1"}}
	if _, err := svc.SyncTransactions(context.Background(), user, accounts, "access", &from); err != nil {
		t.Fatal(err)
	}
	if seen == nil || !seen.Equal(from) {
		t.Fatalf("provider received fromDate %v, want %v", seen, from)
	}
}
