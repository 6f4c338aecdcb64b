package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func newTestProvider(baseURL string) *FinHubProvider {
	return &FinHubProvider{
		BaseURL:          baseURL,
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		MTLSHeaderValue:  "enrolled-cert",
		TokenPath:        "/connect/mtls/token",
		ConsentsPath:     "/account-access-consents",
		AccountsPath:     "/accounts",
		PSUAuthorizePath: "/psu/authorize/ui",
		ConsentExpiry:    90 * 24 * time.Hour,
		Client:           &http.Client{Timeout: 5 * time.Second},
		now:              func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
	}
}

func TestExchangeTokenRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/connect/mtls/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Client-Cert"); got != "enrolled-cert" {
			t.Errorf("X-Client-Cert = %q", got)
		}
		if got := r.Header.Get("X-Forwarded-Client-Cert"); got != "enrolled-cert" {
			t.Errorf("X-Forwarded-Client-Cert = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("consent_id") != "consent-42" {
			t.Errorf("consent_id = %q", r.PostForm.Get("consent_id"))
		}
		if r.PostForm.Get("client_secret") != "client-secret" {
			t.Errorf("client_secret = %q", r.PostForm.Get("client_secret"))
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "Bearer",
			"scope":         "accounts.read",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	result, err := p.ExchangeToken(context.Background(), "consent-42", "code", "https://app/cb")
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	if result.AccessToken != "at-1" || result.RefreshToken != "rt-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	wantExpiry := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	if result.ExpiresAt == nil || !result.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", result.ExpiresAt, wantExpiry)
	}
}

func TestExchangeTokenUnparsableLifetime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-1",
			"expires_in":   "soon",
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	result, err := p.ExchangeToken(context.Background(), "consent-42", "", "")
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	// Unparsable lifetime collapses to issued_at: already stale.
	if result.ExpiresAt == nil || !result.ExpiresAt.Equal(result.IssuedAt) {
		t.Fatalf("expiry = %v, want issued_at %v", result.ExpiresAt, result.IssuedAt)
	}
}

func TestExchangeTokenMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"token_type": "Bearer"})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.ExchangeToken(context.Background(), "consent-42", "", "")

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || !providerErr.Invalid {
		t.Fatalf("got %v, want invalid-response ProviderError", err)
	}
}

func TestProviderStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.FetchAccounts(context.Background(), "at-1")

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("got %v, want ProviderError", err)
	}
	if providerErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", providerErr.StatusCode)
	}
}

func TestCreateConsentBuildsAuthorizationURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/connect/mtls/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at-1", "expires_in": 3600})
		case "/account-access-consents":
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["expirationDateTime"] != "2026-11-28T12:00:00Z" {
				t.Errorf("expirationDateTime = %v", payload["expirationDateTime"])
			}
			if _, ok := payload["permissions"].([]interface{}); !ok {
				t.Errorf("permissions missing from payload: %v", payload)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ConsentId": "fh-consent-7",
				"Status":    "AwaitingAuthorisation",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	result, err := p.CreateConsent(context.Background(), "https://app/cb", []string{"accounts.read"})
	if err != nil {
		t.Fatalf("CreateConsent: %v", err)
	}
	if result.ConsentID != "fh-consent-7" || result.Status != "AwaitingAuthorisation" {
		t.Fatalf("unexpected result %+v", result)
	}
	want := server.URL + "/psu/authorize/ui?consentId=fh-consent-7&redirect_uri=https%3A%2F%2Fapp%2Fcb"
	if result.AuthorizationURL != want {
		t.Fatalf("authorization URL = %q, want %q", result.AuthorizationURL, want)
	}
}

func TestMapPermissions(t *testing.T) {
	p := newTestProvider("http://unused")

	cases := []struct {
		name   string
		scopes []string
		want   []string
	}{
		{
			"scope expansion with dependency completion",
			[]string{"accounts.read", "transactions.basic"},
			[]string{"ReadAccountsDetail", "ReadTransactionsBasic", "ReadTransactionsCredits", "ReadTransactionsDebits"},
		},
		{
			"credit-only gains basic",
			[]string{"transactions.credits"},
			[]string{"ReadTransactionsCredits", "ReadTransactionsBasic"},
		},
		{
			"raw permissions pass through deduplicated",
			[]string{"ReadBalances", "balances.read"},
			[]string{"ReadBalances"},
		},
		{
			"unknown scopes fall back to defaults",
			[]string{"nonsense"},
			[]string{"ReadAccountsDetail", "ReadBalances", "ReadTransactionsBasic", "ReadTransactionsCredits", "ReadTransactionsDebits"},
		},
		{
			"empty falls back to defaults",
			nil,
			[]string{"ReadAccountsDetail", "ReadBalances", "ReadTransactionsBasic", "ReadTransactionsCredits", "ReadTransactionsDebits"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.mapPermissions(tc.scopes)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFetchBalancesSingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acc-1/balances" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"current":   100.5,
			"available": "90.25",
			"currency":  "ZAR",
			"as_of":     "2026-08-30T10:00:00Z",
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	records, err := p.FetchBalances(context.Background(), "at-1", "acc-1")
	if err != nil {
		t.Fatalf("FetchBalances: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].BalanceType != "current" || records[0].Amount != 100.5 {
		t.Fatalf("current record %+v", records[0])
	}
	if records[1].BalanceType != "available" || records[1].Amount != 90.25 {
		t.Fatalf("available record %+v", records[1])
	}
	wantAsOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if records[0].AsOf == nil || !records[0].AsOf.Equal(wantAsOf) {
		t.Fatalf("as_of = %v, want %v", records[0].AsOf, wantAsOf)
	}
}

func TestFetchBalancesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []map[string]interface{}{
				{"current": 10, "currency": "ZAR"},
				{"available": 20, "currency": "ZAR"},
			},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	records, err := p.FetchBalances(context.Background(), "at-1", "acc-1")
	if err != nil {
		t.Fatalf("FetchBalances: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestFetchAccountsTolerantParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts": []map[string]interface{}{
				{"id": "acc-1", "name": "Checking", "currency": "ZAR", "bank_code": "FNB"},
				{"accountId": "acc-2", "name": "Savings"},
				{"name": "no id, skipped"},
			},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	records, err := p.FetchAccounts(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("FetchAccounts: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ProviderAccountID != "acc-1" || records[0].InstitutionName != "FNB" {
		t.Fatalf("first record %+v", records[0])
	}
	if records[1].ProviderAccountID != "acc-2" {
		t.Fatalf("second record %+v", records[1])
	}
}

func TestFetchTransactionsFromDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fromDate"); got != "2026-08-01" {
			t.Errorf("fromDate = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"id": "tx-1", "amount": -42.5, "currency": "ZAR", "booking_date": "2026-08-15"},
				{"id": "tx-skip", "amount": "not-a-number"},
			},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records, err := p.FetchTransactions(context.Background(), "at-1", "acc-1", &from)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ProviderTransactionID != "tx-1" || records[0].Amount != -42.5 {
		t.Fatalf("record %+v", records[0])
	}
	if records[0].BookedAt == nil {
		t.Fatal("booking_date not parsed")
	}
}
