package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/services"
	"momali-api/store"
	"momali-api/utils"
)

type scriptedProvider struct {
	consentStatus string
	exchangeErr   error
}

func (p *scriptedProvider) Name() string { return "stub" }

func (p *scriptedProvider) CreateConsent(ctx context.Context, redirectURI string, scopes []string) (*providers.ConsentResult, error) {
	return &providers.ConsentResult{
		ConsentID:        "fh-1",
		Status:           "AwaitingAuthorisation",
		AuthorizationURL: "https://bank/authorize?consentId=fh-1",
	}, nil
}

func (p *scriptedProvider) GetConsentStatus(ctx context.Context, consentID string) (*providers.ConsentResult, error) {
	status := p.consentStatus
	if status == "" {
		status = "AwaitingAuthorisation"
	}
	return &providers.ConsentResult{ConsentID: consentID, Status: status}, nil
}

func (p *scriptedProvider) ExchangeToken(ctx context.Context, consentID, code, redirectURI string) (*providers.TokenResult, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	issued := time.Now().UTC()
	expiry := issued.Add(time.Hour)
	return &providers.TokenResult{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		ExpiresAt:    &expiry,
		IssuedAt:     issued,
	}, nil
}

func (p *scriptedProvider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenResult, error) {
	return p.ExchangeToken(ctx, "", "", "")
}

func (p *scriptedProvider) FetchAccounts(ctx context.Context, accessToken string) ([]providers.AccountRecord, error) {
	return []providers.AccountRecord{{ProviderAccountID: "acc-1", Name: "Checking"}}, nil
}

func (p *scriptedProvider) FetchBalances(ctx context.Context, accessToken, accountID string) ([]providers.BalanceRecord, error) {
	return nil, nil
}

func (p *scriptedProvider) FetchTransactions(ctx context.Context, accessToken, accountID string, fromDate *time.Time) ([]providers.TransactionRecord, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, provider *scriptedProvider) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	cipher, err := utils.NewTokenCipher("test-secret")
	if err != nil {
		t.Fatal(err)
	}

	h := NewOpenBankingHandler(mem,
		services.NewConsentService(mem, provider),
		services.NewTokenService(mem, provider, cipher, 120*time.Second),
		services.NewSyncService(mem, provider),
	)

	router := gin.New()
	router.POST("/consents", h.CreateConsent)
	router.GET("/consents/:consent_id", h.GetConsent)
	router.POST("/callback", h.AuthorizeCallback)
	router.POST("/sync/accounts", h.SyncAccounts)
	return router, mem
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestCreateConsentEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedProvider{})

	resp := postJSON(router, "/consents", models.ConsentCreateRequest{
		Email:       "u@example.com",
		RedirectURI: "https://app/cb",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body models.ConsentCreateResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ConsentID != "fh-1" || body.AuthorizationURL == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCreateConsentMissingUserKey(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedProvider{})

	resp := postJSON(router, "/consents", models.ConsentCreateRequest{RedirectURI: "https://app/cb"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestGetConsentUnknownID(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedProvider{})

	req := httptest.NewRequest("GET", "/consents/does-not-exist", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestCallbackOwnershipMismatch(t *testing.T) {
	provider := &scriptedProvider{}
	router, mem := newTestRouter(t, provider)

	consent := &models.Consent{UserID: "owner", Provider: "stub", ConsentID: "fh-1", Status: "pending", RedirectURI: "https://app/cb"}
	if err := mem.CreateConsent(context.Background(), consent); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(router, "/callback", models.AuthorizationCallbackRequest{
		ConsentID: "fh-1",
		UserID:    "intruder",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.Code)
	}
}

func TestCallbackProviderFailure(t *testing.T) {
	provider := &scriptedProvider{exchangeErr: &providers.ProviderError{Op: "token request", StatusCode: 500}}
	router, mem := newTestRouter(t, provider)

	consent := &models.Consent{UserID: "owner", Provider: "stub", ConsentID: "fh-1", Status: "pending", RedirectURI: "https://app/cb"}
	if err := mem.CreateConsent(context.Background(), consent); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(router, "/callback", models.AuthorizationCallbackRequest{ConsentID: "fh-1"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.Code)
	}
}

func TestSyncRejectsUnauthorizedConsent(t *testing.T) {
	router, mem := newTestRouter(t, &scriptedProvider{})

	consent := &models.Consent{UserID: "owner", Provider: "stub", ConsentID: "fh-1", Status: "pending"}
	if err := mem.CreateConsent(context.Background(), consent); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(router, "/sync/accounts", models.SyncRequest{UserID: "owner", ConsentID: "fh-1"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.Code)
	}
}

func TestSyncFullFlow(t *testing.T) {
	router, mem := newTestRouter(t, &scriptedProvider{})

	user := &models.User{Email: "u@example.com"}
	if err := mem.CreateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	consent := &models.Consent{UserID: user.ID, Provider: "stub", ConsentID: "fh-1", Status: "pending", RedirectURI: "https://app/cb"}
	if err := mem.CreateConsent(context.Background(), consent); err != nil {
		t.Fatal(err)
	}

	// Authorize via the callback, then sync.
	resp := postJSON(router, "/callback", models.AuthorizationCallbackRequest{ConsentID: "fh-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = postJSON(router, "/sync/accounts", models.SyncRequest{UserID: user.ID, ConsentID: "fh-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body models.SyncResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Synced != 1 {
		t.Fatalf("synced = %d, want 1", body.Synced)
	}
}
