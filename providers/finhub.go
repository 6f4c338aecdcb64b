package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momali-api/config"
)

// FinHubProvider talks to the UCT FinHub Open Banking sandbox (AIS-only).
// All endpoints are configurable through the OB_* settings.
type FinHubProvider struct {
	BaseURL          string
	ClientID         string
	ClientSecret     string
	MTLSHeaderValue  string
	TokenPath        string
	ConsentsPath     string
	AccountsPath     string
	PSUAuthorizePath string
	TokenScope       string
	ConsentExpiry    time.Duration
	Client           *http.Client

	now func() time.Time
}

func NewFinHubProvider(settings *config.Settings) *FinHubProvider {
	return &FinHubProvider{
		BaseURL:          strings.TrimRight(settings.OBBaseURL, "/"),
		ClientID:         settings.OBClientID,
		ClientSecret:     settings.OBClientSecret,
		MTLSHeaderValue:  settings.MTLSHeaderValue,
		TokenPath:        settings.OBTokenPath,
		ConsentsPath:     settings.OBConsentsPath,
		AccountsPath:     settings.OBAccountsPath,
		PSUAuthorizePath: settings.OBPSUAuthorizePath,
		TokenScope:       settings.OBTokenScope,
		ConsentExpiry:    time.Duration(settings.ConsentExpiryDays) * 24 * time.Hour,
		Client:           &http.Client{Timeout: 30 * time.Second},
		now:              time.Now,
	}
}

func (p *FinHubProvider) Name() string { return "finhub" }

func (p *FinHubProvider) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return p.BaseURL + path
}

// The sandbox accepts these headers when simulating mTLS enrollment.
func (p *FinHubProvider) commonHeaders(req *http.Request) {
	req.Header.Set("X-Client-Cert", p.MTLSHeaderValue)
	req.Header.Set("X-Forwarded-Client-Cert", p.MTLSHeaderValue)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (p *FinHubProvider) authHeaders(req *http.Request, accessToken string) {
	p.commonHeaders(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)
}

func (p *FinHubProvider) CreateConsent(ctx context.Context, redirectURI string, scopes []string) (*ConsentResult, error) {
	permissions := p.mapPermissions(scopes)
	token, err := p.tokenRequest(ctx, "client_credentials", p.tokenScope(), "", "")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"permissions":        permissions,
		"expirationDateTime": p.formatExpiry(),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", p.buildURL(p.ConsentsPath), strings.NewReader(string(body)))
	if err != nil {
		return nil, newProviderError("create consent", err)
	}
	p.authHeaders(req, token.AccessToken)

	data, err := p.doJSON(req, "create consent")
	if err != nil {
		return nil, err
	}

	consent, err := p.parseConsentResponse(data, "create consent")
	if err != nil {
		return nil, err
	}
	consent.AuthorizationURL = p.buildAuthorizationURL(consent.ConsentID, redirectURI)
	return consent, nil
}

func (p *FinHubProvider) GetConsentStatus(ctx context.Context, consentID string) (*ConsentResult, error) {
	token, err := p.tokenRequest(ctx, "client_credentials", p.tokenScope(), "", "")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.buildURL(p.ConsentsPath+"/"+consentID), nil)
	if err != nil {
		return nil, newProviderError("get consent status", err)
	}
	p.authHeaders(req, token.AccessToken)

	data, err := p.doJSON(req, "get consent status")
	if err != nil {
		return nil, err
	}
	return p.parseConsentResponse(data, "get consent status")
}

// The sandbox mints an access token from the consent id directly; there is no
// real authorization-code exchange.
func (p *FinHubProvider) ExchangeToken(ctx context.Context, consentID, authorizationCode, redirectURI string) (*TokenResult, error) {
	return p.tokenRequest(ctx, "client_credentials", p.tokenScope(), consentID, "")
}

func (p *FinHubProvider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	return p.tokenRequest(ctx, "refresh_token", p.tokenScope(), "", refreshToken)
}

func (p *FinHubProvider) FetchAccounts(ctx context.Context, accessToken string) ([]AccountRecord, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.buildURL(p.AccountsPath), nil)
	if err != nil {
		return nil, newProviderError("fetch accounts", err)
	}
	p.authHeaders(req, accessToken)

	data, err := p.doJSON(req, "fetch accounts")
	if err != nil {
		return nil, err
	}

	var records []AccountRecord
	for _, raw := range extractList(data, "accounts", "data", "Account", "Accounts") {
		accountID := firstString(raw, "id", "accountId", "account_id")
		if accountID == "" {
			continue
		}
		records = append(records, AccountRecord{
			ProviderAccountID: accountID,
			Name:              firstString(raw, "name"),
			Type:              firstString(raw, "type"),
			Currency:          firstString(raw, "currency"),
			InstitutionName:   firstString(raw, "bank_code", "bankCode"),
		})
	}
	return records, nil
}

func (p *FinHubProvider) FetchBalances(ctx context.Context, accessToken, accountID string) ([]BalanceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.buildURL(p.AccountsPath+"/"+accountID+"/balances"), nil)
	if err != nil {
		return nil, newProviderError("fetch balances", err)
	}
	p.authHeaders(req, accessToken)

	data, err := p.doJSON(req, "fetch balances")
	if err != nil {
		return nil, err
	}

	var raws []map[string]interface{}
	if obj, ok := data.(map[string]interface{}); ok {
		if _, hasCurrent := obj["current"]; hasCurrent {
			if _, hasAvailable := obj["available"]; hasAvailable {
				raws = append(raws, obj)
			}
		}
	}
	if raws == nil {
		raws = extractList(data, "balances", "data", "Balance", "Balances")
	}

	var records []BalanceRecord
	for _, raw := range raws {
		currency := firstString(raw, "currency")
		asOf := parseDatetime(firstValue(raw, "as_of", "asOf", "dateTime", "date"))
		for _, balanceType := range []string{"current", "available"} {
			amount, ok := parseAmount(raw[balanceType])
			if !ok {
				continue
			}
			records = append(records, BalanceRecord{
				ProviderAccountID: accountID,
				BalanceType:       balanceType,
				Amount:            amount,
				Currency:          currency,
				AsOf:              asOf,
			})
		}
	}
	return records, nil
}

func (p *FinHubProvider) FetchTransactions(ctx context.Context, accessToken, accountID string, fromDate *time.Time) ([]TransactionRecord, error) {
	endpoint := p.buildURL(p.AccountsPath + "/" + accountID + "/transactions")
	if fromDate != nil {
		endpoint += "?fromDate=" + fromDate.Format("2006-01-02")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, newProviderError("fetch transactions", err)
	}
	p.authHeaders(req, accessToken)

	data, err := p.doJSON(req, "fetch transactions")
	if err != nil {
		return nil, err
	}

	var records []TransactionRecord
	for _, raw := range extractList(data, "transactions", "data", "Transaction", "Transactions") {
		amount, ok := parseAmount(raw["amount"])
		if !ok {
			continue
		}
		records = append(records, TransactionRecord{
			ProviderAccountID:     accountID,
			ProviderTransactionID: firstString(raw, "id", "transactionId", "transaction_id"),
			Amount:                amount,
			Currency:              firstString(raw, "currency"),
			Description:           firstString(raw, "description"),
			Merchant:              firstString(raw, "merchant"),
			Category:              firstString(raw, "category"),
			Status:                firstString(raw, "status"),
			BookedAt:              parseDatetime(firstValue(raw, "booking_date", "bookingDateTime", "date")),
			ValueDate:             parseDatetime(firstValue(raw, "value_date", "valueDateTime")),
		})
	}
	return records, nil
}

func (p *FinHubProvider) tokenRequest(ctx context.Context, grantType, scope, consentID, refreshToken string) (*TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("scope", scope)
	if consentID != "" {
		form.Set("consent_id", consentID)
	}
	if refreshToken != "" {
		form.Set("refresh_token", refreshToken)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.buildURL(p.TokenPath), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newProviderError("token request", err)
	}
	p.commonHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := p.doJSON(req, "token request")
	if err != nil {
		return nil, err
	}
	return p.parseTokenResponse(data)
}

func (p *FinHubProvider) doJSON(req *http.Request, op string) (interface{}, error) {
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, newProviderError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, newStatusError(op, resp.StatusCode)
	}

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Op: op, Invalid: true, Err: err}
	}
	return data, nil
}

func (p *FinHubProvider) parseConsentResponse(data interface{}, op string) (*ConsentResult, error) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, newInvalidResponse(op, "consent response is not an object")
	}

	consentID := firstString(obj, "ConsentId", "consentId", "consent_id", "id")
	if consentID == "" {
		return nil, newInvalidResponse(op, "consent response missing consent id")
	}

	status := firstString(obj, "Status", "status", "statusCode")
	if status == "" {
		status = "unknown"
	}

	authURL := firstString(obj, "authorizationUrl", "authorisationUrl", "auth_url")
	if authURL == "" {
		if links, ok := obj["links"].(map[string]interface{}); ok {
			authURL = firstString(links, "authorization")
		}
	}

	return &ConsentResult{
		ConsentID:        consentID,
		Status:           status,
		AuthorizationURL: authURL,
		ExpiresAt:        parseDatetime(firstValue(obj, "ExpirationDateTime", "expirationDateTime", "expires_at", "expiresAt")),
	}, nil
}

func (p *FinHubProvider) parseTokenResponse(data interface{}) (*TokenResult, error) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, newInvalidResponse("token request", "token response is not an object")
	}

	accessToken := firstString(obj, "access_token", "accessToken")
	if accessToken == "" {
		return nil, newInvalidResponse("token request", "token response missing access token")
	}

	issuedAt := p.now().UTC()
	var expiresAt *time.Time
	if value := firstValue(obj, "expires_in", "expiresIn"); value != nil {
		// Unparsable lifetimes collapse to zero: the token counts as stale
		// immediately rather than never expiring.
		expiry := issuedAt.Add(time.Duration(safeSeconds(value)) * time.Second)
		expiresAt = &expiry
	}

	return &TokenResult{
		AccessToken:  accessToken,
		RefreshToken: firstString(obj, "refresh_token", "refreshToken"),
		TokenType:    firstString(obj, "token_type", "tokenType"),
		Scope:        firstString(obj, "scope"),
		ExpiresAt:    expiresAt,
		IssuedAt:     issuedAt,
	}, nil
}

var permissionMapping = map[string][]string{
	"accounts.read":        {"ReadAccountsDetail"},
	"balances.read":        {"ReadBalances"},
	"transactions.read":    {"ReadTransactionsBasic", "ReadTransactionsCredits", "ReadTransactionsDebits"},
	"transactions.basic":   {"ReadTransactionsBasic"},
	"transactions.debits":  {"ReadTransactionsDebits"},
	"transactions.credits": {"ReadTransactionsCredits"},
	"beneficiaries.read":   {"ReadBeneficiariesBasic"},
}

var allowedPermissions = map[string]bool{
	"ReadAccountsBasic":       true,
	"ReadAccountsDetail":      true,
	"ReadBalances":            true,
	"ReadTransactionsBasic":   true,
	"ReadTransactionsDetail":  true,
	"ReadTransactionsCredits": true,
	"ReadTransactionsDebits":  true,
	"ReadBeneficiariesBasic":  true,
}

func (p *FinHubProvider) mapPermissions(scopes []string) []string {
	var mapped []string
	for _, scope := range scopes {
		if allowedPermissions[scope] {
			mapped = append(mapped, scope)
		} else if expansion, ok := permissionMapping[scope]; ok {
			mapped = append(mapped, expansion...)
		}
	}
	if len(mapped) == 0 {
		mapped = []string{
			"ReadAccountsDetail",
			"ReadBalances",
			"ReadTransactionsBasic",
			"ReadTransactionsCredits",
			"ReadTransactionsDebits",
		}
	}

	// The sandbox rejects transaction permissions with unsatisfied
	// dependencies between the basic and credit/debit variants.
	hasBasicOrDetail := contains(mapped, "ReadTransactionsBasic") || contains(mapped, "ReadTransactionsDetail")
	hasCreditDebit := contains(mapped, "ReadTransactionsCredits") || contains(mapped, "ReadTransactionsDebits")
	if hasBasicOrDetail && !hasCreditDebit {
		mapped = append(mapped, "ReadTransactionsCredits", "ReadTransactionsDebits")
	}
	if hasCreditDebit && !hasBasicOrDetail {
		mapped = append(mapped, "ReadTransactionsBasic")
	}

	// Preserve order, drop duplicates.
	seen := make(map[string]bool, len(mapped))
	unique := mapped[:0]
	for _, permission := range mapped {
		if !seen[permission] {
			seen[permission] = true
			unique = append(unique, permission)
		}
	}
	return unique
}

func (p *FinHubProvider) tokenScope() string {
	if p.TokenScope != "" {
		return p.TokenScope
	}
	// The sandbox expects standard OAuth scopes, not permission strings.
	return "accounts.read balances.read transactions.read"
}

func (p *FinHubProvider) formatExpiry() string {
	return p.now().UTC().Add(p.ConsentExpiry).Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func (p *FinHubProvider) buildAuthorizationURL(consentID, redirectURI string) string {
	params := url.Values{}
	params.Set("consentId", consentID)
	if redirectURI != "" {
		params.Set("redirect_uri", redirectURI)
	}
	return p.buildURL(p.PSUAuthorizePath) + "?" + params.Encode()
}

func firstValue(obj map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if value, ok := obj[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(obj map[string]interface{}, keys ...string) string {
	switch value := firstValue(obj, keys...).(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

func parseAmount(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func safeSeconds(value interface{}) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func parseDatetime(value interface{}) *time.Time {
	switch v := value.(type) {
	case float64:
		parsed := time.Unix(int64(v), 0).UTC()
		return &parsed
	case string:
		if v == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				parsed = parsed.UTC()
				return &parsed
			}
		}
		return nil
	default:
		return nil
	}
}

func extractList(data interface{}, keys ...string) []map[string]interface{} {
	toMaps := func(items []interface{}) []map[string]interface{} {
		var result []map[string]interface{}
		for _, item := range items {
			if obj, ok := item.(map[string]interface{}); ok {
				result = append(result, obj)
			}
		}
		return result
	}

	switch v := data.(type) {
	case []interface{}:
		return toMaps(v)
	case map[string]interface{}:
		for _, key := range keys {
			switch nested := v[key].(type) {
			case []interface{}:
				return toMaps(nested)
			case map[string]interface{}:
				if items, ok := nested["data"].([]interface{}); ok {
					return toMaps(items)
				}
			}
		}
	}
	return nil
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
