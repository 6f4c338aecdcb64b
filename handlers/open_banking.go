package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/services"
	"momali-api/store"
	"momali-api/utils"
)

type OpenBankingHandler struct {
	store    store.Store
	consents *services.ConsentService
	tokens   *services.TokenService
	sync     *services.SyncService
}

func NewOpenBankingHandler(st store.Store, consents *services.ConsentService, tokens *services.TokenService, syncService *services.SyncService) *OpenBankingHandler {
	return &OpenBankingHandler{
		store:    st,
		consents: consents,
		tokens:   tokens,
		sync:     syncService,
	}
}

// respondError traduit les erreurs internes en statuts HTTP
func respondError(c *gin.Context, err error) {
	var providerErr *providers.ProviderError
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrConsentInactive), errors.Is(err, services.ErrConsentNotAuthorized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errOwnership):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrDecryption):
		utils.SafeLog("❌ [OpenBanking] stored credential unreadable: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored credential cannot be read"})
	case errors.As(err, &providerErr):
		utils.SafeLog("❌ [OpenBanking] provider failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider request failed"})
	default:
		utils.SafeLog("❌ [OpenBanking] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *OpenBankingHandler) CreateConsent(c *gin.Context) {
	var req models.ConsentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	consent, authorizationURL, err := h.consents.CreateConsent(
		c.Request.Context(), req.UserID, req.UserExternalID, req.Email, req.RedirectURI, req.Scopes,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.LogConsentAction("created", consent.ConsentID, consent.UserID)
	c.JSON(http.StatusCreated, models.ConsentCreateResponse{
		ID:               consent.ID,
		UserID:           consent.UserID,
		ConsentID:        consent.ConsentID,
		Status:           consent.Status,
		AuthorizationURL: authorizationURL,
		ExpiresAt:        consent.ExpiresAt,
	})
}

func (h *OpenBankingHandler) GetConsent(c *gin.Context) {
	consent, err := h.store.GetConsentByProviderID(c.Request.Context(), c.Param("consent_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	consent, err = h.consents.UpdateConsentStatus(c.Request.Context(), consent)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ConsentStatusResponse{
		ID:           consent.ID,
		UserID:       consent.UserID,
		ConsentID:    consent.ConsentID,
		Status:       consent.Status,
		ExpiresAt:    consent.ExpiresAt,
		AuthorizedAt: consent.AuthorizedAt,
		RevokedAt:    consent.RevokedAt,
	})
}

// AuthorizeCallback finalise l'autorisation : échange le code contre un token.
func (h *OpenBankingHandler) AuthorizeCallback(c *gin.Context) {
	var req models.AuthorizationCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.exchange(c, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		AccessTokenExpiresAt: token.ExpiresAt,
		Scope:                token.Scope,
		TokenType:            token.TokenType,
	})
}

func (h *OpenBankingHandler) exchange(c *gin.Context, req models.AuthorizationCallbackRequest) (*models.Token, error) {
	consent, err := h.store.GetConsentByProviderID(c.Request.Context(), req.ConsentID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && req.UserID != consent.UserID {
		return nil, errOwnership
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = consent.RedirectURI
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: redirect_uri is required", services.ErrValidation)
	}

	if err := h.consents.EnsureActive(consent, false); err != nil {
		return nil, err
	}

	token, err := h.tokens.ExchangeToken(c.Request.Context(), consent, req.AuthorizationCode, redirectURI)
	if err != nil {
		return nil, err
	}

	utils.LogConsentAction("authorized", consent.ConsentID, consent.UserID)
	return token, nil
}

// CallbackPage sert la page HTML minimale vers laquelle le provider redirige
// l'utilisateur après l'écran de consentement.
func (h *OpenBankingHandler) CallbackPage(c *gin.Context) {
	consentID := c.Query("consentId")
	if consentID == "" {
		consentID = c.Query("consent_id")
	}
	code := c.Query("code")

	if consentID == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", callbackHTML("❌ Erreur", "Identifiant de consentement manquant."))
		return
	}

	_, err := h.exchange(c, models.AuthorizationCallbackRequest{
		ConsentID:         consentID,
		AuthorizationCode: code,
	})
	if err != nil {
		utils.SafeLog("⚠️ [OpenBanking] callback exchange failed for consent %s: %v", utils.MaskID(consentID), err)
		c.Data(http.StatusOK, "text/html; charset=utf-8", callbackHTML("❌ Échec de la connexion", "La connexion à votre banque n'a pas pu être finalisée. Vous pouvez fermer cette fenêtre et réessayer."))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", callbackHTML("✅ Compte connecté", "Votre banque est connectée. Vous pouvez fermer cette fenêtre."))
}

func callbackHTML(title, message string) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <style>
        body { font-family: sans-serif; background: #f8f9fa; }
        .card { max-width: 420px; margin: 80px auto; padding: 40px; background: white; border-radius: 10px; text-align: center; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, title, message))
}

func (h *OpenBankingHandler) RefreshToken(c *gin.Context) {
	var req models.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	consent, err := h.loadOwnedConsent(c, req.ConsentID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.consents.EnsureActive(consent, false); err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.GetActiveToken(c.Request.Context(), consent)
	if err != nil {
		respondError(c, err)
		return
	}
	if token == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no token issued for this consent"})
		return
	}

	token, err = h.tokens.RefreshToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		AccessTokenExpiresAt: token.ExpiresAt,
		Scope:                token.Scope,
		TokenType:            token.TokenType,
	})
}

func (h *OpenBankingHandler) SyncAccounts(c *gin.Context) {
	h.handleSync(c, func(c *gin.Context, user *models.User, consent *models.Consent, accessToken string) (int, error) {
		return h.sync.SyncAccounts(c.Request.Context(), user, consent, accessToken)
	})
}

func (h *OpenBankingHandler) SyncBalances(c *gin.Context) {
	h.handleSync(c, func(c *gin.Context, user *models.User, consent *models.Consent, accessToken string) (int, error) {
		accounts, err := h.store.ListAccounts(c.Request.Context(), user.ID, consent.Provider)
		if err != nil {
			return 0, err
		}
		return h.sync.SyncBalances(c.Request.Context(), user, accounts, accessToken)
	})
}

func (h *OpenBankingHandler) SyncTransactions(c *gin.Context) {
	h.handleSync(c, func(c *gin.Context, user *models.User, consent *models.Consent, accessToken string) (int, error) {
		accounts, err := h.store.ListAccounts(c.Request.Context(), user.ID, consent.Provider)
		if err != nil {
			return 0, err
		}
		return h.sync.SyncTransactions(c.Request.Context(), user, accounts, accessToken, nil)
	})
}

func (h *OpenBankingHandler) handleSync(c *gin.Context, run func(c *gin.Context, user *models.User, consent *models.Consent, accessToken string) (int, error)) {
	var req models.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	consent, err := h.loadOwnedConsent(c, req.ConsentID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.consents.EnsureActive(consent, true); err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.EnsureValidToken(c.Request.Context(), consent)
	if err != nil {
		respondError(c, err)
		return
	}
	if token == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no token issued for this consent"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), consent.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := run(c, user, consent, token.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SyncResponse{Synced: count})
}

// errOwnership est traité à part : un mismatch d'utilisateur vaut 403, pas 409.
var errOwnership = errors.New("consent does not belong to this user")

func (h *OpenBankingHandler) loadOwnedConsent(c *gin.Context, providerConsentID, userID string) (*models.Consent, error) {
	consent, err := h.store.GetConsentByProviderID(c.Request.Context(), providerConsentID)
	if err != nil {
		return nil, err
	}
	if userID != "" && userID != consent.UserID {
		return nil, errOwnership
	}
	return consent, nil
}
