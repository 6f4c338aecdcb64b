package services

import (
	"context"
	"time"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/store"
	"momali-api/utils"
)

// TokenService manages the single live token per (consent, provider):
// exchange, proactive refresh, and the rotation-aware upsert.
type TokenService struct {
	store        store.Store
	provider     providers.Provider
	cipher       *utils.TokenCipher
	safetyWindow time.Duration

	now func() time.Time
}

func NewTokenService(st store.Store, provider providers.Provider, cipher *utils.TokenCipher, safetyWindow time.Duration) *TokenService {
	return &TokenService{
		store:        st,
		provider:     provider,
		cipher:       cipher,
		safetyWindow: safetyWindow,
		now:          time.Now,
	}
}

// ExchangeToken trades the authorization artifact for a token and marks the
// consent authorized if it is not already.
func (s *TokenService) ExchangeToken(ctx context.Context, consent *models.Consent, authorizationCode, redirectURI string) (*models.Token, error) {
	response, err := s.provider.ExchangeToken(ctx, consent.ConsentID, authorizationCode, redirectURI)
	if err != nil {
		return nil, err
	}

	consent.Status = "authorized"
	if consent.AuthorizedAt == nil {
		now := s.now().UTC()
		consent.AuthorizedAt = &now
	}
	if err := s.store.UpdateConsent(ctx, consent); err != nil {
		return nil, err
	}

	return s.upsertToken(ctx, consent.UserID, consent.ID, consent.Provider, response, nil)
}

// RefreshToken decrypts the stored refresh credential and replaces the token
// row with the provider's response.
func (s *TokenService) RefreshToken(ctx context.Context, token *models.Token) (*models.Token, error) {
	refreshPlain, err := s.cipher.Decrypt(token.RefreshTokenEncrypted)
	if err != nil {
		return nil, err
	}

	response, err := s.provider.RefreshToken(ctx, refreshPlain)
	if err != nil {
		return nil, err
	}

	return s.upsertToken(ctx, token.UserID, token.ConsentID, token.Provider, response, token)
}

// GetActiveToken returns the current token for a consent, or nil when none
// was ever issued.
func (s *TokenService) GetActiveToken(ctx context.Context, consent *models.Consent) (*models.Token, error) {
	token, err := s.store.GetTokenByConsent(ctx, consent.ID, consent.Provider)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// EnsureValidToken refreshes the consent's token first when its known expiry
// falls inside the safety window. Tokens without a known expiry are returned
// as-is.
func (s *TokenService) EnsureValidToken(ctx context.Context, consent *models.Consent) (*models.Token, error) {
	token, err := s.GetActiveToken(ctx, consent)
	if err != nil || token == nil {
		return token, err
	}

	if token.ExpiresAt != nil {
		cutoff := s.now().UTC().Add(s.safetyWindow)
		if !token.ExpiresAt.After(cutoff) {
			return s.RefreshToken(ctx, token)
		}
	}
	return token, nil
}

// upsertToken applies the rotation rules and writes the row atomically on
// (consent, provider). The refresh credential falls forward from the previous
// token when the response omits one; rotated_at moves only when the
// credential hash actually changed.
func (s *TokenService) upsertToken(ctx context.Context, userID, consentRowID, provider string, response *providers.TokenResult, previous *models.Token) (*models.Token, error) {
	var encryptedRefresh, refreshHash string
	switch {
	case response.RefreshToken != "":
		encrypted, err := s.cipher.Encrypt(response.RefreshToken)
		if err != nil {
			return nil, err
		}
		encryptedRefresh = encrypted
		refreshHash = utils.HashToken(response.RefreshToken)
	case previous != nil:
		encryptedRefresh = previous.RefreshTokenEncrypted
		refreshHash = previous.RefreshTokenHash
	default:
		return nil, ErrMissingRefreshCredential
	}

	var rotatedAt *time.Time
	if previous != nil {
		if previous.RefreshTokenHash != refreshHash {
			now := s.now().UTC()
			rotatedAt = &now
		} else {
			rotatedAt = previous.RotatedAt
		}
	}

	token := &models.Token{
		UserID:                userID,
		ConsentID:             consentRowID,
		Provider:              provider,
		AccessToken:           response.AccessToken,
		RefreshTokenEncrypted: encryptedRefresh,
		RefreshTokenHash:      refreshHash,
		TokenType:             response.TokenType,
		Scope:                 response.Scope,
		ExpiresAt:             response.ExpiresAt,
		IssuedAt:              response.IssuedAt,
		RevokedAt:             nil,
		RotatedAt:             rotatedAt,
	}
	return s.store.UpsertToken(ctx, token)
}
