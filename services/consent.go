package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"momali-api/models"
	"momali-api/providers"
	"momali-api/store"
)

// ConsentService owns the consent state machine: pending -> authorized ->
// revoked, with expiry derived from the expiry timestamp rather than stored
// as a status.
type ConsentService struct {
	store    store.Store
	provider providers.Provider

	now func() time.Time
}

func NewConsentService(st store.Store, provider providers.Provider) *ConsentService {
	return &ConsentService{store: st, provider: provider, now: time.Now}
}

// GetOrCreateUser resolves the owning user by id, then external id, then
// email; the first match wins. A new user is created when nothing matches.
func (s *ConsentService) GetOrCreateUser(ctx context.Context, userID, externalID, email string) (*models.User, error) {
	if userID != "" {
		if user, err := s.store.GetUserByID(ctx, userID); err == nil {
			return user, nil
		} else if err != store.ErrNotFound {
			return nil, err
		}
	}
	if externalID != "" {
		if user, err := s.store.GetUserByExternalID(ctx, externalID); err == nil {
			return user, nil
		} else if err != store.ErrNotFound {
			return nil, err
		}
	}
	if email != "" {
		if user, err := s.store.GetUserByEmail(ctx, email); err == nil {
			return user, nil
		} else if err != store.ErrNotFound {
			return nil, err
		}
	}

	user := &models.User{Email: email, ExternalID: externalID}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateConsent registers a consent at the provider and persists it. The
// returned string is the provider's authorization URL for the end user.
func (s *ConsentService) CreateConsent(ctx context.Context, userID, externalID, email, redirectURI string, scopes []string) (*models.Consent, string, error) {
	if userID == "" && externalID == "" && email == "" {
		return nil, "", fmt.Errorf("%w: user_id or user_external_id or email is required", ErrValidation)
	}

	user, err := s.GetOrCreateUser(ctx, userID, externalID, email)
	if err != nil {
		return nil, "", err
	}

	response, err := s.provider.CreateConsent(ctx, redirectURI, scopes)
	if err != nil {
		return nil, "", err
	}

	consent := &models.Consent{
		UserID:      user.ID,
		Provider:    s.provider.Name(),
		ConsentID:   response.ConsentID,
		Status:      response.Status,
		Scopes:      scopes,
		RedirectURI: redirectURI,
		ExpiresAt:   response.ExpiresAt,
	}
	if err := s.store.CreateConsent(ctx, consent); err != nil {
		return nil, "", err
	}

	return consent, response.AuthorizationURL, nil
}

// UpdateConsentStatus re-polls the provider and overwrites status and expiry.
// authorized_at and revoked_at are monotonic: set on the first transition,
// never cleared or reassigned afterwards.
func (s *ConsentService) UpdateConsentStatus(ctx context.Context, consent *models.Consent) (*models.Consent, error) {
	response, err := s.provider.GetConsentStatus(ctx, consent.ConsentID)
	if err != nil {
		return nil, err
	}

	consent.Status = response.Status
	if response.ExpiresAt != nil {
		consent.ExpiresAt = response.ExpiresAt
	}

	now := s.now().UTC()
	if isAuthorizedStatus(response.Status) && consent.AuthorizedAt == nil {
		consent.AuthorizedAt = &now
	}
	if isRevokedStatus(response.Status) && consent.RevokedAt == nil {
		consent.RevokedAt = &now
	}

	if err := s.store.UpdateConsent(ctx, consent); err != nil {
		return nil, err
	}
	return consent, nil
}

// EnsureActive gates every token and sync entry point. A consent is usable
// only when not revoked, not past expiry, and (when required) currently in an
// authorised-equivalent status.
func (s *ConsentService) EnsureActive(consent *models.Consent, requireAuthorized bool) error {
	if consent.RevokedAt != nil {
		return fmt.Errorf("%w: consent has been revoked", ErrConsentInactive)
	}
	if consent.ExpiresAt != nil && consent.ExpiresAt.Before(s.now().UTC()) {
		return fmt.Errorf("%w: consent has expired", ErrConsentInactive)
	}
	if requireAuthorized && !isAuthorizedStatus(consent.Status) {
		return ErrConsentNotAuthorized
	}
	return nil
}

func isAuthorizedStatus(status string) bool {
	switch strings.ToLower(status) {
	case "authorised", "authorized":
		return true
	}
	return false
}

func isRevokedStatus(status string) bool {
	switch strings.ToLower(status) {
	case "revoked", "rejected":
		return true
	}
	return false
}
