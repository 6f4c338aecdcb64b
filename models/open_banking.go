package models

import "time"

// Request/response schemas for the open-banking routes.

type ConsentCreateRequest struct {
	UserID         string   `json:"user_id"`
	UserExternalID string   `json:"user_external_id"`
	Email          string   `json:"email"`
	RedirectURI    string   `json:"redirect_uri" binding:"required"`
	Scopes         []string `json:"scopes"`
}

type ConsentCreateResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ConsentID        string     `json:"consent_id"`
	Status           string     `json:"status"`
	AuthorizationURL string     `json:"authorization_url,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type ConsentStatusResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ConsentID    string     `json:"consent_id"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

type AuthorizationCallbackRequest struct {
	ConsentID         string `json:"consent_id" binding:"required"`
	AuthorizationCode string `json:"code"`
	RedirectURI       string `json:"redirect_uri"`
	UserID            string `json:"user_id"`
}

type TokenRefreshRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ConsentID string `json:"consent_id" binding:"required"`
}

type TokenResponse struct {
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`
	Scope                string     `json:"scope,omitempty"`
	TokenType            string     `json:"token_type,omitempty"`
}

type SyncRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ConsentID string `json:"consent_id" binding:"required"`
}

type SyncResponse struct {
	Synced int `json:"synced"`
}

type SendVerificationCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SendVerificationCodeResponse struct {
	MaskedEmail      string `json:"masked_email"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type VerifyCodeResponse struct {
	Verified    bool   `json:"verified"`
	AccessToken string `json:"access_token,omitempty"`
}
