package models

import "time"

// Consent is one authorization grant at one provider. Status is whatever the
// provider reports; authorized_at/revoked_at are set on first transition and
// never cleared afterwards.
type Consent struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     string     `json:"provider"`
	ConsentID    string     `json:"consent_id"`
	Status       string     `json:"status"`
	Scopes       []string   `json:"scopes"`
	RedirectURI  string     `json:"redirect_uri,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Token is the live credential set for a (consent, provider) pair. Exactly one
// row exists per pair; writes go through an upsert, never an insert.
type Token struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	ConsentID             string     `json:"consent_id"`
	Provider              string     `json:"provider"`
	AccessToken           string     `json:"-"`
	RefreshTokenEncrypted string     `json:"-"`
	RefreshTokenHash      string     `json:"-"`
	TokenType             string     `json:"token_type,omitempty"`
	Scope                 string     `json:"scope,omitempty"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	IssuedAt              time.Time  `json:"issued_at"`
	RevokedAt             *time.Time `json:"revoked_at,omitempty"`
	RotatedAt             *time.Time `json:"rotated_at,omitempty"`
}
