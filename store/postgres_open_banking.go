package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"momali-api/models"

	"github.com/lib/pq"
)

func (s *Postgres) CreateConsent(ctx context.Context, consent *models.Consent) error {
	query := `
		INSERT INTO open_banking_consents (user_id, provider, consent_id, status, scopes, redirect_uri, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		consent.UserID, consent.Provider, consent.ConsentID, consent.Status,
		pq.Array(consent.Scopes), nullable(consent.RedirectURI), consent.ExpiresAt,
	).Scan(&consent.ID, &consent.CreatedAt, &consent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create consent: %w", err)
	}
	return nil
}

func (s *Postgres) GetConsentByProviderID(ctx context.Context, providerConsentID string) (*models.Consent, error) {
	query := `
		SELECT id, user_id, provider, consent_id, status, scopes, redirect_uri,
		       expires_at, authorized_at, revoked_at, created_at, updated_at
		FROM open_banking_consents
		WHERE consent_id = $1
	`
	consent, err := scanConsent(s.db.QueryRowContext(ctx, query, providerConsentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return consent, nil
}

func (s *Postgres) UpdateConsent(ctx context.Context, consent *models.Consent) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE open_banking_consents
		SET status = $1, expires_at = $2, authorized_at = $3, revoked_at = $4, updated_at = NOW()
		WHERE id = $5
	`, consent.Status, consent.ExpiresAt, consent.AuthorizedAt, consent.RevokedAt, consent.ID)
	return err
}

func (s *Postgres) ListConsents(ctx context.Context) ([]models.Consent, error) {
	query := `
		SELECT id, user_id, provider, consent_id, status, scopes, redirect_uri,
		       expires_at, authorized_at, revoked_at, created_at, updated_at
		FROM open_banking_consents
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consents []models.Consent
	for rows.Next() {
		consent, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		consents = append(consents, *consent)
	}
	return consents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var consent models.Consent
	var redirectURI sql.NullString
	var scopes pq.StringArray
	err := row.Scan(
		&consent.ID, &consent.UserID, &consent.Provider, &consent.ConsentID,
		&consent.Status, &scopes, &redirectURI,
		&consent.ExpiresAt, &consent.AuthorizedAt, &consent.RevokedAt,
		&consent.CreatedAt, &consent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	consent.Scopes = scopes
	consent.RedirectURI = redirectURI.String
	return &consent, nil
}

func (s *Postgres) GetTokenByConsent(ctx context.Context, consentRowID, provider string) (*models.Token, error) {
	query := `
		SELECT id, user_id, consent_id, provider, access_token, refresh_token_encrypted, refresh_token_hash,
		       token_type, scope, expires_at, issued_at, revoked_at, rotated_at
		FROM open_banking_tokens
		WHERE consent_id = $1 AND provider = $2
	`
	token, err := scanToken(s.db.QueryRowContext(ctx, query, consentRowID, provider))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Postgres) UpsertToken(ctx context.Context, token *models.Token) (*models.Token, error) {
	query := `
		INSERT INTO open_banking_tokens (
			user_id, consent_id, provider, access_token, refresh_token_encrypted, refresh_token_hash,
			token_type, scope, expires_at, issued_at, revoked_at, rotated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (consent_id, provider)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			access_token = EXCLUDED.access_token,
			refresh_token_encrypted = EXCLUDED.refresh_token_encrypted,
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			issued_at = EXCLUDED.issued_at,
			revoked_at = EXCLUDED.revoked_at,
			rotated_at = EXCLUDED.rotated_at,
			updated_at = NOW()
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		token.UserID, token.ConsentID, token.Provider, token.AccessToken,
		token.RefreshTokenEncrypted, token.RefreshTokenHash,
		nullable(token.TokenType), nullable(token.Scope),
		token.ExpiresAt, token.IssuedAt, token.RevokedAt, token.RotatedAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert token: %w", err)
	}
	return token, nil
}

func (s *Postgres) ListExpiringTokens(ctx context.Context, cutoff time.Time) ([]models.Token, error) {
	query := `
		SELECT id, user_id, consent_id, provider, access_token, refresh_token_encrypted, refresh_token_hash,
		       token_type, scope, expires_at, issued_at, revoked_at, rotated_at
		FROM open_banking_tokens
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}
	return tokens, rows.Err()
}

func scanToken(row rowScanner) (*models.Token, error) {
	var token models.Token
	var tokenType, scope sql.NullString
	err := row.Scan(
		&token.ID, &token.UserID, &token.ConsentID, &token.Provider,
		&token.AccessToken, &token.RefreshTokenEncrypted, &token.RefreshTokenHash,
		&tokenType, &scope, &token.ExpiresAt, &token.IssuedAt,
		&token.RevokedAt, &token.RotatedAt,
	)
	if err != nil {
		return nil, err
	}
	token.TokenType = tokenType.String
	token.Scope = scope.String
	return &token, nil
}
