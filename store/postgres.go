package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"momali-api/models"
)

// Postgres implements Store on top of database/sql with lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *Postgres) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getUser(ctx, "external_id = $1", externalID)
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

func (s *Postgres) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `
		SELECT id, email, external_id, email_verified, email_verified_at, created_at, updated_at
		FROM users
		WHERE ` + where

	var user models.User
	var email, externalID sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &email, &externalID, &user.EmailVerified,
		&user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.ExternalID = externalID.String
	return &user, nil
}

func (s *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, external_id)
		VALUES ($1, $2)
		RETURNING id, email_verified, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, nullable(user.Email), nullable(user.ExternalID)).Scan(
		&user.ID, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Postgres) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, email_verified_at = $1, updated_at = NOW()
		WHERE id = $2
	`, at, userID)
	return err
}

func (s *Postgres) LatestCode(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	query := `
		SELECT id, user_id, email, code_hash, expires_at, attempts, max_attempts, consumed_at, last_sent_at, created_at
		FROM email_verification_codes
		WHERE email = $1 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var code models.EmailVerificationCode
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&code.ID, &userID, &code.Email, &code.CodeHash, &code.ExpiresAt,
		&code.Attempts, &code.MaxAttempts, &code.ConsumedAt, &code.LastSentAt, &code.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	code.UserID = userID.String
	return &code, nil
}

func (s *Postgres) CountCodesSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_verification_codes
		WHERE email = $1 AND created_at >= $2
	`, email, since).Scan(&count)
	return count, err
}

func (s *Postgres) CreateCode(ctx context.Context, code *models.EmailVerificationCode) error {
	query := `
		INSERT INTO email_verification_codes (user_id, email, code_hash, expires_at, attempts, max_attempts, last_sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return s.db.QueryRowContext(ctx, query,
		nullable(code.UserID), code.Email, code.CodeHash, code.ExpiresAt,
		code.Attempts, code.MaxAttempts, code.LastSentAt,
	).Scan(&code.ID, &code.CreatedAt)
}

func (s *Postgres) IncrementAttempts(ctx context.Context, codeID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_verification_codes SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
	`, codeID)
	return err
}

func (s *Postgres) ConsumeCode(ctx context.Context, codeID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_verification_codes SET consumed_at = $1, updated_at = NOW()
		WHERE id = $2
	`, at, codeID)
	return err
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
