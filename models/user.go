package models

import "time"

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EmailVerificationCode stores only the HMAC of the OTP, never the code itself.
type EmailVerificationCode struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	CodeHash    string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	LastSentAt  time.Time  `json:"last_sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
