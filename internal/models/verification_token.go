package models

import "time"

// VerificationTokenType discriminates the single-use token flows that share
// one table.
type VerificationTokenType string

const (
	TokenTypeEmailVerify   VerificationTokenType = "email_verify"
	TokenTypePasswordReset VerificationTokenType = "password_reset"
	TokenTypeEmailChange   VerificationTokenType = "email_change"
)

// VerificationToken backs email verification, password reset and email change.
// Email carries the pending new address for email_change tokens. Consumption
// is one-way: used_at is set at most once.
type VerificationToken struct {
	ID        string
	UserID    string
	TokenType VerificationTokenType
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t *VerificationToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

func (t *VerificationToken) Used() bool {
	return t.UsedAt != nil
}
