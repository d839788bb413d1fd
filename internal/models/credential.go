package models

import "time"

// Credential holds the password hash and lockout state, exactly one per user.
// OAuth-only users get a credential with a random unusable password so the
// schema stays uniform.
type Credential struct {
	UserID              string
	PasswordHash        string
	PasswordChangedAt   *time.Time
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the credential is under an active lockout at now.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockoutUntil != nil && now.Before(*c.LockoutUntil)
}
