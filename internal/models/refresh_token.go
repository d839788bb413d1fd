package models

import "time"

// RefreshToken is the persisted half of an opaque refresh token. The record id
// is the clear-text lookup key; only the hash of the random secret is stored.
// Revocation is a tombstone, rotation revokes the old row and inserts a new one.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}
