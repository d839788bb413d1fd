package models

import "time"

// ExternalIdentity links a user to a third-party OAuth identity. The
// (provider, provider_user_id) pair is unique; rows are never deleted by
// normal flows.
type ExternalIdentity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	Email          string
	CreatedAt      time.Time
}
