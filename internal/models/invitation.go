package models

import "time"

// Invitation is an org-scoped single-use invite. AcceptedAt is set once on the
// first accept; later accepts by the invited user are no-ops.
type Invitation struct {
	ID            string
	OrgID         string
	InviterUserID string
	Email         string
	Role          Role
	TokenHash     string
	ExpiresAt     time.Time
	AcceptedAt    *time.Time
	CreatedAt     time.Time
}

func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
