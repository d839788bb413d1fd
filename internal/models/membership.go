package models

import "time"

// Membership binds a user to an organization with exactly one role. The
// (user_id, org_id) pair is unique.
type Membership struct {
	ID        string
	UserID    string
	OrgID     string
	Role      Role
	CreatedAt time.Time
}

// UserOrganization is the joined view returned when listing the organizations
// a user belongs to.
type UserOrganization struct {
	Organization Organization
	Role         Role
	JoinedAt     time.Time
}
