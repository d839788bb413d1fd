package models

import "time"

// AuditEvent is an append-only record of a security-relevant action. User and
// org references are soft (nullified on delete) so history survives account
// deletion.
type AuditEvent struct {
	ID        string
	Action    string
	UserID    string
	OrgID     string
	IPAddress string
	UserAgent string
	Metadata  map[string]string
	CreatedAt time.Time
}
