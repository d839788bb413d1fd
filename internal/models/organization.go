package models

import "time"

// Organization is the tenant boundary. Slug is unique.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
