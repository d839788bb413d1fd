package models

import (
	"time"
)

// User is the identity record. NormalizedEmail is the unique lookup key;
// Email keeps the display form the user typed.
type User struct {
	ID                  string
	Email               string
	NormalizedEmail     string
	DisplayName         string
	AvatarURL           string
	Locale              string
	Timezone            string
	IsActive            bool
	IsVerified          bool
	CustomFields        map[string]any
	CustomSchemaVersion int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
