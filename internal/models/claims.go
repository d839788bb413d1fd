package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the signed claim set carried by an access token. Subject is
// the user id; role, org and scopes bind the token to the membership that was
// resolved at login time.
type AccessClaims struct {
	Email  string   `json:"email"`
	Role   string   `json:"role"`
	OrgID  string   `json:"org_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}
