package models

// Role is the coarse per-membership access level.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMember   Role = "member"
	RoleReadonly Role = "readonly"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleReadonly:
		return true
	}
	return false
}

// Scope constants define all valid capability scopes in the system
const (
	ScopeProfileRead      = "profile:read"
	ScopeProfileWrite     = "profile:write"
	ScopeOrgsRead         = "orgs:read"
	ScopeOrgsWrite        = "orgs:write"
	ScopeInvitationsWrite = "invitations:write"
	ScopeUsersRead        = "users:read"
	ScopeUsersWrite       = "users:write"
	ScopeAdminUsersRead   = "admin:users:read"
	ScopeAdminUsersWrite  = "admin:users:write"
)

// roleScopes is the static role→scope table. Admin strictly contains member,
// which strictly contains readonly.
var roleScopes = map[Role][]string{
	RoleAdmin: {
		ScopeProfileRead,
		ScopeProfileWrite,
		ScopeOrgsRead,
		ScopeOrgsWrite,
		ScopeInvitationsWrite,
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeAdminUsersRead,
		ScopeAdminUsersWrite,
	},
	RoleMember: {
		ScopeProfileRead,
		ScopeProfileWrite,
		ScopeOrgsRead,
		ScopeUsersRead,
	},
	RoleReadonly: {
		ScopeProfileRead,
		ScopeOrgsRead,
		ScopeUsersRead,
	},
}

// ResolveScopes maps a role to its capability scopes. Pure lookup, unknown
// roles resolve to no scopes.
func ResolveScopes(role Role) []string {
	scopes, ok := roleScopes[role]
	if !ok {
		return nil
	}
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out
}

// HasScope checks if a scopes list contains a required scope.
func HasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}
