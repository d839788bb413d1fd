package models

import (
	"testing"
)

func TestResolveScopes(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected []string
	}{
		{
			name: "admin gets full scope set",
			role: RoleAdmin,
			expected: []string{
				ScopeProfileRead, ScopeProfileWrite, ScopeOrgsRead, ScopeOrgsWrite,
				ScopeInvitationsWrite, ScopeUsersRead, ScopeUsersWrite,
				ScopeAdminUsersRead, ScopeAdminUsersWrite,
			},
		},
		{
			name:     "member gets read/write profile but no org write",
			role:     RoleMember,
			expected: []string{ScopeProfileRead, ScopeProfileWrite, ScopeOrgsRead, ScopeUsersRead},
		},
		{
			name:     "readonly gets read-only scopes",
			role:     RoleReadonly,
			expected: []string{ScopeProfileRead, ScopeOrgsRead, ScopeUsersRead},
		},
		{
			name:     "unknown role gets nothing",
			role:     Role("owner"),
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveScopes(tt.role)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d scopes, got %d", len(tt.expected), len(got))
			}
			for i, scope := range tt.expected {
				if got[i] != scope {
					t.Errorf("scope %d: expected %q, got %q", i, scope, got[i])
				}
			}
		})
	}
}

func TestScopeHierarchy(t *testing.T) {
	admin := ResolveScopes(RoleAdmin)
	member := ResolveScopes(RoleMember)
	readonly := ResolveScopes(RoleReadonly)

	for _, scope := range member {
		if !HasScope(admin, scope) {
			t.Errorf("admin missing member scope %q", scope)
		}
	}
	for _, scope := range readonly {
		if !HasScope(member, scope) {
			t.Errorf("member missing readonly scope %q", scope)
		}
	}
}

func TestHasScope(t *testing.T) {
	scopes := []string{ScopeProfileRead, ScopeOrgsRead}

	if !HasScope(scopes, ScopeProfileRead) {
		t.Error("expected profile:read to be present")
	}
	if HasScope(scopes, ScopeOrgsWrite) {
		t.Error("did not expect orgs:write to be present")
	}
	if HasScope(nil, ScopeProfileRead) {
		t.Error("empty scope set should not contain anything")
	}
}
