package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orgServiceMocks struct {
	orgs        *MockOrgRepository
	memberships *MockMembershipRepository
	invitations *MockInvitationRepository
	email       *MockEmailSender
	audit       *MockAuditRecorder
}

func newOrgService(m *orgServiceMocks) *OrgService {
	if m.orgs == nil {
		m.orgs = &MockOrgRepository{}
	}
	if m.memberships == nil {
		m.memberships = &MockMembershipRepository{}
	}
	if m.invitations == nil {
		m.invitations = &MockInvitationRepository{}
	}
	if m.email == nil {
		m.email = &MockEmailSender{}
	}
	if m.audit == nil {
		m.audit = &MockAuditRecorder{}
	}

	return NewOrgService(
		m.orgs, m.memberships, m.invitations, m.email, m.audit,
		&MockTxRunner{}, testLogger(), testAuthConfig(),
	)
}

func adminMembership(userID, orgID string) *models.Membership {
	return &models.Membership{UserID: userID, OrgID: orgID, Role: models.RoleAdmin}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Acme   Corp  ", "acme-corp"},
		{"ACME!!!", "acme"},
		{"a_b.c", "a-b-c"},
		{"---", ""},
		{"café", "caf"},
		{"already-fine-slug", "already-fine-slug"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "Slugify(%q)", tt.in)
	}
}

func TestCreateOrg(t *testing.T) {
	var createdMembership *models.Membership
	m := &orgServiceMocks{
		memberships: &MockMembershipRepository{
			CreateFunc: func(ctx context.Context, membership *models.Membership) (bool, error) {
				createdMembership = membership
				return true, nil
			},
		},
	}
	svc := newOrgService(m)

	resp, err := svc.CreateOrg(context.Background(), "user_123", "Acme Corp", "")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", resp.Name)
	assert.Equal(t, "acme-corp", resp.Slug)
	assert.Equal(t, "admin", resp.Role)

	require.NotNil(t, createdMembership)
	assert.Equal(t, "user_123", createdMembership.UserID)
	assert.Equal(t, models.RoleAdmin, createdMembership.Role)

	require.NotEmpty(t, m.audit.Events)
	assert.Equal(t, "org.created", m.audit.Events[0].Action)
}

func TestCreateOrg_ExplicitSlugNormalized(t *testing.T) {
	svc := newOrgService(&orgServiceMocks{})

	resp, err := svc.CreateOrg(context.Background(), "user_123", "Acme Corp", "My Team!")
	require.NoError(t, err)
	assert.Equal(t, "my-team", resp.Slug)
}

func TestCreateOrg_SlugConflict(t *testing.T) {
	m := &orgServiceMocks{
		orgs: &MockOrgRepository{
			CreateFunc: func(ctx context.Context, org *models.Organization) (*models.Organization, error) {
				return nil, models.ErrOrgSlugExists
			},
		},
	}
	svc := newOrgService(m)

	_, err := svc.CreateOrg(context.Background(), "user_123", "Acme Corp", "")
	assert.True(t, errors.Is(err, models.ErrOrgSlugExists))
}

func TestCreateOrg_Invalid(t *testing.T) {
	svc := newOrgService(&orgServiceMocks{})

	_, err := svc.CreateOrg(context.Background(), "user_123", "   ", "")
	var modelErr *models.Error
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "org_name_invalid", modelErr.Code)

	_, err = svc.CreateOrg(context.Background(), "user_123", "!!!", "")
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "org_slug_invalid", modelErr.Code)
}

func TestListUserOrgs(t *testing.T) {
	m := &orgServiceMocks{
		memberships: &MockMembershipRepository{
			ListUserOrganizationsFunc: func(ctx context.Context, userID string) ([]*models.UserOrganization, error) {
				return []*models.UserOrganization{
					{
						Organization: models.Organization{ID: "org_1", Name: "Acme", Slug: "acme", IsActive: true},
						Role:         models.RoleAdmin,
					},
					{
						Organization: models.Organization{ID: "org_2", Name: "Beta", Slug: "beta", IsActive: true},
						Role:         models.RoleReadonly,
					},
				}, nil
			},
		},
	}
	svc := newOrgService(m)

	orgs, err := svc.ListUserOrgs(context.Background(), "user_123")
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "org_1", orgs[0].ID)
	assert.Equal(t, "admin", orgs[0].Role)
	assert.Equal(t, "readonly", orgs[1].Role)
}

func TestListMembers(t *testing.T) {
	joined := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	m := &orgServiceMocks{
		memberships: &MockMembershipRepository{
			GetByUserAndOrgFunc: func(ctx context.Context, userID, orgID string) (*models.Membership, error) {
				return &models.Membership{UserID: userID, OrgID: orgID, Role: models.RoleReadonly}, nil
			},
			ListByOrgFunc: func(ctx context.Context, orgID string) ([]*models.Membership, error) {
				return []*models.Membership{
					{UserID: "user_123", OrgID: orgID, Role: models.RoleAdmin, CreatedAt: joined},
					{UserID: "user_456", OrgID: orgID, Role: models.RoleMember, CreatedAt: joined},
				}, nil
			},
		},
	}
	svc := newOrgService(m)

	members, err := svc.ListMembers(context.Background(), "org_1", "user_456")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "user_123", members[0].UserID)
	assert.Equal(t, "admin", members[0].Role)
	assert.Equal(t, joined.Format(time.RFC3339), members[1].JoinedAt)
}

func TestListMembers_NonMemberForbidden(t *testing.T) {
	var listed bool
	m := &orgServiceMocks{
		memberships: &MockMembershipRepository{
			GetByUserAndOrgFunc: func(ctx context.Context, userID, orgID string) (*models.Membership, error) {
				return nil, models.ErrNotFound
			},
			ListByOrgFunc: func(ctx context.Context, orgID string) ([]*models.Membership, error) {
				listed = true
				return []*models.Membership{}, nil
			},
		},
	}
	svc := newOrgService(m)

	_, err := svc.ListMembers(context.Background(), "org_1", "user_outsider")
	assert.True(t, errors.Is(err, models.ErrForbidden))
	assert.False(t, listed)
}

func TestInvite(t *testing.T) {
	var stored *models.Invitation
	m := &orgServiceMocks{
		memberships: &MockMembershipRepository{
			GetByUserAndOrgFunc: func(ctx context.Context, userID, orgID string) (*models.Membership, error) {
				return adminMembership(userID, orgID), nil
			},
		},
		orgs: &MockOrgRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Organization, error) {
				return &models.Organization{ID: id, Name: "Acme", Slug: "acme", IsActive: true}, nil
			},
		},
		invitations: &MockInvitationRepository{
			CreateFunc: func(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error) {
				invitation.ID = "inv_1"
				invitation.CreatedAt = time.Now()
				stored = invitation
				return invitation, nil
			},
		},
	}
	svc := newOrgService(m)

	resp, err := svc.Invite(context.Background(), "org_1", "user_admin", "Bob@Example.com", models.RoleMember)
	require.NoError(t, err)

	assert.Equal(t, "inv_1", resp.ID)
	assert.Equal(t, "bob@example.com", resp.Email)
	assert.Equal(t, "member", resp.Role)

	// Mail carries an opaque token whose secret hashes to the stored hash
	require.Equal(t, []string{"bob@example.com"}, m.email.InvitationSent)
	id, secret, err := auth.SplitToken(m.email.LastToken)
	require.NoError(t, err)
	assert.Equal(t, "inv_1", id)
	require.NotNil(t, stored)
	assert.True(t, auth.VerifySecret(secret, stored.TokenHash))
}

func TestInvite_NonAdminForbidden(t *testing.T) {
	tests := []struct {
		name       string
		membership *models.Membership
		lookupErr  error
	}{
		{"member role", &models.Membership{Role: models.RoleMember}, nil},
		{"readonly role", &models.Membership{Role: models.RoleReadonly}, nil},
		{"not a member", nil, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &orgServiceMocks{
				memberships: &MockMembershipRepository{
					GetByUserAndOrgFunc: func(ctx context.Context, userID, orgID string) (*models.Membership, error) {
						return tt.membership, tt.lookupErr
					},
				},
			}
			svc := newOrgService(m)

			_, err := svc.Invite(context.Background(), "org_1", "user_x", "bob@example.com", models.RoleMember)
			assert.True(t, errors.Is(err, models.ErrForbidden))
		})
	}
}

func TestInvite_InvalidRole(t *testing.T) {
	svc := newOrgService(&orgServiceMocks{})

	_, err := svc.Invite(context.Background(), "org_1", "user_admin", "bob@example.com", models.Role("owner"))
	var modelErr *models.Error
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "invalid_role", modelErr.Code)
}

// issuedInvitation builds a live invitation and its opaque token form.
func issuedInvitation(t *testing.T, id, email string, role models.Role, expiresIn time.Duration) (*models.Invitation, string) {
	t.Helper()
	secret, err := auth.NewSecret()
	require.NoError(t, err)

	invitation := &models.Invitation{
		ID:            id,
		OrgID:         "org_1",
		InviterUserID: "user_admin",
		Email:         email,
		Role:          role,
		TokenHash:     auth.HashSecret(secret),
		ExpiresAt:     time.Now().Add(expiresIn),
	}
	return invitation, auth.FormatToken(id, secret)
}

func TestAcceptInvitation(t *testing.T) {
	invitation, opaque := issuedInvitation(t, "inv_1", "bob@example.com", models.RoleMember, time.Hour)

	var createdMembership *models.Membership
	m := &orgServiceMocks{
		invitations: &MockInvitationRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Invitation, error) {
				if id == invitation.ID {
					return invitation, nil
				}
				return nil, models.ErrNotFound
			},
		},
		memberships: &MockMembershipRepository{
			CreateFunc: func(ctx context.Context, membership *models.Membership) (bool, error) {
				createdMembership = membership
				return true, nil
			},
		},
		orgs: &MockOrgRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Organization, error) {
				return &models.Organization{ID: id, Name: "Acme", Slug: "acme", IsActive: true}, nil
			},
		},
	}
	svc := newOrgService(m)

	// Email match is case-insensitive
	resp, err := svc.AcceptInvitation(context.Background(), opaque, "user_bob", "Bob@Example.com")
	require.NoError(t, err)

	assert.Equal(t, "org_1", resp.ID)
	assert.Equal(t, "member", resp.Role)

	require.NotNil(t, createdMembership)
	assert.Equal(t, "user_bob", createdMembership.UserID)
	assert.Equal(t, models.RoleMember, createdMembership.Role)
}

func TestAcceptInvitation_Failures(t *testing.T) {
	invitation, opaque := issuedInvitation(t, "inv_1", "bob@example.com", models.RoleMember, time.Hour)
	expired, expiredOpaque := issuedInvitation(t, "inv_expired", "bob@example.com", models.RoleMember, -time.Hour)

	m := &orgServiceMocks{
		invitations: &MockInvitationRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Invitation, error) {
				switch id {
				case invitation.ID:
					return invitation, nil
				case expired.ID:
					return expired, nil
				}
				return nil, models.ErrNotFound
			},
		},
	}
	svc := newOrgService(m)
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		email   string
		wantErr error
	}{
		{"malformed", "no-delimiter", "bob@example.com", models.ErrInviteInvalid},
		{"unknown id", "inv_unknown.c2VjcmV0", "bob@example.com", models.ErrInviteInvalid},
		{"wrong secret", invitation.ID + ".d3Jvbmc", "bob@example.com", models.ErrInviteInvalid},
		{"expired", expiredOpaque, "bob@example.com", models.ErrInviteExpired},
		{"email mismatch", opaque, "mallory@example.com", models.ErrInviteEmailMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AcceptInvitation(ctx, tt.token, "user_x", tt.email)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestAcceptInvitation_Idempotent(t *testing.T) {
	invitation, opaque := issuedInvitation(t, "inv_1", "bob@example.com", models.RoleMember, time.Hour)
	acceptedAt := time.Now().Add(-time.Minute)
	invitation.AcceptedAt = &acceptedAt

	m := &orgServiceMocks{
		invitations: &MockInvitationRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Invitation, error) {
				return invitation, nil
			},
			MarkAcceptedFunc: func(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
				// Already stamped, the conditional update matches no row
				return false, nil
			},
		},
		memberships: &MockMembershipRepository{
			CreateFunc: func(ctx context.Context, membership *models.Membership) (bool, error) {
				// Membership row already exists
				return false, nil
			},
		},
		orgs: &MockOrgRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Organization, error) {
				return &models.Organization{ID: id, Name: "Acme", Slug: "acme", IsActive: true}, nil
			},
		},
	}
	svc := newOrgService(m)

	resp, err := svc.AcceptInvitation(context.Background(), opaque, "user_bob", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "member", resp.Role)
}

func TestListInvitations(t *testing.T) {
	acceptedAt := time.Now()
	m := &orgServiceMocks{
		invitations: &MockInvitationRepository{
			ListByOrgFunc: func(ctx context.Context, orgID string) ([]*models.Invitation, error) {
				return []*models.Invitation{
					{ID: "inv_1", OrgID: orgID, Email: "a@example.com", Role: models.RoleMember,
						ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()},
					{ID: "inv_2", OrgID: orgID, Email: "b@example.com", Role: models.RoleReadonly,
						ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(), AcceptedAt: &acceptedAt},
				}, nil
			},
		},
	}
	svc := newOrgService(m)

	invitations, err := svc.ListInvitations(context.Background(), "org_1")
	require.NoError(t, err)
	require.Len(t, invitations, 2)
	assert.Empty(t, invitations[0].AcceptedAt)
	assert.NotEmpty(t, invitations[1].AcceptedAt)
}
