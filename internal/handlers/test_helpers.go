package handlers

import (
	"context"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/services"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, req services.RegisterRequest) (*services.UserResponse, error)
	LoginFunc                func(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	RefreshFunc              func(ctx context.Context, opaqueToken string, meta services.ClientMeta) (*services.AuthResponse, error)
	LogoutFunc               func(ctx context.Context, opaqueToken string) error
	VerifyEmailFunc          func(ctx context.Context, opaqueToken string) error
	ResendVerificationFunc   func(ctx context.Context, email string) error
	RequestPasswordResetFunc func(ctx context.Context, email string) error
	ConfirmPasswordResetFunc func(ctx context.Context, opaqueToken, newPassword string) error
	ChangePasswordFunc       func(ctx context.Context, userID, currentPassword, newPassword string) error
	RequestEmailChangeFunc   func(ctx context.Context, userID, newEmail, currentPassword string) error
	ConfirmEmailChangeFunc   func(ctx context.Context, opaqueToken string) error
}

func testUserResponse() *services.UserResponse {
	return &services.UserResponse{
		ID:          "user_123",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		IsActive:    true,
	}
}

func testAuthResponse() *services.AuthResponse {
	return &services.AuthResponse{
		TokenPair: &services.TokenPair{
			AccessToken:  "access_token",
			RefreshToken: "rt_123.secret",
			TokenType:    "Bearer",
			ExpiresIn:    900,
		},
		OrgID: "org_1",
		Role:  "admin",
		User:  testUserResponse(),
	}
}

func (m *MockAuthService) Register(ctx context.Context, req services.RegisterRequest) (*services.UserResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return testUserResponse(), nil
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return testAuthResponse(), nil
}

func (m *MockAuthService) Refresh(ctx context.Context, opaqueToken string, meta services.ClientMeta) (*services.AuthResponse, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, opaqueToken, meta)
	}
	return testAuthResponse(), nil
}

func (m *MockAuthService) Logout(ctx context.Context, opaqueToken string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, opaqueToken)
	}
	return nil
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, opaqueToken string) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, opaqueToken)
	}
	return nil
}

func (m *MockAuthService) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc != nil {
		return m.ResendVerificationFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.RequestPasswordResetFunc != nil {
		return m.RequestPasswordResetFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) ConfirmPasswordReset(ctx context.Context, opaqueToken, newPassword string) error {
	if m.ConfirmPasswordResetFunc != nil {
		return m.ConfirmPasswordResetFunc(ctx, opaqueToken, newPassword)
	}
	return nil
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword)
	}
	return nil
}

func (m *MockAuthService) RequestEmailChange(ctx context.Context, userID, newEmail, currentPassword string) error {
	if m.RequestEmailChangeFunc != nil {
		return m.RequestEmailChangeFunc(ctx, userID, newEmail, currentPassword)
	}
	return nil
}

func (m *MockAuthService) ConfirmEmailChange(ctx context.Context, opaqueToken string) error {
	if m.ConfirmEmailChangeFunc != nil {
		return m.ConfirmEmailChangeFunc(ctx, opaqueToken)
	}
	return nil
}

// MockAbuseLimiter implements AbuseLimiter for testing
type MockAbuseLimiter struct {
	AllowLoginFunc         func(ctx context.Context, email, ip string) error
	AllowRegisterFunc      func(ctx context.Context, ip string) error
	AllowPasswordResetFunc func(ctx context.Context, ip string) error
}

func (m *MockAbuseLimiter) AllowLogin(ctx context.Context, email, ip string) error {
	if m.AllowLoginFunc != nil {
		return m.AllowLoginFunc(ctx, email, ip)
	}
	return nil
}

func (m *MockAbuseLimiter) AllowRegister(ctx context.Context, ip string) error {
	if m.AllowRegisterFunc != nil {
		return m.AllowRegisterFunc(ctx, ip)
	}
	return nil
}

func (m *MockAbuseLimiter) AllowPasswordReset(ctx context.Context, ip string) error {
	if m.AllowPasswordResetFunc != nil {
		return m.AllowPasswordResetFunc(ctx, ip)
	}
	return nil
}

// MockOAuthService implements OAuthServiceInterface for testing
type MockOAuthService struct {
	AuthorizationURLFunc func(ctx context.Context, providerName, redirectURI string) (*services.AuthorizationResponse, error)
	CallbackFunc         func(ctx context.Context, providerName, code, state string, meta services.ClientMeta) (*services.AuthResponse, error)
}

func (m *MockOAuthService) AuthorizationURL(ctx context.Context, providerName, redirectURI string) (*services.AuthorizationResponse, error) {
	if m.AuthorizationURLFunc != nil {
		return m.AuthorizationURLFunc(ctx, providerName, redirectURI)
	}
	return &services.AuthorizationResponse{
		AuthorizationURL: "https://provider.example.com/authorize?state=abc",
		State:            "abc",
	}, nil
}

func (m *MockOAuthService) Callback(ctx context.Context, providerName, code, state string, meta services.ClientMeta) (*services.AuthResponse, error) {
	if m.CallbackFunc != nil {
		return m.CallbackFunc(ctx, providerName, code, state, meta)
	}
	return testAuthResponse(), nil
}

// MockOrgService implements OrgServiceInterface for testing
type MockOrgService struct {
	CreateOrgFunc        func(ctx context.Context, creatorUserID, name, slug string) (*services.OrgResponse, error)
	ListUserOrgsFunc     func(ctx context.Context, userID string) ([]*services.OrgResponse, error)
	ListMembersFunc      func(ctx context.Context, orgID, requesterUserID string) ([]*services.MemberResponse, error)
	InviteFunc           func(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error)
	AcceptInvitationFunc func(ctx context.Context, opaqueToken, userID, userEmail string) (*services.OrgResponse, error)
	ListInvitationsFunc  func(ctx context.Context, orgID string) ([]*services.InvitationResponse, error)
}

func testOrgResponse() *services.OrgResponse {
	return &services.OrgResponse{
		ID:       "org_1",
		Name:     "Acme",
		Slug:     "acme",
		IsActive: true,
		Role:     "admin",
	}
}

func (m *MockOrgService) CreateOrg(ctx context.Context, creatorUserID, name, slug string) (*services.OrgResponse, error) {
	if m.CreateOrgFunc != nil {
		return m.CreateOrgFunc(ctx, creatorUserID, name, slug)
	}
	return testOrgResponse(), nil
}

func (m *MockOrgService) ListUserOrgs(ctx context.Context, userID string) ([]*services.OrgResponse, error) {
	if m.ListUserOrgsFunc != nil {
		return m.ListUserOrgsFunc(ctx, userID)
	}
	return []*services.OrgResponse{testOrgResponse()}, nil
}

func (m *MockOrgService) ListMembers(ctx context.Context, orgID, requesterUserID string) ([]*services.MemberResponse, error) {
	if m.ListMembersFunc != nil {
		return m.ListMembersFunc(ctx, orgID, requesterUserID)
	}
	return []*services.MemberResponse{{UserID: "user_123", Role: "admin"}}, nil
}

func (m *MockOrgService) Invite(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error) {
	if m.InviteFunc != nil {
		return m.InviteFunc(ctx, orgID, inviterUserID, email, role)
	}
	return &services.InvitationResponse{ID: "inv_1", OrgID: orgID, Email: email, Role: string(role)}, nil
}

func (m *MockOrgService) AcceptInvitation(ctx context.Context, opaqueToken, userID, userEmail string) (*services.OrgResponse, error) {
	if m.AcceptInvitationFunc != nil {
		return m.AcceptInvitationFunc(ctx, opaqueToken, userID, userEmail)
	}
	return testOrgResponse(), nil
}

func (m *MockOrgService) ListInvitations(ctx context.Context, orgID string) ([]*services.InvitationResponse, error) {
	if m.ListInvitationsFunc != nil {
		return m.ListInvitationsFunc(ctx, orgID)
	}
	return []*services.InvitationResponse{}, nil
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetProfileFunc    func(ctx context.Context, userID string) (*services.ProfileResponse, error)
	UpdateProfileFunc func(ctx context.Context, userID string, req services.UpdateProfileRequest) (*services.UserResponse, error)
	DeactivateFunc    func(ctx context.Context, userID string) error
	ListUsersFunc     func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
}

func (m *MockUserService) GetProfile(ctx context.Context, userID string) (*services.ProfileResponse, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return &services.ProfileResponse{
		UserResponse:    testUserResponse(),
		LinkedProviders: []string{},
	}, nil
}

func (m *MockUserService) UpdateProfile(ctx context.Context, userID string, req services.UpdateProfileRequest) (*services.UserResponse, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, userID, req)
	}
	return testUserResponse(), nil
}

func (m *MockUserService) Deactivate(ctx context.Context, userID string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, userID)
	}
	return nil
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, limit, offset)
	}
	return []*services.UserResponse{testUserResponse()}, nil
}

// MockAuditQuery implements AuditQueryInterface for testing
type MockAuditQuery struct {
	ListByUserFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error)
}

func (m *MockAuditQuery) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditEvent{}, nil
}
