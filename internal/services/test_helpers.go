package services

import (
	"context"
	"time"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/oauth"
	"golang.org/x/oauth2"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	CreateFunc               func(ctx context.Context, user *models.User) (*models.User, error)
	GetByIDFunc              func(ctx context.Context, id string) (*models.User, error)
	GetByNormalizedEmailFunc func(ctx context.Context, normalizedEmail string) (*models.User, error)
	UpdateProfileFunc        func(ctx context.Context, user *models.User) (*models.User, error)
	SetVerifiedFunc          func(ctx context.Context, id string, verified bool) error
	UpdateEmailFunc          func(ctx context.Context, id, email, normalizedEmail string) error
	SetActiveFunc            func(ctx context.Context, id string, active bool) error
	ListFunc                 func(ctx context.Context, limit, offset int) ([]*models.User, error)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = "user_123"
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return user, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*models.User, error) {
	if m.GetByNormalizedEmailFunc != nil {
		return m.GetByNormalizedEmailFunc(ctx, normalizedEmail)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, user *models.User) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	if m.SetVerifiedFunc != nil {
		return m.SetVerifiedFunc(ctx, id, verified)
	}
	return nil
}

func (m *MockUserRepository) UpdateEmail(ctx context.Context, id, email, normalizedEmail string) error {
	if m.UpdateEmailFunc != nil {
		return m.UpdateEmailFunc(ctx, id, email, normalizedEmail)
	}
	return nil
}

func (m *MockUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

// MockCredentialRepository implements CredentialRepository for testing
type MockCredentialRepository struct {
	CreateFunc          func(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	GetByUserIDFunc     func(ctx context.Context, userID string) (*models.Credential, error)
	RegisterFailureFunc func(ctx context.Context, userID string, threshold int, lockoutUntil time.Time) (*models.Credential, error)
	RegisterSuccessFunc func(ctx context.Context, userID string, loginAt time.Time) error
	UpdatePasswordFunc  func(ctx context.Context, userID, passwordHash string) error
}

func (m *MockCredentialRepository) Create(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cred)
	}
	return cred, nil
}

func (m *MockCredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) RegisterFailure(ctx context.Context, userID string, threshold int, lockoutUntil time.Time) (*models.Credential, error) {
	if m.RegisterFailureFunc != nil {
		return m.RegisterFailureFunc(ctx, userID, threshold, lockoutUntil)
	}
	return &models.Credential{UserID: userID, FailedLoginAttempts: 1}, nil
}

func (m *MockCredentialRepository) RegisterSuccess(ctx context.Context, userID string, loginAt time.Time) error {
	if m.RegisterSuccessFunc != nil {
		return m.RegisterSuccessFunc(ctx, userID, loginAt)
	}
	return nil
}

func (m *MockCredentialRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

// MockVerificationTokenRepository implements VerificationTokenRepository for testing
type MockVerificationTokenRepository struct {
	CreateFunc                  func(ctx context.Context, token *models.VerificationToken) (*models.VerificationToken, error)
	GetByIDFunc                 func(ctx context.Context, id string) (*models.VerificationToken, error)
	MarkUsedFunc                func(ctx context.Context, id string, usedAt time.Time) (bool, error)
	InvalidateActiveForUserFunc func(ctx context.Context, userID string, tokenType models.VerificationTokenType, usedAt time.Time) (int64, error)
	DeleteExpiredBeforeFunc     func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockVerificationTokenRepository) Create(ctx context.Context, token *models.VerificationToken) (*models.VerificationToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	token.ID = "vt_123"
	token.CreatedAt = time.Now()
	return token, nil
}

func (m *MockVerificationTokenRepository) GetByID(ctx context.Context, id string) (*models.VerificationToken, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockVerificationTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, usedAt)
	}
	return true, nil
}

func (m *MockVerificationTokenRepository) InvalidateActiveForUser(ctx context.Context, userID string, tokenType models.VerificationTokenType, usedAt time.Time) (int64, error) {
	if m.InvalidateActiveForUserFunc != nil {
		return m.InvalidateActiveForUserFunc(ctx, userID, tokenType, usedAt)
	}
	return 0, nil
}

func (m *MockVerificationTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteExpiredBeforeFunc != nil {
		return m.DeleteExpiredBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockRefreshTokenRepository implements RefreshTokenRepository for testing
type MockRefreshTokenRepository struct {
	CreateFunc              func(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.RefreshToken, error)
	RevokeFunc              func(ctx context.Context, id string, revokedAt time.Time) (bool, error)
	RevokeAllForUserFunc    func(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	TouchLastUsedFunc       func(ctx context.Context, id string, usedAt time.Time) error
	DeleteExpiredBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	if token.ID == "" {
		token.ID = "rt_123"
	}
	token.CreatedAt = time.Now()
	return token, nil
}

func (m *MockRefreshTokenRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id, revokedAt)
	}
	return true, nil
}

func (m *MockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID, revokedAt)
	}
	return 0, nil
}

func (m *MockRefreshTokenRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, id, usedAt)
	}
	return nil
}

func (m *MockRefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteExpiredBeforeFunc != nil {
		return m.DeleteExpiredBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockOrgRepository implements OrgRepository for testing
type MockOrgRepository struct {
	CreateFunc    func(ctx context.Context, org *models.Organization) (*models.Organization, error)
	GetByIDFunc   func(ctx context.Context, id string) (*models.Organization, error)
	GetBySlugFunc func(ctx context.Context, slug string) (*models.Organization, error)
}

func (m *MockOrgRepository) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, org)
	}
	if org.ID == "" {
		org.ID = "org_123"
	}
	org.CreatedAt = time.Now()
	org.UpdatedAt = time.Now()
	return org, nil
}

func (m *MockOrgRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockOrgRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	if m.GetBySlugFunc != nil {
		return m.GetBySlugFunc(ctx, slug)
	}
	return nil, models.ErrNotFound
}

// MockMembershipRepository implements MembershipRepository for testing
type MockMembershipRepository struct {
	CreateFunc                func(ctx context.Context, membership *models.Membership) (bool, error)
	GetByUserAndOrgFunc       func(ctx context.Context, userID, orgID string) (*models.Membership, error)
	FirstForUserFunc          func(ctx context.Context, userID string) (*models.Membership, error)
	ListUserOrganizationsFunc func(ctx context.Context, userID string) ([]*models.UserOrganization, error)
	ListByOrgFunc             func(ctx context.Context, orgID string) ([]*models.Membership, error)
}

func (m *MockMembershipRepository) Create(ctx context.Context, membership *models.Membership) (bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, membership)
	}
	return true, nil
}

func (m *MockMembershipRepository) GetByUserAndOrg(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	if m.GetByUserAndOrgFunc != nil {
		return m.GetByUserAndOrgFunc(ctx, userID, orgID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMembershipRepository) FirstForUser(ctx context.Context, userID string) (*models.Membership, error) {
	if m.FirstForUserFunc != nil {
		return m.FirstForUserFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMembershipRepository) ListUserOrganizations(ctx context.Context, userID string) ([]*models.UserOrganization, error) {
	if m.ListUserOrganizationsFunc != nil {
		return m.ListUserOrganizationsFunc(ctx, userID)
	}
	return []*models.UserOrganization{}, nil
}

func (m *MockMembershipRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Membership, error) {
	if m.ListByOrgFunc != nil {
		return m.ListByOrgFunc(ctx, orgID)
	}
	return []*models.Membership{}, nil
}

// MockInvitationRepository implements InvitationRepository for testing
type MockInvitationRepository struct {
	CreateFunc              func(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.Invitation, error)
	MarkAcceptedFunc        func(ctx context.Context, id string, acceptedAt time.Time) (bool, error)
	ListByOrgFunc           func(ctx context.Context, orgID string) ([]*models.Invitation, error)
	DeleteExpiredBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockInvitationRepository) Create(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, invitation)
	}
	if invitation.ID == "" {
		invitation.ID = "inv_123"
	}
	invitation.CreatedAt = time.Now()
	return invitation, nil
}

func (m *MockInvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockInvitationRepository) MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
	if m.MarkAcceptedFunc != nil {
		return m.MarkAcceptedFunc(ctx, id, acceptedAt)
	}
	return true, nil
}

func (m *MockInvitationRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	if m.ListByOrgFunc != nil {
		return m.ListByOrgFunc(ctx, orgID)
	}
	return []*models.Invitation{}, nil
}

func (m *MockInvitationRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteExpiredBeforeFunc != nil {
		return m.DeleteExpiredBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockExternalIdentityRepository implements ExternalIdentityRepository for testing
type MockExternalIdentityRepository struct {
	CreateFunc               func(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error)
	GetByProviderSubjectFunc func(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error)
	ListByUserIDFunc         func(ctx context.Context, userID string) ([]*models.ExternalIdentity, error)
}

func (m *MockExternalIdentityRepository) Create(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, identity)
	}
	if identity.ID == "" {
		identity.ID = "ident_123"
	}
	identity.CreatedAt = time.Now()
	return identity, nil
}

func (m *MockExternalIdentityRepository) GetByProviderSubject(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error) {
	if m.GetByProviderSubjectFunc != nil {
		return m.GetByProviderSubjectFunc(ctx, provider, providerUserID)
	}
	return nil, models.ErrNotFound
}

func (m *MockExternalIdentityRepository) ListByUserID(ctx context.Context, userID string) ([]*models.ExternalIdentity, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return []*models.ExternalIdentity{}, nil
}

// MockAuditRepository implements AuditRepository for testing
type MockAuditRepository struct {
	InsertFunc     func(ctx context.Context, event *models.AuditEvent) error
	ListByUserFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error)
	ListByOrgFunc  func(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditEvent, error)
}

func (m *MockAuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, event)
	}
	return nil
}

func (m *MockAuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditEvent{}, nil
}

func (m *MockAuditRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditEvent, error) {
	if m.ListByOrgFunc != nil {
		return m.ListByOrgFunc(ctx, orgID, limit, offset)
	}
	return []*models.AuditEvent{}, nil
}

// MockTokenProvider implements TokenProvider for testing
type MockTokenProvider struct {
	IssueFunc               func(ctx context.Context, user *models.User, role models.Role, orgID string, meta ClientMeta) (*TokenPair, error)
	RotateFunc              func(ctx context.Context, opaqueToken string, meta ClientMeta) (string, string, error)
	RevokeFunc              func(ctx context.Context, opaqueToken string) error
	RevokeAllForUserFunc    func(ctx context.Context, userID string) error
	GenerateAccessTokenFunc func(user *models.User, role models.Role, orgID string) (string, int64, error)
}

func (m *MockTokenProvider) Issue(ctx context.Context, user *models.User, role models.Role, orgID string, meta ClientMeta) (*TokenPair, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, user, role, orgID, meta)
	}
	return &TokenPair{
		AccessToken:  "access_token",
		RefreshToken: "rt_123.secret",
		TokenType:    "Bearer",
		ExpiresIn:    900,
	}, nil
}

func (m *MockTokenProvider) Rotate(ctx context.Context, opaqueToken string, meta ClientMeta) (string, string, error) {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, opaqueToken, meta)
	}
	return "rt_456.secret", "user_123", nil
}

func (m *MockTokenProvider) Revoke(ctx context.Context, opaqueToken string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, opaqueToken)
	}
	return nil
}

func (m *MockTokenProvider) RevokeAllForUser(ctx context.Context, userID string) error {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return nil
}

func (m *MockTokenProvider) GenerateAccessToken(user *models.User, role models.Role, orgID string) (string, int64, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(user, role, orgID)
	}
	return "access_token", 900, nil
}

// MockEmailSender implements EmailSender for testing and records sends.
type MockEmailSender struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string) error
	SendEmailChangeEmailFunc   func(ctx context.Context, email, token string) error
	SendInvitationEmailFunc    func(ctx context.Context, email, orgName, token string) error

	VerificationSent  []string
	PasswordResetSent []string
	EmailChangeSent   []string
	InvitationSent    []string
	LastToken         string
}

func (m *MockEmailSender) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.VerificationSent = append(m.VerificationSent, email)
	m.LastToken = token
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.PasswordResetSent = append(m.PasswordResetSent, email)
	m.LastToken = token
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailSender) SendEmailChangeEmail(ctx context.Context, email, token string) error {
	m.EmailChangeSent = append(m.EmailChangeSent, email)
	m.LastToken = token
	if m.SendEmailChangeEmailFunc != nil {
		return m.SendEmailChangeEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailSender) SendInvitationEmail(ctx context.Context, email, orgName, token string) error {
	m.InvitationSent = append(m.InvitationSent, email)
	m.LastToken = token
	if m.SendInvitationEmailFunc != nil {
		return m.SendInvitationEmailFunc(ctx, email, orgName, token)
	}
	return nil
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) error
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return nil
}

// MockAuditRecorder implements AuditRecorder for testing and collects events.
type MockAuditRecorder struct {
	Events []*models.AuditEvent
}

func (m *MockAuditRecorder) Record(ctx context.Context, event *models.AuditEvent) {
	m.Events = append(m.Events, event)
}

// MockTxRunner implements TxRunner for testing. By default the function runs
// directly, no transaction semantics.
type MockTxRunner struct {
	WithinTxFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithinTxFunc != nil {
		return m.WithinTxFunc(ctx, fn)
	}
	return fn(ctx)
}

// MockProvider implements oauth.Provider for testing
type MockProvider struct {
	NameValue         string
	DefaultRedirectFn func() string
	AuthCodeURLFunc   func(state, verifier, redirectURI string) string
	ExchangeFunc      func(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error)
	FetchUserInfoFunc func(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error)
}

func (m *MockProvider) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "google"
}

func (m *MockProvider) DefaultRedirect() string {
	if m.DefaultRedirectFn != nil {
		return m.DefaultRedirectFn()
	}
	return "https://app.example.com/callback"
}

func (m *MockProvider) AuthCodeURL(state, verifier, redirectURI string) string {
	if m.AuthCodeURLFunc != nil {
		return m.AuthCodeURLFunc(state, verifier, redirectURI)
	}
	return "https://provider.example.com/authorize?state=" + state
}

func (m *MockProvider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, verifier, redirectURI)
	}
	return &oauth2.Token{AccessToken: "provider_token"}, nil
}

func (m *MockProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error) {
	if m.FetchUserInfoFunc != nil {
		return m.FetchUserInfoFunc(ctx, token)
	}
	return &oauth.UserInfo{
		Subject:       "provider-sub-1",
		Email:         "oauth@example.com",
		EmailVerified: true,
		Name:          "OAuth User",
	}, nil
}

// MockProviderRegistry implements ProviderRegistry for testing
type MockProviderRegistry struct {
	GetFunc  func(name string) (oauth.Provider, error)
	Provider oauth.Provider
}

func (m *MockProviderRegistry) Get(name string) (oauth.Provider, error) {
	if m.GetFunc != nil {
		return m.GetFunc(name)
	}
	if m.Provider != nil {
		return m.Provider, nil
	}
	return nil, models.ErrOAuthProviderUnknown
}
