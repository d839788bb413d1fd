package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type oauthServiceMocks struct {
	provider   *MockProvider
	state      cache.Store
	users      *MockUserRepository
	creds      *MockCredentialRepository
	identities *MockExternalIdentityRepository
	orgs       *MockOrgRepository
	membership *MockMembershipRepository
	tokens     *MockTokenProvider
	audit      *MockAuditRecorder
}

func newOAuthService(m *oauthServiceMocks) *OAuthService {
	if m.provider == nil {
		m.provider = &MockProvider{}
	}
	if m.state == nil {
		m.state = cache.NewMemoryStore()
	}
	if m.users == nil {
		m.users = &MockUserRepository{}
	}
	if m.creds == nil {
		m.creds = &MockCredentialRepository{}
	}
	if m.identities == nil {
		m.identities = &MockExternalIdentityRepository{}
	}
	if m.orgs == nil {
		m.orgs = &MockOrgRepository{}
	}
	if m.membership == nil {
		m.membership = &MockMembershipRepository{}
	}
	if m.tokens == nil {
		m.tokens = &MockTokenProvider{}
	}
	if m.audit == nil {
		m.audit = &MockAuditRecorder{}
	}

	registry := &MockProviderRegistry{Provider: m.provider}
	return NewOAuthService(
		registry, m.state, m.users, m.creds, m.identities, m.orgs, m.membership,
		m.tokens, m.audit, &MockTxRunner{}, testLogger(),
		config.OAuthConfig{StateTTL: 10 * time.Minute},
	)
}

func TestOAuthAuthorizationURL(t *testing.T) {
	var gotState, gotVerifier string
	m := &oauthServiceMocks{
		provider: &MockProvider{
			AuthCodeURLFunc: func(state, verifier, redirectURI string) string {
				gotState = state
				gotVerifier = verifier
				return "https://provider.example.com/authorize?state=" + state
			},
		},
	}
	svc := newOAuthService(m)

	resp, err := svc.AuthorizationURL(context.Background(), "google", "https://app.example.com/cb")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.State)
	assert.Equal(t, gotState, resp.State)
	assert.NotEmpty(t, gotVerifier)
	assert.Contains(t, resp.AuthorizationURL, resp.State)
}

func TestOAuthAuthorizationURL_UnknownProvider(t *testing.T) {
	svc := newOAuthService(&oauthServiceMocks{})
	registry := &MockProviderRegistry{GetFunc: func(name string) (oauth.Provider, error) {
		return nil, models.ErrOAuthProviderUnknown
	}}
	svc.providers = registry

	_, err := svc.AuthorizationURL(context.Background(), "github", "")
	assert.True(t, errors.Is(err, models.ErrOAuthProviderUnknown))
}

func TestOAuthAuthorizationURL_RedirectFallback(t *testing.T) {
	var gotRedirect string
	m := &oauthServiceMocks{
		provider: &MockProvider{
			DefaultRedirectFn: func() string { return "https://app.example.com/default" },
			AuthCodeURLFunc: func(state, verifier, redirectURI string) string {
				gotRedirect = redirectURI
				return "https://provider.example.com/authorize"
			},
		},
	}
	svc := newOAuthService(m)

	_, err := svc.AuthorizationURL(context.Background(), "google", "")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/default", gotRedirect)

	// No explicit redirect and no configured default is an error
	m2 := &oauthServiceMocks{
		provider: &MockProvider{DefaultRedirectFn: func() string { return "" }},
	}
	svc2 := newOAuthService(m2)
	_, err = svc2.AuthorizationURL(context.Background(), "google", "")
	assert.True(t, errors.Is(err, models.ErrOAuthRedirectMissing))
}

// startFlow runs AuthorizationURL so the state store holds a pending flow.
func startFlow(t *testing.T, svc *OAuthService) string {
	t.Helper()
	resp, err := svc.AuthorizationURL(context.Background(), "google", "https://app.example.com/cb")
	require.NoError(t, err)
	return resp.State
}

func TestOAuthCallback_ExistingIdentity(t *testing.T) {
	m := &oauthServiceMocks{
		identities: &MockExternalIdentityRepository{
			GetByProviderSubjectFunc: func(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error) {
				return &models.ExternalIdentity{UserID: "user_123", Provider: provider, ProviderUserID: providerUserID}, nil
			},
		},
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return verifiedUser(), nil
			},
		},
		membership: &MockMembershipRepository{
			FirstForUserFunc: func(ctx context.Context, userID string) (*models.Membership, error) {
				return &models.Membership{UserID: userID, OrgID: "org_1", Role: models.RoleAdmin}, nil
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	resp, err := svc.Callback(context.Background(), "google", "auth-code", state, ClientMeta{IPAddress: "1.2.3.4"})
	require.NoError(t, err)

	assert.Equal(t, "org_1", resp.OrgID)
	assert.Equal(t, "user_123", resp.User.ID)
	assert.NotEmpty(t, resp.AccessToken)

	require.NotEmpty(t, m.audit.Events)
	event := m.audit.Events[len(m.audit.Events)-1]
	assert.Equal(t, "login.oauth", event.Action)
	assert.Equal(t, "google", event.Metadata["provider"])
}

func TestOAuthCallback_StateReplayRejected(t *testing.T) {
	m := &oauthServiceMocks{
		identities: &MockExternalIdentityRepository{
			GetByProviderSubjectFunc: func(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error) {
				return &models.ExternalIdentity{UserID: "user_123"}, nil
			},
		},
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return verifiedUser(), nil
			},
		},
		membership: &MockMembershipRepository{
			FirstForUserFunc: func(ctx context.Context, userID string) (*models.Membership, error) {
				return &models.Membership{UserID: userID, OrgID: "org_1", Role: models.RoleAdmin}, nil
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)
	ctx := context.Background()

	_, err := svc.Callback(ctx, "google", "auth-code", state, ClientMeta{})
	require.NoError(t, err)

	// The state was consumed by the first callback
	_, err = svc.Callback(ctx, "google", "auth-code", state, ClientMeta{})
	assert.True(t, errors.Is(err, models.ErrOAuthStateInvalid))
}

func TestOAuthCallback_UnknownState(t *testing.T) {
	svc := newOAuthService(&oauthServiceMocks{})

	_, err := svc.Callback(context.Background(), "google", "auth-code", "never-issued", ClientMeta{})
	assert.True(t, errors.Is(err, models.ErrOAuthStateInvalid))
}

func TestOAuthCallback_ProviderMismatch(t *testing.T) {
	m := &oauthServiceMocks{
		provider: &MockProvider{NameValue: "google"},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	// State was issued for google, callback claims microsoft
	svc.providers = &MockProviderRegistry{Provider: &MockProvider{NameValue: "microsoft"}}
	_, err := svc.Callback(context.Background(), "microsoft", "auth-code", state, ClientMeta{})
	assert.True(t, errors.Is(err, models.ErrOAuthStateInvalid))
}

func TestOAuthCallback_ExchangeFailure(t *testing.T) {
	m := &oauthServiceMocks{
		provider: &MockProvider{
			ExchangeFunc: func(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error) {
				return nil, errors.New("invalid_grant")
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	_, err := svc.Callback(context.Background(), "google", "bad-code", state, ClientMeta{})
	assert.True(t, errors.Is(err, models.ErrOAuthExchangeFailed))
}

func TestOAuthCallback_UnverifiedEmailRejected(t *testing.T) {
	tests := []struct {
		name string
		info *oauth.UserInfo
	}{
		{"unverified", &oauth.UserInfo{Subject: "sub-1", Email: "a@example.com", EmailVerified: false}},
		{"missing email", &oauth.UserInfo{Subject: "sub-1", EmailVerified: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &oauthServiceMocks{
				provider: &MockProvider{
					FetchUserInfoFunc: func(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error) {
						return tt.info, nil
					},
				},
			}
			svc := newOAuthService(m)
			state := startFlow(t, svc)

			_, err := svc.Callback(context.Background(), "google", "auth-code", state, ClientMeta{})
			assert.True(t, errors.Is(err, models.ErrOAuthEmailUnverified))
		})
	}
}

func TestOAuthCallback_LinksExistingAccountByEmail(t *testing.T) {
	existing := verifiedUser()
	existing.IsVerified = false

	var linked *models.ExternalIdentity
	var verifiedSet bool
	m := &oauthServiceMocks{
		provider: &MockProvider{
			FetchUserInfoFunc: func(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error) {
				return &oauth.UserInfo{Subject: "sub-1", Email: existing.Email, EmailVerified: true}, nil
			},
		},
		users: &MockUserRepository{
			GetByNormalizedEmailFunc: func(ctx context.Context, normalizedEmail string) (*models.User, error) {
				return existing, nil
			},
			SetVerifiedFunc: func(ctx context.Context, id string, verified bool) error {
				verifiedSet = verified
				return nil
			},
		},
		identities: &MockExternalIdentityRepository{
			CreateFunc: func(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error) {
				linked = identity
				return identity, nil
			},
		},
		membership: &MockMembershipRepository{
			FirstForUserFunc: func(ctx context.Context, userID string) (*models.Membership, error) {
				return &models.Membership{UserID: userID, OrgID: "org_1", Role: models.RoleAdmin}, nil
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	resp, err := svc.Callback(context.Background(), "google", "auth-code", state, ClientMeta{})
	require.NoError(t, err)

	require.NotNil(t, linked)
	assert.Equal(t, existing.ID, linked.UserID)
	assert.Equal(t, "sub-1", linked.ProviderUserID)

	// Provider vouched for the address, so the account becomes verified
	assert.True(t, verifiedSet)
	assert.True(t, resp.User.IsVerified)
}

func TestOAuthCallback_CreatesAccountAndPersonalOrg(t *testing.T) {
	var createdUser *models.User
	var createdCred *models.Credential
	var createdIdentity *models.ExternalIdentity
	var createdMembership *models.Membership

	firstCalls := 0
	m := &oauthServiceMocks{
		provider: &MockProvider{
			FetchUserInfoFunc: func(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error) {
				return &oauth.UserInfo{
					Subject:       "sub-new",
					Email:         "fresh@example.com",
					EmailVerified: true,
					Name:          "Fresh User",
				}, nil
			},
		},
		users: &MockUserRepository{
			CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				user.ID = "user_new"
				createdUser = user
				return user, nil
			},
		},
		creds: &MockCredentialRepository{
			CreateFunc: func(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
				createdCred = cred
				return cred, nil
			},
		},
		identities: &MockExternalIdentityRepository{
			CreateFunc: func(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error) {
				createdIdentity = identity
				return identity, nil
			},
		},
		membership: &MockMembershipRepository{
			FirstForUserFunc: func(ctx context.Context, userID string) (*models.Membership, error) {
				firstCalls++
				if firstCalls == 1 {
					return nil, models.ErrNotFound
				}
				return &models.Membership{UserID: userID, OrgID: "org_123", Role: models.RoleAdmin}, nil
			},
			CreateFunc: func(ctx context.Context, membership *models.Membership) (bool, error) {
				createdMembership = membership
				return true, nil
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	resp, err := svc.Callback(context.Background(), "google", "auth-code", state, ClientMeta{})
	require.NoError(t, err)

	// Provider-created accounts arrive verified
	require.NotNil(t, createdUser)
	assert.True(t, createdUser.IsVerified)
	assert.Equal(t, "Fresh User", createdUser.DisplayName)

	// The placeholder credential has a hash but no usable password
	require.NotNil(t, createdCred)
	assert.NotEmpty(t, createdCred.PasswordHash)

	require.NotNil(t, createdIdentity)
	assert.Equal(t, "sub-new", createdIdentity.ProviderUserID)

	require.NotNil(t, createdMembership)
	assert.Equal(t, models.RoleAdmin, createdMembership.Role)

	assert.Equal(t, "org_123", resp.OrgID)
}

func TestOAuthCallback_DisabledAccount(t *testing.T) {
	disabled := verifiedUser()
	disabled.IsActive = false

	m := &oauthServiceMocks{
		identities: &MockExternalIdentityRepository{
			GetByProviderSubjectFunc: func(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error) {
				return &models.ExternalIdentity{UserID: disabled.ID}, nil
			},
		},
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return disabled, nil
			},
		},
	}
	svc := newOAuthService(m)
	state := startFlow(t, svc)

	_, err := svc.Callback(context.Background(), "google", "auth-code", state, ClientMeta{})
	assert.True(t, errors.Is(err, models.ErrAccountDisabled))
}
