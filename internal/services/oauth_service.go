package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/oauth"
	pkgauth "github.com/averycrane/gatehouse/pkg/auth"
)

// ExternalIdentityRepository defines the persistence contract for OAuth
// identity links
type ExternalIdentityRepository interface {
	Create(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error)
	GetByProviderSubject(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.ExternalIdentity, error)
}

// ProviderRegistry resolves configured OAuth providers by name.
type ProviderRegistry interface {
	Get(name string) (oauth.Provider, error)
}

const oauthStatePrefix = "oauth_state:"

// oauthFlowState is the transient per-state payload stored for the duration
// of one authorization round trip.
type oauthFlowState struct {
	Provider     string `json:"provider"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
}

// OAuthService runs the authorization-code + PKCE dance and links provider
// identities to local accounts.
type OAuthService struct {
	providers  ProviderRegistry
	state      cache.Store
	users      UserRepository
	creds      CredentialRepository
	identities ExternalIdentityRepository
	orgs       OrgRepository
	membership MembershipRepository
	tokens     TokenProvider
	audit      AuditRecorder
	tx         TxRunner
	logger     *slog.Logger
	stateTTL   time.Duration
}

func NewOAuthService(
	providers ProviderRegistry,
	state cache.Store,
	users UserRepository,
	creds CredentialRepository,
	identities ExternalIdentityRepository,
	orgs OrgRepository,
	membership MembershipRepository,
	tokens TokenProvider,
	audit AuditRecorder,
	tx TxRunner,
	logger *slog.Logger,
	cfg config.OAuthConfig,
) *OAuthService {
	return &OAuthService{
		providers:  providers,
		state:      state,
		users:      users,
		creds:      creds,
		identities: identities,
		orgs:       orgs,
		membership: membership,
		tokens:     tokens,
		audit:      audit,
		tx:         tx,
		logger:     logger,
		stateTTL:   cfg.StateTTL,
	}
}

// AuthorizationResponse carries the provider redirect target and the state
// value the client must echo back.
type AuthorizationResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// AuthorizationURL starts a flow: generates PKCE verifier and state, stores
// the pending flow under the state value with a TTL, and returns the
// provider's authorization URL.
func (s *OAuthService) AuthorizationURL(ctx context.Context, providerName, redirectURI string) (*AuthorizationResponse, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	if redirectURI == "" {
		redirectURI = provider.DefaultRedirect()
	}
	if redirectURI == "" {
		return nil, models.ErrOAuthRedirectMissing
	}

	state, err := pkgauth.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate oauth state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	verifier := oauth.GenerateVerifier()

	payload, err := json.Marshal(oauthFlowState{
		Provider:     providerName,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		s.logger.Error("failed to encode oauth state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.state.SetWithTTL(ctx, oauthStatePrefix+state, string(payload), s.stateTTL); err != nil {
		s.logger.Error("failed to store oauth state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthorizationResponse{
		AuthorizationURL: provider.AuthCodeURL(state, verifier, redirectURI),
		State:            state,
	}, nil
}

// Callback finishes a flow: consumes the stored state (single destructive
// read, the CSRF defense for the dance), exchanges the code with the original
// PKCE verifier, resolves or creates the local account, and establishes a
// session exactly as password login does.
func (s *OAuthService) Callback(ctx context.Context, providerName, code, state string, meta ClientMeta) (*AuthResponse, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	raw, err := s.state.GetAndDelete(ctx, oauthStatePrefix+state)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOAuthStateInvalid
		}
		s.logger.Error("failed to consume oauth state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var flow oauthFlowState
	if err := json.Unmarshal([]byte(raw), &flow); err != nil || flow.Provider != providerName {
		return nil, models.ErrOAuthStateInvalid
	}

	token, err := provider.Exchange(ctx, code, flow.CodeVerifier, flow.RedirectURI)
	if err != nil {
		s.logger.Info("oauth code exchange failed", slog.String("provider", providerName), slog.Any("error", err))
		return nil, models.ErrOAuthExchangeFailed
	}

	info, err := provider.FetchUserInfo(ctx, token)
	if err != nil {
		s.logger.Error("failed to fetch provider userinfo", slog.String("provider", providerName), slog.Any("error", err))
		return nil, models.ErrOAuthExchangeFailed
	}
	if info.Email == "" || !info.EmailVerified {
		return nil, models.ErrOAuthEmailUnverified
	}

	var response *AuthResponse
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err := s.resolveAccount(ctx, providerName, info)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return models.ErrAccountDisabled
		}

		membership, err := s.ensureMembership(ctx, user)
		if err != nil {
			return err
		}

		pair, err := s.tokens.Issue(ctx, user, membership.Role, membership.OrgID, meta)
		if err != nil {
			return err
		}

		response = &AuthResponse{
			TokenPair: pair,
			OrgID:     membership.OrgID,
			Role:      string(membership.Role),
			User:      userModelToResponse(user),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEvent{
		Action:    "login.oauth",
		UserID:    response.User.ID,
		OrgID:     response.OrgID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]string{"provider": providerName},
	})

	return response, nil
}

// resolveAccount implements the account resolution order: existing identity,
// then email link, then account creation.
func (s *OAuthService) resolveAccount(ctx context.Context, providerName string, info *oauth.UserInfo) (*models.User, error) {
	identity, err := s.identities.GetByProviderSubject(ctx, providerName, info.Subject)
	if err == nil {
		user, err := s.users.GetByID(ctx, identity.UserID)
		if err != nil {
			s.logger.Error("failed to load linked user", slog.String("user_id", identity.UserID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up external identity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	normalized := NormalizeEmail(info.Email)

	user, err := s.users.GetByNormalizedEmail(ctx, normalized)
	if err == nil {
		// Provider vouched for the address, so link and mark verified.
		if _, err := s.identities.Create(ctx, &models.ExternalIdentity{
			UserID:         user.ID,
			Provider:       providerName,
			ProviderUserID: info.Subject,
			Email:          info.Email,
		}); err != nil {
			s.logger.Error("failed to link external identity", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !user.IsVerified {
			if err := s.users.SetVerified(ctx, user.ID, true); err != nil {
				s.logger.Error("failed to mark user verified", slog.String("user_id", user.ID), slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
			user.IsVerified = true
		}
		s.logger.Info("linked provider identity to existing account",
			slog.String("user_id", user.ID), slog.String("provider", providerName))
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.createAccount(ctx, providerName, info)
}

// createAccount provisions a new user from provider userinfo. The credential
// gets a random unusable password so the schema stays uniform without
// enabling password login.
func (s *OAuthService) createAccount(ctx context.Context, providerName string, info *oauth.UserInfo) (*models.User, error) {
	displayName := info.Name
	if displayName == "" {
		displayName = localPart(NormalizeEmail(info.Email))
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:           info.Email,
		NormalizedEmail: NormalizeEmail(info.Email),
		DisplayName:     displayName,
		AvatarURL:       info.Picture,
		IsActive:        true,
		IsVerified:      true,
	})
	if err != nil {
		s.logger.Error("failed to create oauth user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	unusable, err := pkgauth.GenerateUnusablePassword()
	if err != nil {
		s.logger.Error("failed to generate unusable password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	passwordHash, err := pkgauth.HashPassword(unusable)
	if err != nil {
		s.logger.Error("failed to hash unusable password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if _, err := s.creds.Create(ctx, &models.Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
	}); err != nil {
		s.logger.Error("failed to create credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.identities.Create(ctx, &models.ExternalIdentity{
		UserID:         user.ID,
		Provider:       providerName,
		ProviderUserID: info.Subject,
		Email:          info.Email,
	}); err != nil {
		s.logger.Error("failed to create external identity", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("created account from oauth login",
		slog.String("user_id", user.ID), slog.String("provider", providerName))
	return user, nil
}

// ensureMembership returns the user's first membership, creating a personal
// organization when none exists.
func (s *OAuthService) ensureMembership(ctx context.Context, user *models.User) (*models.Membership, error) {
	membership, err := s.membership.FirstForUser(ctx, user.ID)
	if err == nil {
		return membership, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to resolve membership", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	name := user.DisplayName
	if name == "" {
		name = localPart(user.NormalizedEmail)
	}
	slug := Slugify(name)

	org, err := s.orgs.Create(ctx, &models.Organization{
		Name:     name,
		Slug:     slug,
		IsActive: true,
	})
	if errors.Is(err, models.ErrOrgSlugExists) {
		org, err = s.orgs.Create(ctx, &models.Organization{
			Name:     name,
			Slug:     slug + "-" + randomSlugSuffix(),
			IsActive: true,
		})
	}
	if err != nil {
		s.logger.Error("failed to create personal org", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.membership.Create(ctx, &models.Membership{
		UserID: user.ID,
		OrgID:  org.ID,
		Role:   models.RoleAdmin,
	}); err != nil {
		s.logger.Error("failed to create membership", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.membership.FirstForUser(ctx, user.ID)
}
