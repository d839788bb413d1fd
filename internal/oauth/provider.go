package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"golang.org/x/oauth2"
)

// UserInfo is the provider-neutral identity returned after a successful code
// exchange.
type UserInfo struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Provider wraps one upstream OAuth2/OIDC identity provider. All flows use
// the authorization-code grant with PKCE.
type Provider interface {
	Name() string
	// DefaultRedirect is the configured callback used when the caller supplies
	// no redirect URI. Empty when unconfigured.
	DefaultRedirect() string
	// AuthCodeURL builds the upstream authorization URL carrying the state
	// value and the S256 challenge for verifier.
	AuthCodeURL(state, verifier, redirectURI string) string
	// Exchange redeems an authorization code, proving possession of the PKCE
	// verifier.
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error)
	// FetchUserInfo loads the authenticated subject's profile.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"

	googleUserInfoURL    = "https://openidconnect.googleapis.com/v1/userinfo"
	microsoftUserInfoURL = "https://graph.microsoft.com/oidc/userinfo"
)

type provider struct {
	name        string
	oauthConfig oauth2.Config
	userInfoURL string
	// assumeVerified covers providers whose userinfo response omits the
	// email_verified claim but only issues addresses they control.
	assumeVerified bool
}

func newGoogleProvider(cfg config.OAuthProviderConfig) *provider {
	return &provider{
		name: ProviderGoogle,
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func newMicrosoftProvider(cfg config.OAuthProviderConfig) *provider {
	return &provider{
		name: ProviderMicrosoft,
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
				TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			},
		},
		userInfoURL:    microsoftUserInfoURL,
		assumeVerified: true,
	}
}

func (p *provider) Name() string { return p.name }

func (p *provider) DefaultRedirect() string { return p.oauthConfig.RedirectURL }

func (p *provider) AuthCodeURL(state, verifier, redirectURI string) string {
	cfg := p.configFor(redirectURI)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

func (p *provider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error) {
	cfg := p.configFor(redirectURI)
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging %s authorization code: %w", p.name, err)
	}
	return token, nil
}

func (p *provider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := p.oauthConfig.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s userinfo: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s userinfo returned status %d", p.name, resp.StatusCode)
	}

	var payload struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s userinfo: %w", p.name, err)
	}
	if payload.Sub == "" {
		return nil, fmt.Errorf("%s userinfo missing subject", p.name)
	}

	verified := p.assumeVerified
	if payload.EmailVerified != nil {
		verified = *payload.EmailVerified
	}

	return &UserInfo{
		Subject:       payload.Sub,
		Email:         payload.Email,
		EmailVerified: verified,
		Name:          payload.Name,
		Picture:       payload.Picture,
	}, nil
}

// configFor returns the provider config with the per-request redirect applied.
func (p *provider) configFor(redirectURI string) oauth2.Config {
	cfg := p.oauthConfig
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}
	return cfg
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// Registry holds the providers enabled by configuration.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry enables each provider that has a client ID configured.
func NewRegistry(cfg config.OAuthConfig) *Registry {
	providers := make(map[string]Provider)
	if cfg.Google.ClientID != "" {
		providers[ProviderGoogle] = newGoogleProvider(cfg.Google)
	}
	if cfg.Microsoft.ClientID != "" {
		providers[ProviderMicrosoft] = newMicrosoftProvider(cfg.Microsoft)
	}
	return &Registry{providers: providers}
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, models.ErrOAuthProviderUnknown
	}
	return p, nil
}

// Names lists the enabled providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
