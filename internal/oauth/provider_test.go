package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testOAuthConfig() config.OAuthConfig {
	return config.OAuthConfig{
		Google: config.OAuthProviderConfig{
			ClientID:     "google-client",
			ClientSecret: "google-secret",
			RedirectURI:  "https://app.example.com/oauth/google/callback",
		},
		Microsoft: config.OAuthProviderConfig{
			ClientID:     "ms-client",
			ClientSecret: "ms-secret",
			RedirectURI:  "https://app.example.com/oauth/microsoft/callback",
		},
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry(testOAuthConfig())

	google, err := registry.Get(ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, google.Name())

	_, err = registry.Get("github")
	assert.True(t, errors.Is(err, models.ErrOAuthProviderUnknown))
}

func TestRegistry_SkipsUnconfiguredProviders(t *testing.T) {
	cfg := testOAuthConfig()
	cfg.Microsoft.ClientID = ""

	registry := NewRegistry(cfg)
	assert.Equal(t, []string{ProviderGoogle}, registry.Names())

	_, err := registry.Get(ProviderMicrosoft)
	assert.True(t, errors.Is(err, models.ErrOAuthProviderUnknown))
}

func TestAuthCodeURL_CarriesStateAndChallenge(t *testing.T) {
	registry := NewRegistry(testOAuthConfig())
	google, err := registry.Get(ProviderGoogle)
	require.NoError(t, err)

	verifier := GenerateVerifier()
	rawURL := google.AuthCodeURL("state-123", verifier, "")

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "state-123", query.Get("state"))
	assert.Equal(t, "google-client", query.Get("client_id"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, "https://app.example.com/oauth/google/callback", query.Get("redirect_uri"))
}

func TestAuthCodeURL_OverridesRedirect(t *testing.T) {
	registry := NewRegistry(testOAuthConfig())
	google, err := registry.Get(ProviderGoogle)
	require.NoError(t, err)

	rawURL := google.AuthCodeURL("s", GenerateVerifier(), "https://other.example.com/cb")

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/cb", parsed.Query().Get("redirect_uri"))
}

func TestFetchUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer upstream-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sub": "subject-1",
			"email": "user@example.com",
			"email_verified": true,
			"name": "Test User",
			"picture": "https://cdn.example.com/p.png"
		}`))
	}))
	defer server.Close()

	p := newGoogleProvider(testOAuthConfig().Google)
	p.userInfoURL = server.URL

	info, err := p.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "upstream-token"})
	require.NoError(t, err)
	assert.Equal(t, "subject-1", info.Subject)
	assert.Equal(t, "user@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Test User", info.Name)
}

func TestFetchUserInfo_AssumesVerifiedWhenClaimMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub": "subject-2", "email": "user@corp.example.com"}`))
	}))
	defer server.Close()

	ms := newMicrosoftProvider(testOAuthConfig().Microsoft)
	ms.userInfoURL = server.URL

	info, err := ms.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.NoError(t, err)
	assert.True(t, info.EmailVerified)

	google := newGoogleProvider(testOAuthConfig().Google)
	google.userInfoURL = server.URL

	info, err = google.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.NoError(t, err)
	assert.False(t, info.EmailVerified)
}

func TestFetchUserInfo_RejectsMissingSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email": "user@example.com"}`))
	}))
	defer server.Close()

	p := newGoogleProvider(testOAuthConfig().Google)
	p.userInfoURL = server.URL

	_, err := p.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	assert.Error(t, err)
}
