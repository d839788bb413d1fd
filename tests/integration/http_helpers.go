package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/handlers"
	"github.com/averycrane/gatehouse/internal/hooks"
	"github.com/averycrane/gatehouse/internal/oauth"
	"github.com/averycrane/gatehouse/internal/repositories"
	"github.com/averycrane/gatehouse/internal/routes"
	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Kind    string
	Token   string
	OrgName string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	mu   sync.Mutex
	sent []SentEmail
}

func (m *MockEmailService) record(email SentEmail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.record(SentEmail{To: email, Kind: "verification", Token: token})
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.record(SentEmail{To: email, Kind: "password_reset", Token: token})
	return nil
}

func (m *MockEmailService) SendEmailChangeEmail(ctx context.Context, email, token string) error {
	m.record(SentEmail{To: email, Kind: "email_change", Token: token})
	return nil
}

func (m *MockEmailService) SendInvitationEmail(ctx context.Context, email, orgName, token string) error {
	m.record(SentEmail{To: email, Kind: "invitation", Token: token, OrgName: orgName})
	return nil
}

// LastEmail returns the most recent email sent, or nil.
func (m *MockEmailService) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	email := m.sent[len(m.sent)-1]
	return &email
}

// TestServer wraps httptest.Server with the full service stack wired
// against a real database and a captured email transport.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	TokenManager *auth.TokenManager
	Config       *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:          "0",
			Env:           "test",
			PublicBaseURL: "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret-32-characters-long-abc",
			AccessTokenExpiry:    15 * time.Minute,
			RefreshTokenExpiry:   7 * 24 * time.Hour,
			EmailVerifyExpiry:    24 * time.Hour,
			PasswordResetExpiry:  2 * time.Hour,
			EmailChangeExpiry:    2 * time.Hour,
			InvitationExpiry:     7 * 24 * time.Hour,
			LockoutThreshold:     5,
			LockoutDuration:      15 * time.Minute,
			CleanupInterval:      time.Hour,
			ProfileSchemaVersion: 1,
		},
		Password: config.PasswordConfig{
			MinLength:      8,
			MaxLength:      128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
		},
		OAuth: config.OAuthConfig{
			StateTTL: 10 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			LoginPerMinute:  1000,
			RegisterPerHour: 1000,
			ResetPerHour:    1000,
		},
	}
}

// NewTestServer initializes a complete HTTP server with a real database
// and mocked email transport. Rate limits are set high enough to never
// interfere with test traffic.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := testConfig()

	emailService := &MockEmailService{}
	store := cache.NewMemoryStore()

	userRepo := repositories.NewUserRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	verificationTokenRepo := repositories.NewVerificationTokenRepository(db)
	identityRepo := repositories.NewExternalIdentityRepository(db)
	orgRepo := repositories.NewOrgRepository(db)
	membershipRepo := repositories.NewMembershipRepository(db)
	invitationRepo := repositories.NewInvitationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	hookRegistry := hooks.NewRegistry()
	hookRegistry.RegisterPasswordPolicy(hooks.DefaultPasswordPolicy(cfg.Password))
	hookRegistry.RegisterEmailDomainPolicy(hooks.DefaultEmailDomainPolicy(nil))
	hookRegistry.RegisterProfileValidator(1, hooks.DefaultProfileValidator())

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	tokenService := services.NewTokenService(refreshTokenRepo, tokenManager, db, logger, cfg.Auth.RefreshTokenExpiry)

	auditService := services.NewAuditService(auditRepo, logger)
	rateLimitService := services.NewRateLimitService(store, cfg.RateLimit, logger)
	authService := services.NewAuthService(
		userRepo, credentialRepo, verificationTokenRepo, membershipRepo, orgRepo,
		tokenService, emailService, hookRegistry, rateLimitService, auditService,
		db, logger, cfg.Auth,
	)
	userService := services.NewUserService(
		userRepo, identityRepo, tokenService, hookRegistry, auditService,
		db, logger, cfg.Auth,
	)
	orgService := services.NewOrgService(
		orgRepo, membershipRepo, invitationRepo, emailService, auditService,
		db, logger, cfg.Auth,
	)
	oauthService := services.NewOAuthService(
		oauth.NewRegistry(cfg.OAuth), store,
		userRepo, credentialRepo, identityRepo, orgRepo, membershipRepo,
		tokenService, auditService, db, logger, cfg.OAuth,
	)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, rateLimitService, ipConfig)
	oauthHandler := handlers.NewOAuthHandler(oauthService, ipConfig)
	orgHandler := handlers.NewOrgHandler(orgService)
	userHandler := handlers.NewUserHandler(userService, auditService)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, authHandler, oauthHandler, orgHandler, userHandler, tokenManager)

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		EmailService: emailService,
		TokenManager: tokenManager,
		Config:       cfg,
	}
}

// Close shuts the HTTP server down.
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// DoJSON issues a request with a JSON body and an optional bearer token,
// returning the status code and decoded response body.
func (ts *TestServer) DoJSON(method, path string, body any, accessToken string) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("non-JSON response %q: %w", raw, err)
		}
	}

	return resp.StatusCode, decoded, nil
}
