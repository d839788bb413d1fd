package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/background"
	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/handlers"
	"github.com/averycrane/gatehouse/internal/hooks"
	middlewareCustom "github.com/averycrane/gatehouse/internal/middleware"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/oauth"
	"github.com/averycrane/gatehouse/internal/repositories"
	"github.com/averycrane/gatehouse/internal/routes"
	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Short-lived state (oauth flows, rate limit counters) lives in Redis
	// when configured, otherwise in process memory. Memory is fine for a
	// single instance; multi-instance deployments need Redis.
	var store cache.Store
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", slog.Any("error", err))
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		store = cache.NewRedisStore(client)
		logger.Info("using redis for shared state")
	} else {
		store = cache.NewMemoryStore()
		logger.Info("using in-memory store for shared state")
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	verificationTokenRepo := repositories.NewVerificationTokenRepository(db)
	identityRepo := repositories.NewExternalIdentityRepository(db)
	orgRepo := repositories.NewOrgRepository(db)
	membershipRepo := repositories.NewMembershipRepository(db)
	invitationRepo := repositories.NewInvitationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Extension hooks with the built-in defaults
	hookRegistry := hooks.NewRegistry()
	hookRegistry.RegisterPasswordPolicy(hooks.DefaultPasswordPolicy(cfg.Password))
	hookRegistry.RegisterEmailDomainPolicy(hooks.DefaultEmailDomainPolicy(cfg.Auth.AllowedEmailDomains))
	hookRegistry.RegisterProfileValidator(1, hooks.DefaultProfileValidator())

	// Token issuance
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	tokenService := services.NewTokenService(refreshTokenRepo, tokenManager, db, logger, cfg.Auth.RefreshTokenExpiry)

	// AWS SES email transport
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Server.PublicBaseURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
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

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, rateLimitService, ipConfig)
	oauthHandler := handlers.NewOAuthHandler(oauthService, ipConfig)
	orgHandler := handlers.NewOrgHandler(orgService)
	userHandler := handlers.NewUserHandler(userService, auditService)

	// Bootstrap first admin account if configured
	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, authService, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.RateLimitByIP(cfg.RateLimit.GlobalPerMinute, 1*time.Minute))

	// Register routes
	routes.RegisterRoutes(router, authHandler, oauthHandler, orgHandler, userHandler, tokenManager)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(
		verificationTokenRepo, invitationRepo, refreshTokenRepo,
		logger, cfg.Auth.CleanupInterval,
	)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureAdminUser registers the first account if ADMIN_EMAIL and
// ADMIN_PASSWORD are set. The account goes through the normal registration
// path so it gets a personal org and an admin membership, then is marked
// verified so it can log in without a mail round trip.
func ensureAdminUser(ctx context.Context, authService *services.AuthService, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	normalized := strings.ToLower(strings.TrimSpace(adminEmail))
	_, err := userRepo.GetByNormalizedEmail(ctx, normalized)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	created, err := authService.Register(ctx, services.RegisterRequest{
		Email:       adminEmail,
		Password:    adminPassword,
		DisplayName: "Admin",
	})
	if err != nil {
		return fmt.Errorf("failed to register admin user: %w", err)
	}

	if err := userRepo.SetVerified(ctx, created.ID, true); err != nil {
		return fmt.Errorf("failed to verify admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("user_id", created.ID))
	return nil
}
