package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Password  PasswordConfig
	Email     EmailConfig
	Redis     RedisConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	PublicBaseURL  string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret            string
	AccessTokenExpiry    time.Duration
	RefreshTokenExpiry   time.Duration
	EmailVerifyExpiry    time.Duration
	PasswordResetExpiry  time.Duration
	EmailChangeExpiry    time.Duration
	InvitationExpiry     time.Duration
	LockoutThreshold     int
	LockoutDuration      time.Duration
	CleanupInterval      time.Duration
	AllowedEmailDomains  []string
	ProfileSchemaVersion int
}

type PasswordConfig struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type RedisConfig struct {
	URL string
}

// OAuthProviderConfig holds per-provider client credentials and the default
// redirect used when the caller supplies none.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type OAuthConfig struct {
	Google    OAuthProviderConfig
	Microsoft OAuthProviderConfig
	StateTTL  time.Duration
}

type RateLimitConfig struct {
	LoginPerMinute   int
	RegisterPerHour  int
	ResetPerHour     int
	GlobalPerMinute  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:   getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			EmailVerifyExpiry:    getEnvAsDuration("EMAIL_VERIFY_EXPIRY", 24*time.Hour),
			PasswordResetExpiry:  getEnvAsDuration("PASSWORD_RESET_EXPIRY", 2*time.Hour),
			EmailChangeExpiry:    getEnvAsDuration("EMAIL_CHANGE_EXPIRY", 2*time.Hour),
			InvitationExpiry:     getEnvAsDuration("INVITATION_EXPIRY", 7*24*time.Hour),
			LockoutThreshold:     getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:      getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			CleanupInterval:      getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			AllowedEmailDomains:  getEnvAsList("ALLOWED_EMAIL_DOMAINS"),
			ProfileSchemaVersion: getEnvAsInt("PROFILE_SCHEMA_VERSION", 1),
		},
		Password: PasswordConfig{
			MinLength:      getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			MaxLength:      getEnvAsInt("PASSWORD_MAX_LENGTH", 128),
			RequireUpper:   getEnvAsBool("PASSWORD_REQUIRE_UPPER", true),
			RequireLower:   getEnvAsBool("PASSWORD_REQUIRE_LOWER", true),
			RequireDigit:   getEnvAsBool("PASSWORD_REQUIRE_DIGIT", true),
			RequireSpecial: getEnvAsBool("PASSWORD_REQUIRE_SPECIAL", true),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@localhost"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		OAuth: OAuthConfig{
			Google: OAuthProviderConfig{
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
			},
			Microsoft: OAuthProviderConfig{
				ClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
				ClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
				RedirectURI:  getEnv("MICROSOFT_REDIRECT_URI", ""),
			},
			StateTTL: getEnvAsDuration("OAUTH_STATE_TTL", 600*time.Second),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute:  getEnvAsInt("RATE_LIMIT_LOGIN_PER_MINUTE", 10),
			RegisterPerHour: getEnvAsInt("RATE_LIMIT_REGISTER_PER_HOUR", 5),
			ResetPerHour:    getEnvAsInt("RATE_LIMIT_RESET_PER_HOUR", 5),
			GlobalPerMinute: getEnvAsInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 120),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
