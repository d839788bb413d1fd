package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
)

// RateLimiter gates sensitive operations behind per-key counters.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) error
}

// RateLimitService counts hits in fixed windows on the shared TTL store.
// Counting is best-effort: a store failure allows the request rather than
// turning a cache outage into an auth outage.
type RateLimitService struct {
	store  cache.Store
	cfg    config.RateLimitConfig
	logger *slog.Logger
}

func NewRateLimitService(store cache.Store, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Allow counts one hit against key and fails with ErrRateLimited once the
// window budget is exhausted.
func (s *RateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	if limit <= 0 {
		return nil
	}

	count, err := s.store.IncrementWithTTL(ctx, "ratelimit:"+key, window)
	if err != nil {
		s.logger.Warn("rate limit store unavailable, allowing request",
			slog.String("key", key), slog.Any("error", err))
		return nil
	}

	if count > int64(limit) {
		s.logger.Info("rate limit exceeded", slog.String("key", key), slog.Int64("count", count))
		return models.ErrRateLimited
	}

	return nil
}

// AllowLogin limits login attempts per (email, client IP) pair per minute.
func (s *RateLimitService) AllowLogin(ctx context.Context, email, ip string) error {
	key := fmt.Sprintf("login:%s:%s", strings.ToLower(email), ip)
	return s.Allow(ctx, key, s.cfg.LoginPerMinute, time.Minute)
}

// AllowRegister limits registrations per client IP per hour.
func (s *RateLimitService) AllowRegister(ctx context.Context, ip string) error {
	return s.Allow(ctx, "register:"+ip, s.cfg.RegisterPerHour, time.Hour)
}

// AllowPasswordReset limits reset requests per client IP per hour.
func (s *RateLimitService) AllowPasswordReset(ctx context.Context, ip string) error {
	return s.Allow(ctx, "reset:"+ip, s.cfg.ResetPerHour, time.Hour)
}
