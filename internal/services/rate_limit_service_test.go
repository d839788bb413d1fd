package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/averycrane/gatehouse/internal/cache"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitService(store cache.Store) *RateLimitService {
	return NewRateLimitService(store, config.RateLimitConfig{
		LoginPerMinute:  5,
		RegisterPerHour: 10,
		ResetPerHour:    3,
	}, testLogger())
}

func TestRateLimit_Allow(t *testing.T) {
	store := cache.NewMemoryStore()
	svc := newRateLimitService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, svc.Allow(ctx, "test-key", 3, time.Minute))
	}
	err := svc.Allow(ctx, "test-key", 3, time.Minute)
	assert.True(t, errors.Is(err, models.ErrRateLimited))

	// A different key has its own budget
	assert.NoError(t, svc.Allow(ctx, "other-key", 3, time.Minute))
}

func TestRateLimit_ZeroLimitDisables(t *testing.T) {
	svc := newRateLimitService(cache.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, svc.Allow(ctx, "any-key", 0, time.Minute))
	}
}

// failingStore always errors, standing in for an unreachable Redis.
type failingStore struct{}

func (failingStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store down")
}

func (failingStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	return "", errors.New("store down")
}

func (failingStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	svc := newRateLimitService(failingStore{})
	ctx := context.Background()

	// A broken counter store must not turn into an auth outage
	for i := 0; i < 10; i++ {
		assert.NoError(t, svc.Allow(ctx, "key", 1, time.Minute))
	}
}

func TestRateLimit_NamedLimits(t *testing.T) {
	store := cache.NewMemoryStore()
	svc := newRateLimitService(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AllowLogin(ctx, "Alice@Example.com", "1.2.3.4"))
	}
	err := svc.AllowLogin(ctx, "alice@example.com", "1.2.3.4")
	assert.True(t, errors.Is(err, models.ErrRateLimited), "email match is case-insensitive")

	// Same email from another address is counted separately
	assert.NoError(t, svc.AllowLogin(ctx, "alice@example.com", "5.6.7.8"))

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AllowPasswordReset(ctx, "1.2.3.4"))
	}
	err = svc.AllowPasswordReset(ctx, "1.2.3.4")
	assert.True(t, errors.Is(err, models.ErrRateLimited))
}
