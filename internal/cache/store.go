package cache

import (
	"context"
	"time"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/go-redis/redis/v8"
)

// Store is the transient TTL-bound key/value contract backing OAuth flow state
// and rate-limit counters. The service works without a shared store, with the
// in-memory implementation degrading guarantees to per-process.
type Store interface {
	// SetWithTTL stores a value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// GetAndDelete returns a value and removes it atomically, so a key can be
	// consumed at most once. Returns models.ErrNotFound for missing or expired
	// keys.
	GetAndDelete(ctx context.Context, key string) (string, error)
	// IncrementWithTTL increments a counter, starting a fixed ttl window on
	// first increment, and returns the new count.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore is the shared implementation used when REDIS_URL is configured.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// First hit in the window starts the clock
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
