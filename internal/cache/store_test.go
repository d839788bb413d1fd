package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_SetGetAndDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	value, err := store.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	// Second read of a consumed key fails
	_, err = store.GetAndDelete(ctx, "k")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := store.GetAndDelete(ctx, "k")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRedisStore_IncrementWithTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// Window reset starts a fresh count
	mr.FastForward(2 * time.Minute)
	count, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_SetGetAndDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	value, err := store.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	_, err = store.GetAndDelete(ctx, "k")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryStore_ExpiredKeyNotReturned(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", -time.Second))

	_, err := store.GetAndDelete(ctx, "k")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryStore_IncrementWithTTL(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	count, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Expired window restarts at one
	count, err = store.IncrementWithTTL(ctx, "expired", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = store.IncrementWithTTL(ctx, "expired", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
