package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) *RedisLimiter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, "login_rl:", 5, 10*time.Minute)
}

func TestRedisAllowThreshold(t *testing.T) {
	ctx := context.Background()
	limiter := newRedisLimiter(t)

	for i := 0; i < 5; i++ {
		res, err := limiter.Allow(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d should pass", i+1)
		assert.Equal(t, i+1, res.Count)
	}

	res, err := limiter.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Positive(t, res.RetryAfter)
}

func TestRedisStatusAndClear(t *testing.T) {
	ctx := context.Background()
	limiter := newRedisLimiter(t)

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "alice@example.com")
		require.NoError(t, err)
	}

	status, err := limiter.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 3, status.Count)
	assert.Equal(t, 2, status.Remaining)

	require.NoError(t, limiter.Clear(ctx, "alice@example.com"))

	status, err = limiter.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Count)
}

func TestRedisClearAll(t *testing.T) {
	ctx := context.Background()
	limiter := newRedisLimiter(t)

	_, err := limiter.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, limiter.ClearAll(ctx))

	for _, key := range []string{"alice@example.com", "bob@example.com"} {
		status, err := limiter.Status(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, status.Count)
	}
}
