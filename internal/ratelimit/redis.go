package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// allowScript performs prune, check and record as one atomic operation, so
// concurrent instances sharing the store cannot race past the threshold.
// Returns {allowed, count, retry_after_ms}. Times are unix milliseconds.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, count, retry}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RedisLimiter keeps the sliding window in a per-identity sorted set so the
// limit holds globally across horizontally scaled instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter builds a shared-store limiter.
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "login_rl:"
	}
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RedisLimiter{client: client, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + strings.ReplaceAll(key, " ", "_")
}

// Allow runs the atomic check-and-record script.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UnixMilli()
	raw, err := allowScript.Run(ctx, l.client,
		[]string{l.key(key)},
		now, l.window.Milliseconds(), l.max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit allow %s: %w", key, err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("rate limit allow %s: unexpected script reply", key)
	}

	res := Result{
		Allowed:    raw[0] == 1,
		Count:      int(raw[1]),
		Remaining:  l.max - int(raw[1]),
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// Status reports the current window without consuming a slot.
func (l *RedisLimiter) Status(ctx context.Context, key string) (Result, error) {
	redisKey := l.key(key)
	now := time.Now().UnixMilli()
	cutoff := now - l.window.Milliseconds()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff))
	card := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit status %s: %w", key, err)
	}

	count := int(card.Val())
	res := Result{
		Allowed:   count < l.max,
		Count:     count,
		Remaining: l.max - count,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed && len(oldest.Val()) > 0 {
		retryMs := int64(oldest.Val()[0].Score) + l.window.Milliseconds() - now
		res.RetryAfter = time.Duration(retryMs) * time.Millisecond
	}
	return res, nil
}

// Clear deletes one identity's window.
func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("rate limit clear %s: %w", key, err)
	}
	return nil
}

// ClearAll deletes every window under the limiter's prefix.
func (l *RedisLimiter) ClearAll(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("rate limit clear all: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("rate limit clear all: %w", err)
	}
	return nil
}
