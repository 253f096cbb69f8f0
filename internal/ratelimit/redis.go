package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkIncrScript applies check-then-increment atomically on the server.
// Returns {allowed, count, pttl_ms}; the count is left untouched once it
// reached max, so the verdict travels in the first element.
var checkIncrScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return {0, tonumber(current), redis.call('PTTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, count, redis.call('PTTL', KEYS[1])}
`)

// incrScript increments unconditionally, setting the expiry on first hit.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisStore is the shared counter backend for multi-process deployments.
// Any backend error falls back to an embedded MemoryStore so rate
// limiting never becomes a single point of failure.
type RedisStore struct {
	client   *redis.Client
	fallback *MemoryStore
}

// NewRedisStore parses redisURL, verifies connectivity, and wraps the
// client with an in-memory fallback.
// Parameters:
//   - ctx: context for the connectivity probe.
//   - redisURL: redis connection URL.
// Returns:
//   - *RedisStore: store backed by redis with memory fallback.
//   - error: non-nil if the URL is invalid or the server unreachable.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:   client,
		fallback: NewMemoryStore(time.Minute),
	}, nil
}

// CheckIncr implements Store.
func (s *RedisStore) CheckIncr(ctx context.Context, key string, max int, window time.Duration) (bool, int64, time.Time, error) {
	res, err := checkIncrScript.Run(ctx, s.client, []string{key},
		max, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 3 {
		return s.fallback.CheckIncr(ctx, key, max, window)
	}
	return res[0] == 1, res[1], resetFromTTL(res[2], window), nil
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key},
		window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return s.fallback.Incr(ctx, key, window)
	}
	return res[0], resetFromTTL(res[1], window), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return s.fallback.Reset(ctx, key)
	}
	// Clear the fallback too in case earlier calls degraded to it.
	_ = s.fallback.Reset(ctx, key)
	return nil
}

// Close releases the redis connection and the fallback sweeper.
func (s *RedisStore) Close() error {
	s.fallback.Close()
	return s.client.Close()
}

// resetFromTTL converts a PTTL reply into an absolute reset time.
func resetFromTTL(pttlMs int64, window time.Duration) time.Time {
	if pttlMs <= 0 {
		return time.Now().Add(window)
	}
	return time.Now().Add(time.Duration(pttlMs) * time.Millisecond)
}
