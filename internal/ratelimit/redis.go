package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the exact-counting variant of the limiter. A Lua script
// increments and checks in one round trip, so concurrent requests cannot
// both slip under the limit the way the read-modify-write StoreLimiter
// allows. Selected when a Redis URL is configured.
//
// The increment always persists, matching StoreLimiter: rejected attempts
// keep the key hot until the window expires.
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	window time.Duration
	limit  int
}

const windowLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
    redis.call("PEXPIRE", key, ttl)
end

if count > limit then
    return 0
end
return 1
`

// NewRedisLimiter builds a limiter on an existing client.
func NewRedisLimiter(client *redis.Client, window time.Duration, limit int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisLimiter{
		redis:  client,
		script: redis.NewScript(windowLimitLuaScript),
		window: window,
		limit:  limit,
	}
}

// NewRedisLimiterFromURL connects to Redis and verifies the connection
// before returning a limiter.
func NewRedisLimiterFromURL(redisURL string, window time.Duration, limit int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisLimiter(client, window, limit), nil
}

// Allow atomically increments the counter for key and checks the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := l.script.Run(ctx, l.redis,
		[]string{"ratelimit:" + key},
		l.limit,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.redis.Close()
}
