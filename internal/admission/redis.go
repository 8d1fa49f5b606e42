package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// windowScript keeps one sorted-set member per admission of KEYS[1], scored
// by its time in milliseconds. It drops members at or before ARGV[2], then
// adds ARGV[4] at ARGV[1] when fewer than ARGV[3] remain. Returns
// {allowed, count, oldest score}.
var windowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, count, tonumber(oldest[2])}
`)

// RedisLimiter is the sliding-window limiter shared across instances
// through Redis. The script runs atomically on the server.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL (redis://host:port/db).
func NewRedisLimiter(redisURL string, limit int, period time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, limit, period), nil
}

func NewRedisLimiterWithClient(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		period: period,
		prefix: "veritas:ratelimit:",
		now:    time.Now,
	}
}

// Allow runs the window script. On a Redis error the request is allowed and
// the error returned so the caller can log it.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Quota, error) {
	now := r.now()
	ms := now.UnixMilli()
	res, err := windowScript.Run(ctx, r.client, []string{r.prefix + key},
		ms, ms-r.period.Milliseconds(), r.limit, uuid.NewString(), r.period.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Quota{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now.Add(r.period)},
			fmt.Errorf("redis rate limit check for %s failed (failing open): %w", key, err)
	}
	if len(res) != 3 {
		return Quota{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now.Add(r.period)},
			fmt.Errorf("redis rate limit check for %s: unexpected reply %v", key, res)
	}

	remaining := r.limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Quota{
		Allowed:   res[0] == 1,
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]).Add(r.period),
	}, nil
}

// Close closes the Redis connection pool.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
