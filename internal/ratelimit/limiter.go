package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidLimit is returned when limit is <= 0.
	ErrInvalidLimit = errors.New("limit must be greater than 0")
	// ErrInvalidWindow is returned when window is <= 0.
	ErrInvalidWindow = errors.New("window must be greater than 0")
	// ErrInvalidKey is returned when the rate-limit key is empty.
	ErrInvalidKey = errors.New("rate limit key cannot be empty")
)

// SlidingWindowLimiter implements the webhook-ingress rate limiter (a
// per-webhook rateLimit field) on Redis sorted sets: one entry per allowed
// request, scored by timestamp, so a sliding window's occupancy can be
// counted and pruned without a separate cleanup job. The ingress handler
// keys it by "<organizationId>:<path>"; callers elsewhere in the job queue
// (worker concurrency) use their own key shapes — the limiter itself is
// key-agnostic.
type SlidingWindowLimiter struct {
	client *redis.Client
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(client *redis.Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
	}
}

// Allow reports whether one more request under key is within limit
// requests per window, atomically recording it if so.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if err := l.validate(key, limit, window); err != nil {
		return false, err
	}

	redisKey := l.redisKey(key, window)
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	// Use Lua script for atomic operations
	script := redis.NewScript(`
		redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
		local count = redis.call('ZCARD', KEYS[1])
		if tonumber(count) < tonumber(ARGV[3]) then
			redis.call('ZADD', KEYS[1], ARGV[2], ARGV[2])
			redis.call('EXPIRE', KEYS[1], ARGV[4])
			return 1
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, l.client, []string{redisKey},
		windowStart,             // ARGV[1] - window start
		now,                     // ARGV[2] - current timestamp
		limit,                   // ARGV[3] - limit
		int(window.Seconds())+1, // ARGV[4] - TTL
	).Result()

	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Result is 1 if allowed, 0 if blocked
	resultInt, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from rate limit script")
	}
	return resultInt == 1, nil
}

// GetUsage returns the current request count recorded against key within
// window, for surfacing on an X-RateLimit-Remaining-style response header.
func (l *SlidingWindowLimiter) GetUsage(ctx context.Context, key string, window time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}
	if window <= 0 {
		return 0, ErrInvalidWindow
	}

	redisKey := l.redisKey(key, window)
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	count, err := l.client.ZCount(ctx, redisKey, fmt.Sprint(windowStart), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}

	return count, nil
}

// Reset clears all recorded usage for key, across every window it has been
// tracked under — used by the webhook management API when an operator
// raises a webhook's rateLimit and wants the new ceiling to apply
// immediately instead of after the current window expires.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	pattern := fmt.Sprintf("ratelimit:%s:*", key)
	iter := l.client.Scan(ctx, 0, pattern, 0).Iterator()

	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	return nil
}

func (l *SlidingWindowLimiter) validate(key string, limit int64, window time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if limit <= 0 {
		return ErrInvalidLimit
	}
	if window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// redisKey namespaces key by its window size, so the same logical key
// tracked under two different windows (e.g. a webhook whose rateLimit
// window changed) never collides in Redis.
func (l *SlidingWindowLimiter) redisKey(key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:window_%d", key, int64(window.Seconds()))
}
