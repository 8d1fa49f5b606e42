// Package admission decides whether a request may start: a global
// concurrency gate that never queues, then a per-client rate limit.
package admission

import (
	"context"
	"time"
)

// Quota is a limiter's answer for one key.
type Quota struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest admission counted for the key leaves the
	// window, freeing a slot.
	ResetAt time.Time
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use and must make the
// check-then-increment for a key atomic.
type Limiter interface {
	// Allow records one admission for key if the sliding window has room.
	// Returning an error signals a limiter malfunction; callers treat it as
	// fail-open.
	Allow(ctx context.Context, key string) (Quota, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(context.Context, string) (Quota, error) {
	return Quota{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
