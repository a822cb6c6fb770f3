// Package ratelimit implements sliding window rate limiting with a Redis
// primary store and an in-memory degraded fallback.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Configuration errors.
var (
	ErrStoreRequired   = errors.New("ratelimit: store is required")
	ErrInvalidLimit    = errors.New("ratelimit: limit must be positive")
	ErrInvalidInterval = errors.New("ratelimit: window must be positive")
	ErrKeyRequired     = errors.New("ratelimit: key is required")
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the rate limit window resets.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store is a sliding window storage backend.
type Store interface {
	// RecordTimestampIfAllowed atomically prunes expired timestamps,
	// checks the limit and records the new timestamp when under it.
	// Returns whether the timestamp was recorded and the resulting count.
	RecordTimestampIfAllowed(ctx context.Context, key string, timestamp time.Time, window time.Duration, limit int) (bool, int64, error)

	// CountInWindow returns the number of timestamps within the window.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// SlidingWindow tracks individual request timestamps within a moving
// time window. More accurate than a fixed counter at the window edges.
type SlidingWindow struct {
	store  Store
	limit  int
	window time.Duration
}

// NewSlidingWindow creates a new sliding window rate limiter.
func NewSlidingWindow(store Store, limit int, window time.Duration) (*SlidingWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidInterval
	}

	return &SlidingWindow{
		store:  store,
		limit:  limit,
		window: window,
	}, nil
}

// Allow checks if a single request is allowed for the given key and
// consumes one slot when it is.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := time.Now()

	allowed, count, err := sw.store.RecordTimestampIfAllowed(ctx, key, now, sw.window, sw.limit)
	if err != nil {
		return nil, err
	}

	remaining := sw.limit - int(count)

	return &Result{
		Allowed:   allowed,
		Limit:     sw.limit,
		Remaining: max(0, remaining),
		ResetAt:   now.Add(sw.window),
	}, nil
}

// Status returns the current rate limit status without consuming a slot.
func (sw *SlidingWindow) Status(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, err := sw.store.CountInWindow(ctx, key, sw.window)
	if err != nil {
		return nil, err
	}

	remaining := sw.limit - int(count)

	return &Result{
		Allowed:   remaining > 0,
		Limit:     sw.limit,
		Remaining: max(0, remaining),
		ResetAt:   time.Now().Add(sw.window),
	}, nil
}
