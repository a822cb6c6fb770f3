package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// FallbackStore routes to a primary store and degrades to a fallback
// when the primary errors. With a Redis primary and a memory fallback,
// limiting stays enforced per instance through a Redis outage instead
// of failing requests.
type FallbackStore struct {
	primary  Store
	fallback Store
}

// NewFallbackStore creates a two-tier store.
func NewFallbackStore(primary, fallback Store) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
	}
}

// RecordTimestampIfAllowed tries the primary store first.
func (s *FallbackStore) RecordTimestampIfAllowed(ctx context.Context, key string, timestamp time.Time, window time.Duration, limit int) (bool, int64, error) {
	allowed, count, err := s.primary.RecordTimestampIfAllowed(ctx, key, timestamp, window, limit)
	if err == nil {
		return allowed, count, nil
	}

	slog.Warn("rate limit primary store unavailable, using fallback", "error", err)
	return s.fallback.RecordTimestampIfAllowed(ctx, key, timestamp, window, limit)
}

// CountInWindow tries the primary store first.
func (s *FallbackStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.primary.CountInWindow(ctx, key, window)
	if err == nil {
		return count, nil
	}

	slog.Warn("rate limit primary store unavailable, using fallback", "error", err)
	return s.fallback.CountInWindow(ctx, key, window)
}
