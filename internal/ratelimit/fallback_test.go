package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err error
}

func (s *failingStore) RecordTimestampIfAllowed(context.Context, string, time.Time, time.Duration, int) (bool, int64, error) {
	return false, 0, s.err
}

func (s *failingStore) CountInWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, s.err
}

func TestFallbackStore_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := NewMemoryStore()
	defer primary.Close()
	fallback := NewMemoryStore()
	defer fallback.Close()

	store := NewFallbackStore(primary, fallback)
	ctx := context.Background()

	allowed, count, err := store.RecordTimestampIfAllowed(ctx, "k", time.Now(), time.Minute, 5)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)

	// The record landed in the primary, not the fallback.
	primaryCount, err := primary.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), primaryCount)

	fallbackCount, err := fallback.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fallbackCount)
}

func TestFallbackStore_DegradesOnPrimaryError(t *testing.T) {
	primary := &failingStore{err: errors.New("connection refused")}
	fallback := NewMemoryStore()
	defer fallback.Close()

	store := NewFallbackStore(primary, fallback)
	ctx := context.Background()

	allowed, count, err := store.RecordTimestampIfAllowed(ctx, "k", time.Now(), time.Minute, 5)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)

	fallbackCount, err := fallback.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fallbackCount)

	got, err := store.CountInWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestFallbackStore_LimitEnforcedThroughFallback(t *testing.T) {
	primary := &failingStore{err: errors.New("connection refused")}
	fallback := NewMemoryStore()
	defer fallback.Close()

	sw, err := NewSlidingWindow(NewFallbackStore(primary, fallback), 2, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := sw.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := sw.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}
