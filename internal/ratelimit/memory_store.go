package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory sliding window store. It is the
// degraded fallback when Redis is unreachable: per-instance counting,
// no cross-instance coordination.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*slidingWindow

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewMemoryStore creates a new in-memory store with automatic cleanup.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*slidingWindow),
		cleanupInterval: 1 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// RecordTimestampIfAllowed atomically prunes, checks and records.
func (s *MemoryStore) RecordTimestampIfAllowed(_ context.Context, key string, timestamp time.Time, window time.Duration, limit int) (bool, int64, error) {
	s.mu.Lock()
	sw, exists := s.windows[key]
	if !exists {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	s.mu.Unlock()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := timestamp.Add(-window)
	valid := sw.timestamps[:0]
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	sw.timestamps = valid

	if len(sw.timestamps) >= limit {
		return false, int64(len(sw.timestamps)), nil
	}

	sw.timestamps = append(sw.timestamps, timestamp)
	return true, int64(len(sw.timestamps)), nil
}

// CountInWindow returns the number of timestamps within the window.
func (s *MemoryStore) CountInWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.RLock()
	sw, exists := s.windows[key]
	s.mu.RUnlock()

	if !exists {
		return 0, nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := time.Now().Add(-window)
	valid := sw.timestamps[:0]
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	sw.timestamps = valid

	return int64(len(sw.timestamps)), nil
}

// cleanupLoop runs periodically to remove empty windows.
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sw := range s.windows {
		sw.mu.Lock()
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
		}
		sw.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
