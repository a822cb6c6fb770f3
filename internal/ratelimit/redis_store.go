package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordScript prunes expired members, checks the limit and records the
// new timestamp in one atomic round trip. Scores and member prefixes are
// millisecond timestamps; the uuid suffix keeps same-millisecond
// requests from colliding on the member key.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now_ms, member)
	redis.call('PEXPIRE', key, window_ms)
	return {1, count + 1}
end
return {0, count}
`)

// RedisStore implements a sliding window store on Redis sorted sets,
// shared across all service instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Redis-backed sliding window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: "ratelimit:",
	}
}

// RecordTimestampIfAllowed atomically prunes, checks and records.
func (s *RedisStore) RecordTimestampIfAllowed(ctx context.Context, key string, timestamp time.Time, window time.Duration, limit int) (bool, int64, error) {
	member := strconv.FormatInt(timestamp.UnixMilli(), 10) + "-" + uuid.NewString()

	res, err := recordScript.Run(ctx, s.client,
		[]string{s.keyPrefix + key},
		timestamp.UnixMilli(),
		window.Milliseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit script: unexpected reply %v", res)
	}

	return res[0] == 1, res[1], nil
}

// CountInWindow returns the number of timestamps within the window.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	fullKey := s.keyPrefix + key

	if err := s.client.ZRemRangeByScore(ctx, fullKey, "0",
		strconv.FormatInt(now.Add(-window).UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("prune window: %w", err)
	}

	count, err := s.client.ZCard(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count window: %w", err)
	}
	return count, nil
}
