// Package redis provides Redis connection utilities.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config contains Redis connection configuration.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect establishes a Redis client with retry logic. The returned client is
// long-lived and shared by reference.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			slog.Info("connected to redis", "attempts", attempt)
			return client, nil
		} else {
			lastErr = err
			_ = client.Close()
		}

		if attempt < attempts {
			slog.Warn("failed to ping redis, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", lastErr,
			)
			select {
			case <-time.After(cfg.RetryInterval):
			case <-ctx.Done():
				return nil, fmt.Errorf("redis connection cancelled: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("connect to redis after %d attempts: %w", attempts, lastErr)
}
