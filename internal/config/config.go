// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides.
// NOTIFY_SERVER__PORT maps to server.port ("__" is the nesting delimiter,
// single underscores stay part of the key).
const envPrefix = "NOTIFY_"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Log       LogConfig       `koanf:"log"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Queue     QueueConfig     `koanf:"queue"`
	Channels  ChannelsConfig  `koanf:"channels"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// RedisConfig contains settings for the rate limiter backing store.
type RedisConfig struct {
	URL            string        `koanf:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains token validation settings.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key"`
}

// RateLimitConfig contains admission rate limiting settings.
type RateLimitConfig struct {
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
}

// QueueConfig contains delivery queue and worker pool settings.
type QueueConfig struct {
	NumWorkers        int           `koanf:"num_workers"`
	BatchSize         int           `koanf:"batch_size"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	LockTimeout       time.Duration `koanf:"lock_timeout"`
	Retention         time.Duration `koanf:"retention"`
}

// ChannelsConfig contains per-channel delivery settings. Channel availability
// is derived from the presence of this configuration, not from health checks.
type ChannelsConfig struct {
	Email   EmailConfig   `koanf:"email"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// EmailConfig contains SMTP transport settings. The email channel is
// available only when host and from address are both set.
type EmailConfig struct {
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// WebhookConfig contains outbound webhook settings. The webhook channel is
// available only when the target URL is set.
type WebhookConfig struct {
	URL         string        `koanf:"url"`
	BearerToken string        `koanf:"bearer_token"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
}

// Default returns a Config populated with sane defaults. Load unmarshals
// file and environment values over it, so absent keys keep these values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Redis: RedisConfig{
			ConnectTimeout: 30 * time.Second,
			RetryAttempts:  3,
			RetryInterval:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 20,
			Window:      60 * time.Second,
		},
		Queue: QueueConfig{
			NumWorkers:        5,
			BatchSize:         100,
			PollInterval:      5 * time.Second,
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        5 * time.Minute,
			BackoffMultiplier: 2.0,
			LockTimeout:       5 * time.Minute,
			Retention:         24 * time.Hour,
		},
		Channels: ChannelsConfig{
			Email: EmailConfig{
				SMTPPort: 587,
			},
			Webhook: WebhookConfig{
				Timeout:   10 * time.Second,
				RateLimit: 10,
			},
		},
	}
}

// Load reads configuration from the optional YAML file at path, then applies
// NOTIFY_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.JWT.SecretKey == "" {
		return errors.New("config: jwt.secret_key is required")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("config: rate_limit.max_requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: rate_limit.window must be positive")
	}
	if c.Queue.NumWorkers <= 0 {
		return errors.New("config: queue.num_workers must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("config: queue.max_attempts must be positive")
	}
	return nil
}

func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
