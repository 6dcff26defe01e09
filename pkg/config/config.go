// Package config loads client settings from a file and AXIOM_* environment
// variables using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AXIOM_BASE_URL or
// AXIOM_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "AXIOM"

// Config holds all client settings.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Cache      CacheConfig      `mapstructure:"cache"`
	LiveFeed   LiveFeedConfig   `mapstructure:"live_feed"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SessionConfig holds login settings. Password is only ever read from the
// file or AXIOM_SESSION_PASSWORD and is never logged.
type SessionConfig struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Application string `mapstructure:"application"`
	TimeZone    string `mapstructure:"time_zone"`
}

// RateLimitConfig paces outgoing requests. Zero RequestsPerSecond disables
// pacing.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RetryConfig controls backoff for 429 and 503 responses.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// PaginationConfig bounds paginated fetches.
type PaginationConfig struct {
	MaxPages    int           `mapstructure:"max_pages"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
}

// CacheConfig controls the metadata cache. An empty RedisAddr keeps the
// cache in memory only.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MemorySize    int           `mapstructure:"memory_size"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// LiveFeedConfig holds the live feed mode and poll interval.
type LiveFeedConfig struct {
	Mode         string        `mapstructure:"mode"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from path (optional) and environment variables.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive (got %s)", c.Timeout))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must be >= 0 (got %v)", c.RateLimit.RequestsPerSecond))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Pagination.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("pagination.max_pages must be >= 1 (got %d)", c.Pagination.MaxPages))
	}
	if c.LiveFeed.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("live_feed.poll_interval must be at least 1s (got %s)", c.LiveFeed.PollInterval))
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// Logger returns the logging settings in the form logging.Setup takes.
func (c *Config) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("user_agent", "axiom-client/0.1.0")
	v.SetDefault("timeout", 30*time.Second)

	v.SetDefault("session.username", "")
	v.SetDefault("session.password", "")
	v.SetDefault("session.application", "Web API")
	v.SetDefault("session.time_zone", "GMT Standard Time")

	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("pagination.max_pages", 10000)
	v.SetDefault("pagination.page_timeout", 60*time.Second)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_size", 256)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("live_feed.mode", "AllValues")
	v.SetDefault("live_feed.poll_interval", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}
