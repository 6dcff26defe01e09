// Package client is the public Axiom Web API client. It ties the session
// manager, the pagination engine, the metadata cache and the live feed to
// one transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/cache"
	"github.com/Sternrassler/axiom-client/pkg/config"
	"github.com/Sternrassler/axiom-client/pkg/livefeed"
	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/Sternrassler/axiom-client/pkg/pagination"
	"github.com/Sternrassler/axiom-client/pkg/ratelimit"
	"github.com/Sternrassler/axiom-client/pkg/session"
	"github.com/Sternrassler/axiom-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "axiom_client_operations_total",
	Help: "Client operations by name and result",
}, []string{"operation", "result"})

// Client is the main Axiom client.
type Client struct {
	transport *transport.Client
	session   *session.Manager
	engine    *pagination.Engine
	cache     *cache.Manager
	feed      *livefeed.Feed
	config    Config
	logger    zerolog.Logger

	ownedRedis *redis.Client
}

// Config holds the client configuration.
type Config struct {
	// Transport configures HTTP, pacing and retries. BaseURL is required.
	Transport transport.Config

	// Pagination bounds paginated fetches.
	Pagination pagination.Config

	// Cache configures the metadata cache.
	Cache cache.Config

	// DisableCache sends every metadata request to the service.
	DisableCache bool

	// Redis adds a shared layer to the metadata cache (optional).
	Redis *redis.Client

	// PollInterval is the live feed poll interval used by NewLivePoller.
	PollInterval time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		Transport:    transport.DefaultConfig(baseURL),
		Pagination:   pagination.DefaultConfig(),
		Cache:        cache.DefaultConfig(),
		PollInterval: 5 * time.Second,
	}
}

// New creates a new Axiom client.
func New(cfg Config) (*Client, error) {
	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	if cfg.PollInterval < livefeed.MinPollInterval {
		cfg.PollInterval = DefaultConfig("").PollInterval
	}

	var metadata *cache.Manager
	if !cfg.DisableCache {
		metadata, err = cache.NewManager(cfg.Redis, cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
	}

	sessions := session.NewManager(tr)

	return &Client{
		transport: tr,
		session:   sessions,
		engine:    pagination.NewEngine(tr, sessions, cfg.Pagination),
		cache:     metadata,
		feed:      livefeed.New(tr, sessions),
		config:    cfg,
		logger:    logging.NewLogger(logging.ComponentClient),
	}, nil
}

// NewFromConfig creates a client from loaded settings. When a Redis address
// is configured the client owns the Redis connection and closes it in Close.
func NewFromConfig(settings *config.Config) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig(settings.BaseURL)
	cfg.Transport.UserAgent = settings.UserAgent
	cfg.Transport.Timeout = settings.Timeout
	cfg.Transport.RateLimit = ratelimit.Config{
		RequestsPerSecond: settings.RateLimit.RequestsPerSecond,
		Burst:             settings.RateLimit.Burst,
	}
	cfg.Transport.Retry = transport.RetryConfig{
		MaxAttempts:       settings.Retry.MaxAttempts,
		InitialBackoff:    settings.Retry.InitialBackoff,
		MaxBackoff:        settings.Retry.MaxBackoff,
		BackoffMultiplier: settings.Retry.BackoffMultiplier,
	}
	cfg.Pagination = pagination.Config{
		MaxPages:    settings.Pagination.MaxPages,
		PageTimeout: settings.Pagination.PageTimeout,
	}
	cfg.Cache = cache.Config{
		MemorySize: settings.Cache.MemorySize,
		TTL:        settings.Cache.TTL,
	}
	cfg.DisableCache = !settings.Cache.Enabled
	cfg.PollInterval = settings.LiveFeed.PollInterval

	var owned *redis.Client
	if settings.Cache.Enabled && settings.Cache.RedisAddr != "" {
		owned = redis.NewClient(&redis.Options{
			Addr:     settings.Cache.RedisAddr,
			Password: settings.Cache.RedisPassword,
			DB:       settings.Cache.RedisDB,
		})
		cfg.Redis = owned
	}

	c, err := New(cfg)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, err
	}
	c.ownedRedis = owned
	return c, nil
}

// AcquireSession logs in and makes the returned token the only active
// session token.
func (c *Client) AcquireSession(ctx context.Context, creds session.Credentials, opts session.Options) (string, error) {
	token, err := c.session.Acquire(ctx, creds, opts)
	record("acquire_session", err)
	return token, err
}

// RevokeSession closes the live feed and the session. It is a no-op without
// an active session.
func (c *Client) RevokeSession(ctx context.Context) error {
	if c.feed.State() == livefeed.StateActive {
		if err := c.feed.Revoke(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Live feed revocation failed during session revoke")
		}
	}

	err := c.session.Revoke(ctx)
	record("revoke_session", err)
	return err
}

// SessionState returns the session token lifecycle state.
func (c *Client) SessionState() session.State {
	return c.session.State()
}

// DefaultTags returns the tag selection used when a query names no tags.
func (c *Client) DefaultTags() []string {
	return c.session.DefaultTags()
}

// SetDefaultTags replaces the default tag selection.
func (c *Client) SetDefaultTags(tags []string) {
	c.session.SetDefaultTags(tags)
}

// LiveFeed returns the client's live feed.
func (c *Client) LiveFeed() *livefeed.Feed {
	return c.feed
}

// NewLivePoller polls the live feed every Config.PollInterval.
func (c *Client) NewLivePoller(handler livefeed.Handler) (*livefeed.Poller, error) {
	return livefeed.NewPoller(c.feed, c.config.PollInterval, handler)
}

// RateLimitState returns the current request pacing state.
func (c *Client) RateLimitState() ratelimit.State {
	return c.transport.RateLimitState()
}

// Close revokes the live feed and the session and releases an owned Redis
// connection.
func (c *Client) Close(ctx context.Context) error {
	var errs []error

	if err := c.feed.Revoke(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.session.Revoke(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.ownedRedis != nil {
		if err := c.ownedRedis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

func record(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}

// wrapAuth surfaces a 401/403 from the service as an AuthenticationError.
func wrapAuth(op string, err error) error {
	if err == nil {
		return nil
	}
	if session.IsAuthError(err) {
		var ae *session.AuthenticationError
		if errors.As(err, &ae) {
			return err
		}
		return &session.AuthenticationError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
