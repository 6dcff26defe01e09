// Package transport performs JSON POST calls against the Axiom Web API
// with request pacing, retry on back-off responses, and typed errors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/Sternrassler/axiom-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_requests_total",
		Help: "Total Axiom requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "axiom_request_duration_seconds",
		Help:    "Axiom request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_errors_total",
		Help: "Total Axiom errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "axiom_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// maxErrorBody bounds how much of an error response is kept as message.
const maxErrorBody = 512

// Poster is the transport boundary consumed by the session manager, the
// pagination engine and the live feed.
type Poster interface {
	Post(ctx context.Context, endpoint string, body, out any) error
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL of the Axiom Web API, e.g. "https://historian:55236/api/v2".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// RateLimit paces outgoing requests.
	RateLimit ratelimit.Config

	// Retry applies to 429 and 503 responses only.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "axiom-client/0.1.0",
		Timeout:   30 * time.Second,
		RateLimit: ratelimit.DefaultConfig(),
		Retry:     DefaultRetryConfig(),
	}
}

// Client sends JSON requests to the service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https (got %q)", u.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentTransport)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: ratelimit.NewLimiter(cfg.RateLimit, logging.NewLogger(logging.ComponentRateLimit)),
		config:  cfg,
		logger:  logger,
	}, nil
}

// BaseURL returns the normalized service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimitState returns a snapshot of the request pacing state.
func (c *Client) RateLimitState() ratelimit.State {
	return c.limiter.State()
}

// Post sends body as JSON to endpoint and decodes the response into out.
// out may be nil when the response body is not needed.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("body_bytes", len(payload)).
		Msg("Executing Axiom request")

	return retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return c.do(ctx, endpoint, payload, out)
	})
}

// do executes a single attempt.
func (c *Client) do(ctx context.Context, endpoint string, payload []byte, out any) (ErrorClass, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return ErrorClassNetwork, &TransportError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(endpoint, status).Inc()

		if errClass == ErrorClassRateLimit || errClass == ErrorClassUnavailable {
			c.limiter.PauseFromHeaders(resp.Header)
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(msg))
		if message == "" {
			message = resp.Status
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Axiom request error")

		return errClass, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    message,
		}
	}

	requestsTotal.WithLabelValues(endpoint, status).Inc()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return ErrorClassDecode, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response",
			Err:        err,
		}
	}

	return "", nil
}
