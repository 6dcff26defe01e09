package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "axiom_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a request slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	rateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axiom_rate_limit_pauses_total",
		Help: "Total number of server-requested pauses (Retry-After)",
	})
)

// MaxPause caps a Retry-After value so a misbehaving server cannot stall
// the client indefinitely.
const MaxPause = 2 * time.Minute

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or negative disables pacing.
	RequestsPerSecond float64

	// Burst is the bucket size (default: 1).
	Burst int
}

// DefaultConfig returns a conservative pacing configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// Limiter gates requests to the service.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewLimiter creates a new limiter.
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Wait blocks until a request may be sent or ctx is done.
// An active pause is honoured before the token bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if d := l.State().TimeUntilResume(); d > 0 {
		l.logger.Debug().Dur("pause", d).Msg("Waiting for server-requested pause")
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// PauseFromHeaders reads a Retry-After header given in seconds and pauses
// the limiter for that long. It returns the pause applied, 0 if none.
func (l *Limiter) PauseFromHeaders(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		l.logger.Debug().Str("retry_after", value).Msg("Ignoring unparseable Retry-After header")
		return 0
	}

	pause := time.Duration(seconds) * time.Second
	if pause > MaxPause {
		pause = MaxPause
	}
	l.Pause(pause)
	return pause
}

// Pause blocks new requests for d. A shorter pause never shortens an
// existing one.
func (l *Limiter) Pause(d time.Duration) {
	until := time.Now().Add(d)

	l.mu.Lock()
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.mu.Unlock()

	rateLimitPausesTotal.Inc()
	l.logger.Warn().Dur("pause", d).Msg("Service requested back-off - pausing requests")
}

// State returns a snapshot of the limiter.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		Rate:        float64(l.limiter.Limit()),
		Burst:       l.limiter.Burst(),
		PausedUntil: l.pausedUntil,
	}
}
