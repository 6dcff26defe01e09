package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/Sternrassler/axiom-client/pkg/series"
	"github.com/Sternrassler/axiom-client/pkg/session"
	"github.com/Sternrassler/axiom-client/pkg/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// EndpointTagData serves current, raw and processed tag data.
const EndpointTagData = "/getTagData2"

// Prometheus metrics for paginated fetches.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_pagination_pages_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_pagination_fetches_total",
		Help: "Completed paginated fetches by result",
	}, []string{"result"})

	pagesPerFetch = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "axiom_pagination_pages_per_fetch",
		Help:    "Number of pages needed to complete a fetch",
		Buckets: []float64{1, 2, 5, 10, 50, 100, 1000},
	})
)

// Config holds engine configuration.
type Config struct {
	// MaxPages bounds the number of pages of a single fetch.
	MaxPages int

	// PageTimeout bounds a single page request. Zero means no per-page limit.
	PageTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages:    10000,
		PageTimeout: 60 * time.Second,
	}
}

// TokenSource supplies the session token for each page request.
type TokenSource interface {
	RequireToken(op string) (string, error)
}

// Query is the immutable part of a paginated request.
type Query struct {
	Endpoint          string   `json:"-"`
	Tags              []string `json:"tags"`
	StartTime         string   `json:"startTime,omitempty"`
	EndTime           string   `json:"endTime,omitempty"`
	AggregateName     string   `json:"aggregateName,omitempty"`
	AggregateInterval string   `json:"aggregateInterval,omitempty"`
	MaxSize           int      `json:"maxSize,omitempty"`
}

type pageRequest struct {
	UserToken string `json:"userToken"`
	Query
	Continuation json.RawMessage `json:"continuation"`
}

type pageResponse struct {
	Data         series.Dataset  `json:"data"`
	Continuation json.RawMessage `json:"continuation"`
}

// Engine runs continuation-paginated queries.
type Engine struct {
	poster transport.Poster
	tokens TokenSource
	config Config
	logger zerolog.Logger
}

// NewEngine creates a new pagination engine.
func NewEngine(poster transport.Poster, tokens TokenSource, config Config) *Engine {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}

	return &Engine{
		poster: poster,
		tokens: tokens,
		config: config,
		logger: logging.NewLogger(logging.ComponentPagination),
	}
}

// MaxPages returns the page guard of a single fetch.
func (e *Engine) MaxPages() int {
	return e.config.MaxPages
}

// FetchAll runs q to completion and returns the merged dataset.
func (e *Engine) FetchAll(ctx context.Context, q Query) (series.Dataset, error) {
	if q.Endpoint == "" {
		q.Endpoint = EndpointTagData
	}

	start := time.Now()
	fetchID := uuid.NewString()
	logger := e.logger.With().
		Str("fetch_id", fetchID).
		Str("endpoint", q.Endpoint).
		Int("tags", len(q.Tags)).
		Logger()

	// The fetch is bound to the token it starts with.
	bound, err := e.tokens.RequireToken("fetch " + q.Endpoint)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	dataset := series.Dataset{}
	var continuation json.RawMessage

	for page := 1; ; page++ {
		if page > e.config.MaxPages {
			fetchesTotal.WithLabelValues("exhausted").Inc()
			logger.Error().Int("max_pages", e.config.MaxPages).Msg("Page limit reached - aborting fetch")
			return nil, &PaginationExhaustedError{Endpoint: q.Endpoint, Pages: e.config.MaxPages}
		}

		if err := ctx.Err(); err != nil {
			return nil, e.cancelled(logger, page-1, err)
		}

		resp, err := e.fetchPage(ctx, q, bound, continuation)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, e.cancelled(logger, page-1, ctxErr)
			}
			fetchesTotal.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Int("page", page).Msg("Page fetch failed - discarding fetch")
			return nil, fmt.Errorf("%s page %d: %w", q.Endpoint, page, err)
		}

		pagesTotal.WithLabelValues(q.Endpoint).Inc()
		dataset.Merge(resp.Data)

		logger.Debug().
			Int("page", page).
			Int("fragment_tags", len(resp.Data)).
			Msg("Page merged")

		if IsComplete(resp.Continuation) {
			fetchesTotal.WithLabelValues("ok").Inc()
			pagesPerFetch.Observe(float64(page))
			logger.Info().
				Int("pages", page).
				Int("samples", dataset.Len()).
				Dur("duration", time.Since(start)).
				Msg("Fetch complete")
			return dataset, nil
		}
		continuation = resp.Continuation
	}
}

// fetchPage sends a single page request with a freshly read token. A token
// other than bound means the session changed mid-fetch.
func (e *Engine) fetchPage(ctx context.Context, q Query, bound string, continuation json.RawMessage) (*pageResponse, error) {
	op := "fetch " + q.Endpoint
	token, err := e.tokens.RequireToken(op)
	if err != nil {
		return nil, err
	}
	if token != bound {
		return nil, &session.AuthenticationError{Op: op, Err: session.ErrSessionChanged}
	}

	if e.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.PageTimeout)
		defer cancel()
	}

	req := pageRequest{
		UserToken:    token,
		Query:        q,
		Continuation: continuation,
	}

	var resp pageResponse
	if err := e.poster.Post(ctx, q.Endpoint, req, &resp); err != nil {
		if transport.IsAuth(err) {
			return nil, &session.AuthenticationError{Op: op, Err: err}
		}
		return nil, err
	}
	return &resp, nil
}

func (e *Engine) cancelled(logger zerolog.Logger, pages int, err error) error {
	fetchesTotal.WithLabelValues("cancelled").Inc()
	logger.Info().Int("pages", pages).Err(err).Msg("Fetch cancelled - discarding partial data")
	return &CancellationError{Pages: pages, Err: err}
}

// IsComplete reports whether a continuation value ends a query: absent,
// null and the empty string all do.
func IsComplete(continuation json.RawMessage) bool {
	c := bytes.TrimSpace(continuation)
	return len(c) == 0 || bytes.Equal(c, []byte("null")) || bytes.Equal(c, []byte(`""`))
}
