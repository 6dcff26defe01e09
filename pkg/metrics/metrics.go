// Package metrics exposes the Prometheus metrics of the Axiom client.
// All metrics are defined in their respective packages (transport, session,
// pagination, cache, ratelimit, livefeed, client) and registered via
// promauto on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Axiom client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric the client registers.
var Names = []string{
	// pkg/transport
	"axiom_requests_total",
	"axiom_request_duration_seconds",
	"axiom_errors_total",
	"axiom_retries_total",
	"axiom_retry_backoff_seconds",
	"axiom_retry_exhausted_total",

	// pkg/ratelimit
	"axiom_rate_limit_wait_seconds",
	"axiom_rate_limit_pauses_total",

	// pkg/session
	"axiom_session_active",
	"axiom_session_operations_total",

	// pkg/pagination
	"axiom_pagination_pages_total",
	"axiom_pagination_fetches_total",
	"axiom_pagination_pages_per_fetch",

	// pkg/cache
	"axiom_cache_hits_total",
	"axiom_cache_misses_total",
	"axiom_cache_entries",
	"axiom_cache_errors_total",

	// pkg/livefeed
	"axiom_livefeed_polls_total",
	"axiom_livefeed_samples_total",

	// pkg/client
	"axiom_client_operations_total",
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/transport):
//   - axiom_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - axiom_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - axiom_errors_total{class} (Counter): Errors by class (client, auth, rate_limit, unavailable, server, network, decode)
//
// Retry Metrics (pkg/transport):
//   - axiom_retries_total{error_class} (Counter): Retry attempts (429 and 503 only)
//   - axiom_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - axiom_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - axiom_rate_limit_wait_seconds (Histogram): Time spent waiting for a request slot
//   - axiom_rate_limit_pauses_total (Counter): Retry-After pauses requested by the service
//
// Session Metrics (pkg/session):
//   - axiom_session_active (Gauge): 1 while a session token is held
//   - axiom_session_operations_total{operation, result} (Counter): Acquire and revoke outcomes
//
// Pagination Metrics (pkg/pagination):
//   - axiom_pagination_pages_total{endpoint} (Counter): Pages fetched
//   - axiom_pagination_fetches_total{result} (Counter): Fetches by result (ok, error, cancelled, exhausted)
//   - axiom_pagination_pages_per_fetch (Histogram): Pages needed per completed fetch
//
// Cache Metrics (pkg/cache):
//   - axiom_cache_hits_total{layer} (Counter): Metadata cache hits (memory, redis)
//   - axiom_cache_misses_total (Counter): Metadata cache misses
//   - axiom_cache_entries{layer} (Gauge): Entries held in memory
//   - axiom_cache_errors_total{operation} (Counter): Cache operation errors
//
// Live Feed Metrics (pkg/livefeed):
//   - axiom_livefeed_polls_total{result} (Counter): Live polls by result
//   - axiom_livefeed_samples_total (Counter): Samples received from the live feed
//
// Example Prometheus Queries:
//
//	# Metadata cache hit rate
//	sum(rate(axiom_cache_hits_total[5m])) /
//	(sum(rate(axiom_cache_hits_total[5m])) + sum(rate(axiom_cache_misses_total[5m])))
//
//	# Failed fetches
//	rate(axiom_pagination_fetches_total{result!="ok"}[5m])
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(axiom_request_duration_seconds_bucket[5m]))
