// Package metrics exposes the Prometheus metrics of the FPL cache.
// Metrics are defined with promauto in the packages that record them
// (cache, fetch, upstream, prefetch); this package serves them and
// documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Store Metrics (pkg/cache):
//   - fpl_cache_store_reads_total{backend, result} (Counter): Get results (hit, miss, corrupt, error)
//   - fpl_cache_store_writes_total{backend} (Counter): Entries written
//   - fpl_cache_entry_size_bytes{backend} (Histogram): Serialized entry size
//   - fpl_cache_store_errors_total{backend, operation} (Counter): Store operation errors
//   - fpl_conditional_requests_total (Counter): Conditional requests sent upstream
//   - fpl_304_responses_total (Counter): 304 Not Modified responses
//
// Orchestrator Metrics (pkg/fetch):
//   - fpl_fetch_results_total{origin, stale} (Counter): Fetch results by origin
//   - fpl_fetch_unavailable_total (Counter): Fetches with no data to return
//   - fpl_fetch_loader_calls_total{result} (Counter): Full upstream loads
//   - fpl_fetch_loader_duration_seconds (Histogram): Full load latency
//   - fpl_fetch_revalidations_total{outcome} (Counter): unchanged, changed, error
//   - fpl_fetch_shared_total (Counter): Calls answered by a shared flight
//   - fpl_fetch_waiters_cancelled_total (Counter): Callers that gave up waiting
//
// Upstream Metrics (pkg/upstream):
//   - fpl_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//   - fpl_upstream_request_duration_seconds{endpoint} (Histogram): Request latency
//   - fpl_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - fpl_upstream_retries_total{error_class} (Counter): Retry attempts
//   - fpl_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff waits
//   - fpl_upstream_retry_exhausted_total{error_class} (Counter): Requests that used every attempt
//   - fpl_upstream_rate_limit_blocks_total (Counter): Requests refused inside a Retry-After window
//   - fpl_upstream_retry_after_seconds (Gauge): Most recent Retry-After window
//
// Prefetch Metrics (pkg/prefetch):
//   - fpl_prefetch_jobs_total{outcome} (Counter): Warm jobs by origin or error
//   - fpl_prefetch_warm_duration_seconds (Histogram): Warm run duration
//
// Example Prometheus Queries:
//
//   # Share of fetches answered without a full upstream load
//   sum(rate(fpl_fetch_results_total{origin=~"cache|revalidated"}[5m])) /
//   sum(rate(fpl_fetch_results_total[5m]))
//
//   # Stale answers served while the API is down
//   rate(fpl_fetch_results_total{stale="true"}[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(fpl_upstream_request_duration_seconds_bucket[5m]))
