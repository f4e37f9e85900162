package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreReads tracks Get results by backend and result (hit, miss, corrupt, error)
	StoreReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpl_cache_store_reads_total",
			Help: "Total number of cache store reads by result",
		},
		[]string{"backend", "result"},
	)

	// StoreWrites tracks successful Put calls by backend
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpl_cache_store_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"backend"},
	)

	// EntrySize tracks the serialized size of written entries
	EntrySize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fpl_cache_entry_size_bytes",
			Help:    "Serialized size of written cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"backend"},
	)

	// StoreErrors tracks cache store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpl_cache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put", "delete", "list", "purge"
	)

	// ConditionalRequestsSent tracks revalidation requests carrying If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fpl_conditional_requests_total",
			Help: "Total number of conditional requests sent upstream",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fpl_304_responses_total",
			Help: "Total number of upstream 304 Not Modified responses",
		},
	)
)
