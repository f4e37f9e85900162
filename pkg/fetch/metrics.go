package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the read-through orchestrator.
var (
	fetchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_fetch_results_total",
		Help: "Total fetch results by origin and staleness",
	}, []string{"origin", "stale"})

	fetchUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_fetch_unavailable_total",
		Help: "Total fetches that failed with no cached fallback",
	})

	loaderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_fetch_loader_calls_total",
		Help: "Total full upstream loads by result",
	}, []string{"result"})

	loaderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpl_fetch_loader_duration_seconds",
		Help:    "Duration of full upstream loads",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_fetch_revalidations_total",
		Help: "Total revalidation attempts by outcome",
	}, []string{"outcome"}) // "unchanged", "changed", "error"

	sharedFlightsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_fetch_shared_total",
		Help: "Total fetch calls answered by a flight shared with other callers",
	})

	waitersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_fetch_waiters_cancelled_total",
		Help: "Total callers that stopped waiting before their flight settled",
	})
)
