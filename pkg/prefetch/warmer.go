package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_prefetch_jobs_total",
		Help: "Total prefetch jobs by outcome",
	}, []string{"outcome"}) // origin name, or "error"

	warmDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpl_prefetch_warm_duration_seconds",
		Help:    "Duration of a full warm run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of jobs in flight.
	// The FPL API throttles aggressive clients; keep this small.
	MaxConcurrency int

	// Timeout bounds the upstream work of each job.
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration for the public API.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Job is one request to warm.
type Job struct {
	// Name labels the job in logs and results.
	Name    string
	Key     cache.Key
	Loader  fetch.Loader
	Options []fetch.FetchOption
}

// JobResult is the outcome of one job.
type JobResult struct {
	Name     string
	Key      cache.Key
	Origin   fetch.Origin
	Stale    bool
	Err      error
	Duration time.Duration
}

// Summary collects the results of a warm run in job order.
type Summary struct {
	Results []JobResult
}

// Count returns how many jobs finished with origin.
func (s *Summary) Count(origin fetch.Origin) int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil && r.Origin == origin {
			n++
		}
	}
	return n
}

// Failed returns the jobs that ended in an error.
func (s *Summary) Failed() []JobResult {
	var failed []JobResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err joins the errors of all failed jobs, or returns nil.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
	}
	return errors.Join(errs...)
}

// Warmer runs jobs through an orchestrator.
type Warmer struct {
	orch   *fetch.Orchestrator
	config Config
	logger zerolog.Logger
}

// NewWarmer creates a warmer.
func NewWarmer(orch *fetch.Orchestrator, config Config) *Warmer {
	if orch == nil {
		panic("prefetch: orchestrator cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	return &Warmer{
		orch:   orch,
		config: config,
		logger: log.With().Str("component", "prefetch").Logger(),
	}
}

// Warm runs every job and reports each outcome. Job failures are recorded in
// the summary, never returned. The returned error is non-nil only when ctx
// ended before all jobs were started; unstarted jobs carry ctx's error.
func (w *Warmer) Warm(ctx context.Context, jobs []Job) (*Summary, error) {
	start := time.Now()
	defer func() {
		warmDuration.Observe(time.Since(start).Seconds())
	}()

	w.logger.Info().
		Int("jobs", len(jobs)).
		Int("max_concurrency", w.config.MaxConcurrency).
		Msg("Starting cache warm")

	summary := &Summary{Results: make([]JobResult, len(jobs))}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		done int
	)
	g.SetLimit(w.config.MaxConcurrency)

	var ctxErr error
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			for j := i; j < len(jobs); j++ {
				summary.Results[j] = JobResult{Name: jobs[j].Name, Key: jobs[j].Key, Err: err}
				jobsTotal.WithLabelValues("error").Inc()
			}
			break
		}

		g.Go(func() error {
			res := w.run(ctx, job)
			summary.Results[i] = res

			mu.Lock()
			done++
			progress := done
			mu.Unlock()

			// Progress logging every 25 jobs
			if progress%25 == 0 {
				w.logger.Info().
					Int("done", progress).
					Int("total", len(jobs)).
					Float64("progress_pct", float64(progress)/float64(len(jobs))*100).
					Msg("Warm progress")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := len(summary.Failed())
	w.logger.Info().
		Int("jobs", len(jobs)).
		Int("upstream", summary.Count(fetch.OriginUpstream)).
		Int("revalidated", summary.Count(fetch.OriginRevalidated)).
		Int("cache", summary.Count(fetch.OriginCache)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm complete")

	return summary, ctxErr
}

func (w *Warmer) run(ctx context.Context, job Job) JobResult {
	opts := job.Options
	if w.config.Timeout > 0 {
		opts = append([]fetch.FetchOption{fetch.WithTimeout(w.config.Timeout)}, opts...)
	}

	start := time.Now()
	res, err := w.orch.Fetch(ctx, job.Key, job.Loader, opts...)
	out := JobResult{Name: job.Name, Key: job.Key, Err: err, Duration: time.Since(start)}

	if err != nil {
		jobsTotal.WithLabelValues("error").Inc()
		w.logger.Warn().
			Err(err).
			Str("job", job.Name).
			Str("key", job.Key.String()).
			Msg("Prefetch job failed")
		return out
	}

	out.Origin = res.Origin
	out.Stale = res.Stale
	jobsTotal.WithLabelValues(res.Origin.String()).Inc()
	w.logger.Debug().
		Str("job", job.Name).
		Str("origin", res.Origin.String()).
		Bool("stale", res.Stale).
		Msg("Prefetch job done")
	return out
}

// Warm is shorthand for NewWarmer with the given concurrency and the default timeout.
func Warm(ctx context.Context, orch *fetch.Orchestrator, jobs []Job, concurrency int) (*Summary, error) {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = concurrency
	return NewWarmer(orch, cfg).Warm(ctx, jobs)
}

// EndpointJobs builds one job per API endpoint.
func EndpointJobs(client *upstream.Client, endpoints ...string) ([]Job, error) {
	jobs := make([]Job, 0, len(endpoints))
	for _, endpoint := range endpoints {
		l := upstream.NewEndpointLoader(client, endpoint, nil)
		key, err := l.Key()
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", endpoint, err)
		}
		jobs = append(jobs, Job{Name: endpoint, Key: key, Loader: l})
	}
	return jobs, nil
}
