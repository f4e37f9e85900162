package upstream

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultRetryAfter is the block applied after a 429 without a usable Retry-After header.
const DefaultRetryAfter = 30 * time.Second

// Prometheus metrics for rate limit tracking.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_upstream_rate_limit_blocks_total",
		Help: "Total number of requests refused locally due to an open Retry-After window",
	})

	rateLimitWindowSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fpl_upstream_retry_after_seconds",
		Help: "Length of the most recent Retry-After window announced by the upstream",
	})
)

// RateLimitState is the upstream's most recent rate limit announcement.
type RateLimitState struct {
	// BlockedUntil is when requests may be sent again.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state was last changed.
	LastUpdate time.Time `json:"last_update"`

	// StatusCode is the response that opened the window.
	StatusCode int `json:"status_code,omitempty"`
}

// IsBlocked reports whether requests must be held back at now.
func (s RateLimitState) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the duration until requests are allowed again.
// Returns 0 if the window has already passed.
func (s RateLimitState) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RateLimiter gates requests on Retry-After windows announced by the upstream.
// State is process-local.
type RateLimiter struct {
	mu     sync.Mutex
	state  RateLimitState
	now    func() time.Time
	logger zerolog.Logger
}

// NewRateLimiter creates a rate limiter with an open gate.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		now:    time.Now,
		logger: logger,
	}
}

// State returns a copy of the current state.
func (r *RateLimiter) State() RateLimitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// UpdateFromResponse records a Retry-After window from a 429 or 503 response.
// Other responses leave the state untouched.
func (r *RateLimiter) UpdateFromResponse(status int, headers http.Header) {
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}

	now := r.now()
	wait, ok := parseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		if status != http.StatusTooManyRequests {
			// A 503 without Retry-After is an ordinary server error
			return
		}
		wait = DefaultRetryAfter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	until := now.Add(wait)
	if until.After(r.state.BlockedUntil) {
		r.state.BlockedUntil = until
	}
	r.state.LastUpdate = now
	r.state.StatusCode = status

	rateLimitWindowSeconds.Set(wait.Seconds())
	r.logger.Warn().
		Int("status_code", status).
		Dur("retry_after", wait).
		Time("blocked_until", r.state.BlockedUntil).
		Msg("Upstream rate limit announced")
}

// Allow reports whether a request may be sent now. When it may not, the
// remaining wait is returned.
func (r *RateLimiter) Allow() (bool, time.Duration) {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	now := r.now()
	if !state.IsBlocked(now) {
		return true, 0
	}

	wait := state.TimeUntilReset(now)
	rateLimitBlocksTotal.Inc()
	r.logger.Debug().
		Dur("wait_duration", wait).
		Msg("Upstream rate limit in effect - refusing request")
	return false, wait
}

// parseRetryAfter reads a Retry-After value in delta-seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
