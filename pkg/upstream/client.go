// Package upstream provides the HTTP client for the Fantasy Premier League API
// with retries, Retry-After gating and conditional requests, plus loaders that
// plug endpoints into the read-through orchestrator.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public FPL API root.
	DefaultBaseURL = "https://fantasy.premierleague.com/api"

	// DefaultUserAgent mimics a browser; the API rejects some bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps how much of a response is read into memory.
	maxBodySize = 64 << 20
)

// Prometheus metrics for upstream operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fpl_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// Retry controls attempts and backoff.
	Retry RetryConfig
}

// DefaultConfig returns the configuration used against the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
	}
}

// Response is a completed upstream response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Metadata holds the ETag/Last-Modified validators the response offered.
	Metadata map[string]string
}

// NotModified reports a 304 answer to a conditional request.
func (r *Response) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// Client is the FPL API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	config      Config
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "upstream").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		config:      cfg,
		rateLimiter: NewRateLimiter(logger),
		logger:      logger,
	}, nil
}

// URL builds the request URL for an endpoint. FPL endpoints end with a slash.
func (c *Client) URL(endpoint string, query url.Values) string {
	u := c.baseURL + "/" + strings.Trim(endpoint, "/") + "/"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches an endpoint. When meta carries validators the request is
// conditional and a 304 comes back as a Response with NotModified set.
// Failures after retries are *APIError values (possibly wrapped).
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, meta map[string]string) (*Response, error) {
	label := endpointLabel(endpoint)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	if allowed, wait := c.rateLimiter.Allow(); !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Dur("wait_duration", wait).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(label, "rate_limited").Inc()
		return nil, fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second))
	}

	target := c.URL(endpoint, query)
	conditional := cache.ShouldMakeConditionalRequest(meta)

	var result *Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		resp, err := c.do(ctx, target, meta, conditional)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(label, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}

		requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()
		c.rateLimiter.UpdateFromResponse(resp.StatusCode, resp.Header)

		if class := classifyStatus(resp.StatusCode); class != "" {
			errorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("FPL request error")
			return &APIError{
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    http.StatusText(resp.StatusCode),
			}
		}

		result = resp
		return nil
	}, func(class ErrorClass) time.Duration {
		if class != ErrorClassRateLimit {
			return 0
		}
		return c.rateLimiter.State().TimeUntilReset(time.Now())
	})
	if err != nil {
		return nil, err
	}

	if result.NotModified() {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified")
	}
	return result, nil
}

// do performs one HTTP attempt and reads the body.
func (c *Client) do(ctx context.Context, target string, meta map[string]string, conditional bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if conditional {
		cache.AddConditionalHeaders(req, meta)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("url", target).
			Str("etag", meta[cache.MetaETag]).
			Msg("Making conditional request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Metadata:   cache.MetadataFromResponse(resp),
	}, nil
}

// RateLimiter returns the client's Retry-After gate.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// endpointLabel keeps metric cardinality bounded: "element-summary/302" becomes "element-summary".
func endpointLabel(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
