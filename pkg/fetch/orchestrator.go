// Package fetch implements the read-through orchestrator: look up the cache,
// serve fresh entries, revalidate stale ones, and otherwise load from the
// upstream exactly once per key no matter how many callers ask at the same time.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Origin tells where a result came from.
type Origin int

const (
	// OriginCache means the payload was served from the store without contacting the upstream.
	OriginCache Origin = iota + 1

	// OriginRevalidated means the upstream confirmed the cached payload and its TTL was renewed.
	OriginRevalidated

	// OriginUpstream means the payload was freshly loaded and stored.
	OriginUpstream
)

// String returns the lower-case origin name.
func (o Origin) String() string {
	switch o {
	case OriginCache:
		return "cache"
	case OriginRevalidated:
		return "revalidated"
	case OriginUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Result is the answer to a Fetch call.
type Result struct {
	Payload  json.RawMessage
	Origin   Origin
	StoredAt time.Time
	Metadata map[string]string

	// Stale is set when the loader failed and an earlier entry was served instead.
	Stale bool

	// UpstreamErr is the loader failure behind a stale result.
	UpstreamErr error
}

// Orchestrator coordinates a Store and caller-supplied loaders.
// It is safe for concurrent use.
type Orchestrator struct {
	store      cache.Store
	group      singleflight.Group
	now        func() time.Time
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithDefaultTTL sets the TTL used when a call does not pass WithTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// New creates an orchestrator over store.
func New(store cache.Store, opts ...Option) *Orchestrator {
	if store == nil {
		panic("cache store cannot be nil")
	}

	o := &Orchestrator{
		store:      store,
		now:        time.Now,
		defaultTTL: cache.DefaultTTL,
		logger:     log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the underlying store.
func (o *Orchestrator) Store() cache.Store {
	return o.store
}

// DefaultTTL returns the TTL applied when a call does not choose one.
func (o *Orchestrator) DefaultTTL() time.Duration {
	return o.defaultTTL
}

type fetchConfig struct {
	ttl        time.Duration
	allowStale bool
	timeout    time.Duration
}

// FetchOption configures a single Fetch call.
type FetchOption func(*fetchConfig)

// WithTTL sets the validity window for an entry written by this call.
func WithTTL(ttl time.Duration) FetchOption {
	return func(c *fetchConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithoutStaleFallback makes a loader failure return ErrUpstreamUnavailable
// even when an earlier entry exists.
func WithoutStaleFallback() FetchOption {
	return func(c *fetchConfig) {
		c.allowStale = false
	}
}

// WithTimeout bounds the upstream work started by this call.
// It is the only deadline the orchestrator puts on a loader.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// outcome is the settled state of one flight, shared by all its waiters.
type outcome struct {
	entry  *cache.Entry
	origin Origin

	// fallback is the entry found before a failed load, if any.
	fallback *cache.Entry
	err      error
}

// Fetch returns the value for key, loading it through loader when the cache
// cannot answer.
//
// Concurrent calls for the same key share one flight. The first caller's loader,
// TTL and timeout drive the flight; every waiter receives the same payload.
// Cancelling ctx stops this caller waiting but does not cancel the flight.
func (o *Orchestrator) Fetch(ctx context.Context, key cache.Key, loader Loader, opts ...FetchOption) (*Result, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: malformed key %q", cache.ErrInvalidKeyInput, key)
	}
	if loader == nil {
		return nil, errors.New("loader cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := fetchConfig{ttl: o.defaultTTL, allowStale: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(key.String(), func() (any, error) {
		fctx := flightCtx
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, cfg.timeout)
			defer cancel()
		}
		return o.run(fctx, key, loader, cfg.ttl), nil
	})

	select {
	case <-ctx.Done():
		waitersCancelledTotal.Inc()
		o.logger.Debug().Str("key", key.String()).Msg("Caller stopped waiting for fetch")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedFlightsTotal.Inc()
		}
		return o.resolve(key, res.Val.(*outcome), cfg)
	}
}

// Invalidate drops the stored entry for key. The next Fetch loads it again.
func (o *Orchestrator) Invalidate(ctx context.Context, key cache.Key) error {
	return o.store.Delete(ctx, key)
}

// run is the body of a flight.
func (o *Orchestrator) run(ctx context.Context, key cache.Key, loader Loader, ttl time.Duration) *outcome {
	entry := o.lookup(ctx, key)

	revalidator, canRevalidate := loader.(Revalidator)
	if entry != nil {
		switch cache.Classify(entry, o.now(), canRevalidate) {
		case cache.Fresh:
			o.logger.Debug().Str("key", key.String()).Msg("Cache hit")
			return &outcome{entry: entry, origin: OriginCache}
		case cache.Stale:
			if out := o.revalidate(ctx, entry, revalidator, ttl); out != nil {
				return out
			}
		}
	}

	start := time.Now()
	payload, err := loader.FetchFull(ctx)
	loaderDuration.Observe(time.Since(start).Seconds())
	if err == nil && !json.Valid(payload.Data) {
		err = errors.New("loader returned invalid JSON payload")
	}
	if err != nil {
		loaderCallsTotal.WithLabelValues("error").Inc()
		return &outcome{fallback: entry, err: err}
	}
	loaderCallsTotal.WithLabelValues("success").Inc()

	o.logger.Info().Str("key", key.String()).Dur("ttl", ttl).Msg("Loaded from upstream")
	return &outcome{entry: o.save(ctx, key, payload, ttl), origin: OriginUpstream}
}

// lookup reads the stored entry. Misses, corrupt entries and read errors all
// return nil; corrupt entries are removed.
func (o *Orchestrator) lookup(ctx context.Context, key cache.Key) *cache.Entry {
	entry, err := o.store.Get(ctx, key)
	switch {
	case err == nil:
		return entry
	case errors.Is(err, cache.ErrNotFound):
		o.logger.Debug().Str("key", key.String()).Msg("Cache miss")
	case errors.Is(err, cache.ErrCorrupt):
		o.logger.Warn().Err(err).Str("key", key.String()).Msg("Corrupt cache entry, refetching")
		if derr := o.store.Delete(ctx, key); derr != nil {
			o.logger.Warn().Err(derr).Str("key", key.String()).Msg("Failed to remove corrupt entry")
		}
	default:
		o.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed, treating as miss")
	}
	return nil
}

// revalidate asks the loader whether entry is still current. A nil outcome
// means the caller must do a full fetch.
func (o *Orchestrator) revalidate(ctx context.Context, entry *cache.Entry, r Revalidator, ttl time.Duration) *outcome {
	key := entry.Key

	rv, err := r.Revalidate(ctx, entry.ValidationMetadata)
	if err != nil {
		revalidationsTotal.WithLabelValues("error").Inc()
		o.logger.Warn().Err(err).Str("key", key.String()).Msg("Revalidation failed, fetching in full")
		return nil
	}

	if rv.Changed {
		revalidationsTotal.WithLabelValues("changed").Inc()
		if rv.Payload == nil || !json.Valid(rv.Payload.Data) {
			o.logger.Debug().Str("key", key.String()).Msg("Upstream changed, fetching in full")
			return nil
		}
		o.logger.Info().Str("key", key.String()).Msg("Upstream changed, stored new payload")
		return &outcome{entry: o.save(ctx, key, *rv.Payload, ttl), origin: OriginUpstream}
	}

	revalidationsTotal.WithLabelValues("unchanged").Inc()
	renewed := entry.WithStoredAt(o.now(), rv.Metadata)
	renewed.TTLSeconds = int(ttl / time.Second)
	if err := o.store.Put(ctx, renewed); err != nil {
		o.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to renew cache entry")
	}

	o.logger.Info().Str("key", key.String()).Msg("Revalidated cache entry")
	return &outcome{entry: renewed, origin: OriginRevalidated}
}

// save stores a freshly loaded payload. A write failure is logged; the payload
// is still returned to the callers.
func (o *Orchestrator) save(ctx context.Context, key cache.Key, p Payload, ttl time.Duration) *cache.Entry {
	entry := cache.NewEntry(key, p.Data, o.now(), ttl, p.Metadata)
	if err := o.store.Put(ctx, entry); err != nil {
		o.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to store cache entry")
	}
	return entry
}

// resolve applies one caller's policy to the shared outcome.
func (o *Orchestrator) resolve(key cache.Key, out *outcome, cfg fetchConfig) (*Result, error) {
	if out.err == nil {
		fetchResultsTotal.WithLabelValues(out.origin.String(), "false").Inc()
		return newResult(out.entry, out.origin, false, nil), nil
	}

	if out.fallback != nil && cfg.allowStale {
		fetchResultsTotal.WithLabelValues(OriginCache.String(), "true").Inc()
		o.logger.Warn().
			Err(out.err).
			Str("key", key.String()).
			Bool("stale", true).
			Dur("age", out.fallback.Age(o.now())).
			Msg("Upstream failed, serving stale entry")
		return newResult(out.fallback, OriginCache, true, out.err), nil
	}

	fetchUnavailableTotal.Inc()
	o.logger.Error().
		Err(out.err).
		Str("key", key.String()).
		Bool("stale_available", out.fallback != nil).
		Msg("Upstream unavailable")
	return nil, &UpstreamError{Key: key, Err: out.err}
}

func newResult(e *cache.Entry, origin Origin, stale bool, upstreamErr error) *Result {
	return &Result{
		Payload:     bytes.Clone(e.Payload),
		Origin:      origin,
		StoredAt:    e.StoredAt,
		Metadata:    maps.Clone(e.ValidationMetadata),
		Stale:       stale,
		UpstreamErr: upstreamErr,
	}
}
