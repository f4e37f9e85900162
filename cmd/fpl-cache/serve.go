package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/harshcurious/fpl-analytics/pkg/fpl"
	"github.com/harshcurious/fpl-analytics/pkg/history"
	"github.com/harshcurious/fpl-analytics/pkg/metrics"
	"github.com/harshcurious/fpl-analytics/pkg/prefetch"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"github.com/spf13/cobra"
)

const (
	// requestBudget bounds the upstream work one request may start.
	requestBudget = 60 * time.Second

	readyTimeout    = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached API endpoints, derived datasets and history tables over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

// serve runs the HTTP server until ctx is done.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.warmOnStart(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", srv.Addr).
			Str("backend", a.cfg.Cache.Backend).
			Str("upstream", a.cfg.Upstream.BaseURL).
			Msg("Starting FPL cache server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// warmOnStart loads the configured endpoints so the first requests hit the cache.
func (a *app) warmOnStart(ctx context.Context) {
	if len(a.cfg.Server.Warm) == 0 {
		return
	}
	jobs, err := prefetch.EndpointJobs(a.client, a.cfg.Server.Warm...)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Invalid warm endpoints")
		return
	}
	for i := range jobs {
		jobs[i].Options = a.fetchOpts
	}

	summary, err := prefetch.NewWarmer(a.orch, prefetch.DefaultConfig()).Warm(ctx, jobs)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Cache warm-up interrupted")
		return
	}
	if failed := summary.Failed(); len(failed) > 0 {
		a.logger.Warn().Int("failed", len(failed)).Err(summary.Err()).Msg("Cache warm-up incomplete")
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", a.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/", a.apiHandler)
	mux.HandleFunc("GET /datasets/{name}", a.datasetHandler)
	mux.HandleFunc("GET /history/{season}/{table}", a.historyHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := a.ping(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// apiHandler serves /api/<endpoint> through the cache.
// Example: /api/element-summary/302 -> element-summary/302/
func (a *app) apiHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	if endpoint == "" {
		http.NotFound(w, r)
		return
	}

	l := upstream.NewEndpointLoader(a.client, endpoint, r.URL.Query())
	key, err := l.Key()
	if err != nil {
		a.writeError(w, err)
		return
	}

	opts := append(slices.Clip(a.fetchOpts), fetch.WithTimeout(requestBudget))
	res, err := a.orch.Fetch(r.Context(), key, l, opts...)
	if err != nil {
		a.writeError(w, err)
		return
	}

	setCacheHeaders(w, res)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Payload); err != nil {
		a.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Failed to write response")
	}
}

// datasetHandler serves the datasets derived from bootstrap-static and fixtures.
func (a *app) datasetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		data  any
		state *fetch.Result
		err   error
	)
	switch r.PathValue("name") {
	case "players":
		data, state, err = datasetRows(a.fpl.Players(ctx))
	case "teams":
		data, state, err = datasetRows(a.fpl.Teams(ctx))
	case "gameweeks":
		data, state, err = datasetRows(a.fpl.Gameweeks(ctx))
	case "fixtures":
		team, gw, perr := intParams(q.Get("team"), q.Get("event"))
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		data, err = a.fpl.Fixtures(ctx, team, gw)
	case "fdr":
		team, n, perr := intParams(q.Get("team"), q.Get("n"))
		if perr != nil || team <= 0 {
			http.Error(w, "team is required", http.StatusBadRequest)
			return
		}
		if n == 0 {
			n = 5
		}
		data, err = a.fpl.FixturesWithFDR(ctx, team, n)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	if state != nil {
		setCacheHeaders(w, state)
	}
	writeJSON(w, data)
}

// datasetRows splits a derived dataset into its rows and its cache state.
func datasetRows[T any](ds *fpl.Dataset[T], err error) (any, *fetch.Result, error) {
	if err != nil {
		return nil, nil, err
	}
	return ds.Rows, &fetch.Result{Origin: ds.Origin, StoredAt: ds.StoredAt, Stale: ds.Stale}, nil
}

// historyHandler serves /history/<season>/<table>. "latest" picks the newest season.
func (a *app) historyHandler(w http.ResponseWriter, r *http.Request) {
	season := r.PathValue("season")
	if season == "latest" {
		season = ""
	}
	name := strings.TrimSuffix(r.PathValue("table"), ".csv") + ".csv"

	t, err := a.history.Table(r.Context(), season, name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, t)
}

func (a *app) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrInvalidKeyInput), errors.Is(err, history.ErrInvalidSeason):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case upstream.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, fetch.ErrUpstreamUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		a.logger.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func setCacheHeaders(w http.ResponseWriter, res *fetch.Result) {
	w.Header().Set("X-Cache-Origin", res.Origin.String())
	w.Header().Set("X-Cache-Stale", strconv.FormatBool(res.Stale))
	if !res.StoredAt.IsZero() {
		w.Header().Set("Last-Modified", res.StoredAt.UTC().Format(http.TimeFormat))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// intParams parses two optional integer query values; empty means 0.
func intParams(a, b string) (int, int, error) {
	x, err := optionalInt(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := optionalInt(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func optionalInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
