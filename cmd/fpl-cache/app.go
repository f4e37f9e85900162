package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harshcurious/fpl-analytics/internal/config"
	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/harshcurious/fpl-analytics/pkg/fpl"
	"github.com/harshcurious/fpl-analytics/pkg/history"
	"github.com/harshcurious/fpl-analytics/pkg/logging"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// pinger is implemented by stores that can report readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

// statser is implemented by stores that can summarize their contents.
type statser interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// app holds the components a command works with.
type app struct {
	cfg       config.Config
	store     cache.Store
	orch      *fetch.Orchestrator
	client    *upstream.Client
	fpl       *fpl.Service
	history   *history.Loader
	fetchOpts []fetch.FetchOption
	redis     *redis.Client
	logger    zerolog.Logger
}

// rootOptions are the persistent flags plus the environment source.
type rootOptions struct {
	configPath string
	cacheDir   string
	cacheTTL   int
	backend    string
	debug      bool

	lookupEnv func(string) (string, bool)
}

// loadConfig layers defaults, file, environment and flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(o.lookupEnv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.Cache.Directory = o.cacheDir
	}
	if flags.Changed("cache-ttl") {
		cfg.Cache.TTLSeconds = o.cacheTTL
	}
	if flags.Changed("backend") {
		cfg.Cache.Backend = strings.ToLower(o.backend)
	}
	if o.debug {
		cfg.Logging.Level = string(logging.LevelDebug)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the store, client and orchestrator for a command.
func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Logging.Pretty, Output: cmd.ErrOrStderr()})

	a := &app{cfg: cfg, logger: logging.NewLogger("cli")}

	switch cfg.Cache.Backend {
	case config.BackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.store = cache.NewRedisStore(a.redis, cfg.Cache.StaleRetention(), logging.NewLogger("redisstore"))
	default:
		fs, err := cache.NewFileStore(cfg.Cache.Directory, logging.NewLogger("filestore"))
		if err != nil {
			return nil, err
		}
		a.store = fs
	}

	a.client, err = upstream.New(cfg.Upstream.ClientConfig())
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.orch = fetch.New(a.store,
		fetch.WithDefaultTTL(cfg.Cache.TTL()),
		fetch.WithLogger(logging.NewLogger("orchestrator")),
	)
	if !cfg.Cache.AllowStale {
		a.fetchOpts = append(a.fetchOpts, fetch.WithoutStaleFallback())
	}
	a.fpl = fpl.NewService(a.orch, a.client, a.fetchOpts...)
	a.history = history.NewLoader(cfg.History.DataDir, a.orch, a.fetchOpts...)

	a.logger.Debug().
		Str("backend", cfg.Cache.Backend).
		Str("directory", cfg.Cache.Directory).
		Dur("ttl", cfg.Cache.TTL()).
		Msg("Cache configured")
	return a, nil
}

// Close releases the Redis connection, if any.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// ping checks the store's readiness. Stores without a probe are always ready.
func (a *app) ping(ctx context.Context) error {
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// stats summarizes the store's contents.
func (a *app) stats(ctx context.Context) (cache.Stats, error) {
	s, ok := a.store.(statser)
	if !ok {
		return cache.Stats{}, errors.New("store does not report statistics")
	}
	return s.Stats(ctx)
}
