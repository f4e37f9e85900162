// Package config loads the fpl-cache configuration.
//
// Values are layered: built-in defaults, then the YAML file, then FPL_*
// environment variables; command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/logging"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"gopkg.in/yaml.v3"
)

// Backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// DefaultCacheDir is the project-local cache root.
const DefaultCacheDir = ".cache/fpl"

// DefaultStaleRetention is how long entries are kept past their TTL as
// fallback material before a sweep removes them.
const DefaultStaleRetention = 7 * 24 * time.Hour

// Config is the complete configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CacheConfig selects and tunes the store.
type CacheConfig struct {
	Backend               string `yaml:"backend"`
	Directory             string `yaml:"directory"`
	TTLSeconds            int    `yaml:"ttl_seconds"`
	StaleRetentionSeconds int    `yaml:"stale_retention_seconds"`
	AllowStale            bool   `yaml:"allow_stale"`
}

// TTL returns the default entry TTL.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StaleRetention returns how long expired entries are retained.
func (c CacheConfig) StaleRetention() time.Duration {
	return time.Duration(c.StaleRetentionSeconds) * time.Second
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UpstreamConfig configures the FPL API client.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// ClientConfig converts to the upstream client configuration.
func (u UpstreamConfig) ClientConfig() upstream.Config {
	cfg := upstream.DefaultConfig()
	cfg.BaseURL = u.BaseURL
	cfg.UserAgent = u.UserAgent
	cfg.Timeout = time.Duration(u.TimeoutSeconds) * time.Second
	cfg.Retry.MaxAttempts = u.MaxRetries
	return cfg
}

// HistoryConfig locates the season CSV exports.
type HistoryConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ServerConfig configures `fpl-cache serve`.
type ServerConfig struct {
	Addr string   `yaml:"addr"`
	Warm []string `yaml:"warm"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Backend:               BackendFile,
			Directory:             DefaultCacheDir,
			TTLSeconds:            int(cache.DefaultTTL / time.Second),
			StaleRetentionSeconds: int(DefaultStaleRetention / time.Second),
			AllowStale:            true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Upstream: UpstreamConfig{
			BaseURL:        upstream.DefaultBaseURL,
			UserAgent:      upstream.DefaultUserAgent,
			TimeoutSeconds: int(upstream.DefaultTimeout / time.Second),
			MaxRetries:     upstream.DefaultRetryConfig().MaxAttempts,
		},
		History: HistoryConfig{
			DataDir: "data",
		},
		Server: ServerConfig{
			Addr: ":8080",
			Warm: []string{"bootstrap-static", "fixtures"},
		},
		Logging: LoggingConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML from %s: %w", path, err)
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvCacheDir       = "FPL_CACHE_DIR"
	EnvCacheTTL       = "FPL_CACHE_TTL_SECONDS"
	EnvCacheBackend   = "FPL_CACHE_BACKEND"
	EnvStaleRetention = "FPL_CACHE_STALE_RETENTION_SECONDS"
	EnvRedisAddr      = "FPL_REDIS_ADDR"
	EnvRedisPassword  = "FPL_REDIS_PASSWORD"
	EnvBaseURL        = "FPL_BASE_URL"
	EnvUserAgent      = "FPL_USER_AGENT"
	EnvDataDir        = "FPL_DATA_DIR"
	EnvServerAddr     = "FPL_SERVER_ADDR"
	EnvLogLevel       = "FPL_LOG_LEVEL"
)

// ApplyEnv overlays environment variables using lookup (os.LookupEnv in
// production). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str(EnvCacheDir, &c.Cache.Directory)
	str(EnvCacheBackend, &c.Cache.Backend)
	str(EnvRedisAddr, &c.Redis.Addr)
	str(EnvRedisPassword, &c.Redis.Password)
	str(EnvBaseURL, &c.Upstream.BaseURL)
	str(EnvUserAgent, &c.Upstream.UserAgent)
	str(EnvDataDir, &c.History.DataDir)
	str(EnvServerAddr, &c.Server.Addr)
	str(EnvLogLevel, &c.Logging.Level)

	return errors.Join(
		num(EnvCacheTTL, &c.Cache.TTLSeconds),
		num(EnvStaleRetention, &c.Cache.StaleRetentionSeconds),
	)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Cache.Directory) == "" {
			errs = append(errs, errors.New("cache.directory is required for the file backend"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q", BackendFile, BackendRedis, c.Cache.Backend))
	}

	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds must be > 0, got %d", c.Cache.TTLSeconds))
	}
	if c.Cache.StaleRetentionSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache.stale_retention_seconds must be >= 0, got %d", c.Cache.StaleRetentionSeconds))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.UserAgent == "" {
		errs = append(errs, errors.New("upstream.user_agent is required"))
	}
	if c.Upstream.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_retries must be >= 1, got %d", c.Upstream.MaxRetries))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}
