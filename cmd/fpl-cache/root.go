package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root command. lookupEnv is injected for tests.
func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	opts := &rootOptions{lookupEnv: lookupEnv}

	cmd := &cobra.Command{
		Use:          "fpl-cache",
		Short:        "Read-through cache for the Fantasy Premier League API",
		Long:         "fpl-cache keeps FPL API responses and derived datasets on disk or in Redis, serving them fresh, revalidated or stale.",
		Example:      rootCmdExample,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "fpl-cache.yaml", "path to the YAML config file")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "cache root directory (overrides config file and env var)")
	flags.IntVar(&opts.cacheTTL, "cache-ttl", 0, "default cache TTL in seconds (overrides config file and env var)")
	flags.StringVar(&opts.backend, "backend", "", "cache backend: file or redis")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newWarmCmd(opts),
		newPurgeCmd(opts),
		newSweepCmd(opts),
		newStatsCmd(opts),
	)
	return cmd
}

const rootCmdExample = `  # Serve the cache on :8080
  fpl-cache serve

  # Print bootstrap-static, loading it only if the cache cannot answer
  fpl-cache fetch bootstrap-static

  # Warm the cache for two endpoints
  fpl-cache warm bootstrap-static fixtures

  # Remove entries that expired more than a week ago
  fpl-cache sweep

  # Drop everything
  fpl-cache purge`
