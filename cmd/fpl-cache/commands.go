package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/harshcurious/fpl-analytics/pkg/prefetch"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"github.com/spf13/cobra"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		noStale bool
		query   []string
	)

	cmd := &cobra.Command{
		Use:   "fetch <endpoint>",
		Short: "Print an API endpoint through the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			values := url.Values{}
			for _, q := range query {
				name, value, ok := strings.Cut(q, "=")
				if !ok {
					return fmt.Errorf("query %q must be name=value", q)
				}
				values.Add(name, value)
			}

			l := upstream.NewEndpointLoader(a.client, args[0], values)
			key, err := l.Key()
			if err != nil {
				return err
			}

			fetchOpts := slices.Clip(a.fetchOpts)
			if noStale {
				fetchOpts = append(fetchOpts, fetch.WithoutStaleFallback())
			}
			res, err := a.orch.Fetch(cmd.Context(), key, l, fetchOpts...)
			if err != nil {
				return err
			}

			cmd.PrintErrf("origin=%s stale=%t stored_at=%s\n", res.Origin, res.Stale, res.StoredAt.Format(time.RFC3339))
			_, err = cmd.OutOrStdout().Write(append(res.Payload, '\n'))
			return err
		},
	}

	cmd.Flags().BoolVar(&noStale, "no-stale", false, "fail instead of serving a stale entry")
	cmd.Flags().StringArrayVar(&query, "query", nil, "query parameter as name=value (repeatable)")
	return cmd
}

func newWarmCmd(opts *rootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "warm [endpoint...]",
		Short: "Load endpoints into the cache (defaults to server.warm)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			endpoints := args
			if len(endpoints) == 0 {
				endpoints = a.cfg.Server.Warm
			}
			jobs, err := prefetch.EndpointJobs(a.client, endpoints...)
			if err != nil {
				return err
			}
			for i := range jobs {
				jobs[i].Options = a.fetchOpts
			}

			cfg := prefetch.DefaultConfig()
			if concurrency > 0 {
				cfg.MaxConcurrency = concurrency
			}
			summary, err := prefetch.NewWarmer(a.orch, cfg).Warm(cmd.Context(), jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range summary.Results {
				if r.Err != nil {
					fmt.Fprintf(out, "%-24s error: %v\n", r.Name, r.Err)
					continue
				}
				fmt.Fprintf(out, "%-24s %s\n", r.Name, r.Origin)
			}
			return summary.Err()
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum parallel loads (default 4)")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Purge(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache purged")
			return nil
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete entries expired for longer than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("retention") {
				retention = a.cfg.Cache.StaleRetention()
			}
			deleted, err := cache.Sweep(cmd.Context(), a.store, time.Now(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "keep entries expired for less than this (default cache.stale_retention_seconds)")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number and size of cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Backend string `json:"backend"`
				cache.Stats
			}{a.cfg.Cache.Backend, stats})
		},
	}
}
