// Package prefetch warms the cache by pushing many requests through the
// orchestrator in parallel.
//
// Jobs run on a bounded worker pool. A failing job never stops its siblings;
// every job's outcome is reported in the Summary. Jobs share the
// orchestrator's single-flight, so warming a key another caller is already
// loading does not cost a second upstream request.
//
// Example usage:
//
//	jobs, err := prefetch.EndpointJobs(client, "bootstrap-static", "fixtures")
//	summary, err := prefetch.NewWarmer(orch, prefetch.DefaultConfig()).Warm(ctx, jobs)
//	if err := summary.Err(); err != nil {
//		log.Warn().Err(err).Msg("Some endpoints could not be warmed")
//	}
package prefetch
