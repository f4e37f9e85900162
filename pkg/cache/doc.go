// Package cache provides the persistent side of the FPL read-through cache.
//
// The package covers four concerns:
//
// - Deterministic key derivation (DeriveKey, KeyForEndpoint)
// - The entry document (Entry) with TTL and upstream validation metadata
// - Stores that persist entries atomically (FileStore, RedisStore)
// - Freshness classification (Classify: Fresh, Stale, Expired)
//
// # Basic Usage
//
//	// Create a file store under the project-local cache root
//	store, err := cache.NewFileStore(".cache/fpl", logger)
//	if err != nil {
//		return err
//	}
//
//	// Derive a key for a logical request
//	key, err := cache.DeriveKey("element-summary", cache.P("player_id", 302))
//	if err != nil {
//		return err
//	}
//
//	// Read and classify
//	entry, err := store.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrCorrupt):
//		// Miss - fetch upstream
//	case err == nil && cache.Classify(entry, time.Now(), true) == cache.Fresh:
//		// Serve entry.Payload
//	}
//
// Most callers should not use stores directly; package fetch wraps them in a
// read-through orchestrator with single-flight and stale fallback.
//
// # Entry Format
//
// Each entry is one JSON document:
//
//	{
//	  "key": "<64 hex chars>",
//	  "payload": {...},
//	  "stored_at": "2025-08-01T12:00:00Z",
//	  "ttl_seconds": 3600,
//	  "validation_metadata": {"etag": "\"abc\"", "fingerprint": "2025-08-01T11:58:12Z"}
//	}
//
// Unknown fields are ignored on read. A missing ttl_seconds means the entry is
// never fresh.
//
// # Conditional Requests
//
//	meta := cache.MetadataFromResponse(resp)
//	if cache.ShouldMakeConditionalRequest(meta) {
//		cache.AddConditionalHeaders(req, meta)
//		// Upstream answers 304 if the resource is unchanged
//	}
//
// # Metrics
//
//   - fpl_cache_store_reads_total{backend,result} - Store reads (hit, miss, corrupt, error)
//   - fpl_cache_store_writes_total{backend} - Entries written
//   - fpl_cache_entry_size_bytes{backend} - Serialized entry size
//   - fpl_cache_store_errors_total{backend,operation} - Store operation errors
//   - fpl_conditional_requests_total - Conditional requests sent upstream
//   - fpl_304_responses_total - Upstream 304 Not Modified responses
package cache
