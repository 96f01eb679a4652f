// Package cache provides the in-process cache engine shared by the API's
// response cache, AI recommendation memoization and rate-limit bookkeeping.
//
// The engine implements:
//
// - A bounded entry table (MaxSize), never exceeded
// - Per-entry TTL, checked lazily on Get and purged by a background sweep
// - True LRU eviction: reads promote recency, the least recently
// accessed entry is evicted when a new key is written into a full engine
// - Hit/miss/set/eviction counters with a derived hit rate
// - Prometheus metrics labelled by engine name
//
// # Basic Usage
//
//	engine := cache.New(cache.Config{
//		Name:       "responses",
//		MaxSize:    1000,
//		DefaultTTL: 60 * time.Second,
//	})
//	defer engine.Close()
//
//	if _, err := engine.Set("plans:all", plans, engine.DefaultTTL()); err != nil {
//		return err // only for an empty key or negative TTL
//	}
//
//	if v, ok := engine.Get("plans:all"); ok {
//		plans = v.([]Plan)
//	}
//
// # Invalidation
//
//	// Drop every cached variant of a resource ('*' matches anything)
//	removed, err := engine.DeleteMatching("http:GET:/api/v1/plans*")
//
// # Statistics
//
// Stats returns hits, misses, sets, evictions, size and hit rate. Clear
// removes every entry and also resets the counters, so statistics always
// describe the current cache epoch.
//
// # Metrics
//
//   - smecache_hits_total{cache} - Cache hits
//   - smecache_misses_total{cache} - Cache misses
//   - smecache_sets_total{cache} - Cache writes
//   - smecache_evictions_total{cache} - Capacity and sweep evictions
//   - smecache_entries{cache} - Live entries
//
// Prometheus counters stay monotonic across Clear.
//
// # Concurrency
//
// Every operation runs under a single mutex guarding both the entry table
// and the counters, so a Get that removes an expired entry or promotes
// recency is observed atomically by other goroutines. Separate engines
// share nothing.
package cache
