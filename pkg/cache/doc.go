// Package cache stores Axiom metadata responses in a two-layer cache.
//
// The memory layer is a fixed-size LRU (hashicorp/golang-lru). The optional
// Redis layer shares entries between processes and survives restarts. Both
// layers honour the entry expiry; Redis additionally drops keys by TTL.
//
// Only metadata is cached: aggregates, qualities, time zones and tag
// properties. Tag data and live values always go to the service.
//
// # Basic Usage
//
//	manager, err := cache.NewManager(redisClient, cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	key := cache.Key{
//		BaseURL:  "https://plant.example.com/axiom/api/v2",
//		Endpoint: "/getAggregates",
//	}
//
//	var aggregates []string
//	err = manager.Remember(ctx, key, &aggregates, func(ctx context.Context) (any, error) {
//		return fetchAggregates(ctx)
//	})
//
// A nil Redis client runs the manager in memory-only mode.
//
// # Metrics
//
//   - axiom_cache_hits_total{layer} - Cache hits by layer (memory, redis)
//   - axiom_cache_misses_total - Cache misses
//   - axiom_cache_entries{layer="memory"} - Entries held in memory
//   - axiom_cache_errors_total{operation} - Cache operation errors
package cache
