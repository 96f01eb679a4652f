package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks successful lookups by cache instance
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks lookups for absent or expired keys
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheSets tracks writes
	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_sets_total",
			Help: "Total number of cache writes",
		},
		[]string{"cache"},
	)

	// CacheEvictions tracks entries removed by capacity pressure or the expiry sweep
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_evictions_total",
			Help: "Total number of entries evicted by capacity or expiry sweep",
		},
		[]string{"cache"},
	)

	// CacheEntries tracks the current number of live entries
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smecache_entries",
			Help: "Current number of entries held by the cache",
		},
		[]string{"cache"},
	)
)
