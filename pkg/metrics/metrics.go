// Package metrics exposes the Prometheus registry used by smecache.
// All metrics are defined in their respective packages (cache, httpcache,
// memo, ratelimit, recommend) via promauto to keep the packages independent.
//
// This package serves them and documents what is available.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by smecache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Engine Metrics (pkg/cache), labelled by engine name {cache}:
//   - smecache_hits_total (Counter): Lookups served from the engine
//   - smecache_misses_total (Counter): Lookups for absent or expired keys
//   - smecache_sets_total (Counter): Writes
//   - smecache_evictions_total (Counter): Capacity evictions and swept expiries
//   - smecache_entries (Gauge): Live entries
//
// HTTP Response Cache Metrics (pkg/httpcache):
//   - smecache_http_responses_total{result} (Counter): hit, remote_hit, miss, bypass
//   - smecache_http_invalidated_entries_total (Counter): Entries dropped by write invalidation
//   - smecache_remote_errors_total{operation} (Counter): Redis tier failures (get, set, delete, decode)
//
// Memoization Metrics (pkg/memo):
//   - smecache_memo_computations_total{prefix, result} (Counter): Computations run on a miss
//   - smecache_memo_compute_duration_seconds{prefix} (Histogram): Computation latency
//
// Rate Limit Metrics (pkg/ratelimit):
//   - smecache_rate_limit_blocks_total (Counter): Requests rejected with 429
//   - smecache_rate_limit_allowed_total (Counter): Requests admitted
//
// Recommendation Metrics (internal/recommend):
//   - smecache_ai_requests_total{status} (Counter): Calls to the recommendation model
//   - smecache_ai_request_duration_seconds (Histogram): Model call latency
//   - smecache_ai_retries_total{error_class} (Counter): Retry attempts by error class
//   - smecache_ai_retry_exhausted_total{error_class} (Counter): Calls that failed after every attempt
//
// Example Prometheus Queries:
//
//   # Response cache hit rate
//   sum(rate(smecache_hits_total{cache="responses"}[5m])) /
//   (sum(rate(smecache_hits_total{cache="responses"}[5m])) + sum(rate(smecache_misses_total{cache="responses"}[5m])))
//
//   # Eviction pressure per engine
//   sum by (cache) (rate(smecache_evictions_total[5m]))
//
//   # Model calls avoided by memoization
//   rate(smecache_hits_total{cache="recommendations"}[5m])
//
//   # P95 model latency
//   histogram_quantile(0.95, rate(smecache_ai_request_duration_seconds_bucket[5m]))
