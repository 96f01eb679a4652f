package httpcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResponsesTotal tracks how requests passed through the middleware
	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_http_responses_total",
			Help: "Total requests seen by the response cache by result",
		},
		[]string{"result"}, // "hit", "remote_hit", "miss", "bypass"
	)

	// InvalidationsTotal tracks entries dropped by write invalidation
	InvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smecache_http_invalidated_entries_total",
			Help: "Total cached responses removed by write invalidation",
		},
	)

	// RemoteErrors tracks failures of the secondary cache backend
	RemoteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_remote_errors_total",
			Help: "Total number of remote cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)
)
