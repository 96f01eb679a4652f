package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/telcosme/smecache/pkg/cache"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smecache_rate_limit_blocks_total",
		Help: "Total number of requests rejected by the per-client rate limit",
	})

	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smecache_rate_limit_allowed_total",
		Help: "Total number of requests admitted by the per-client rate limit",
	})
)

// Limiter hands out one token bucket per client key.
type Limiter struct {
	engine *cache.Engine
	cfg    Config
	logger zerolog.Logger

	// serializes bucket creation so concurrent first requests share one bucket
	mu sync.Mutex
}

// New creates a limiter that stores buckets in engine.
// The engine should be dedicated to rate limiting.
func New(engine *cache.Engine, cfg Config, logger zerolog.Logger) *Limiter {
	if engine == nil {
		panic("cache engine cannot be nil")
	}
	return &Limiter{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow reports whether the client identified by key may make a request
// now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	bucket := l.bucket(key)

	if !bucket.AllowN(l.cfg.Clock(), 1) {
		rateLimitBlocksTotal.Inc()
		l.logger.Warn().
			Str("client", key).
			Float64("rate", l.cfg.Rate).
			Int("burst", l.cfg.Burst).
			Msg("Rate limit exceeded - rejecting request")
		return false
	}

	rateLimitAllowedTotal.Inc()
	return true
}

// bucket returns the client's token bucket, creating it on first use and
// extending its idle lifetime once half of it has passed.
func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.engine.Get(key); ok {
		if bucket, ok := v.(*rate.Limiter); ok {
			l.touch(key, bucket)
			return bucket
		}
		l.logger.Warn().Str("client", key).Msgf("Unexpected value type %T in rate limit cache, replacing", v)
	}

	bucket := rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)
	l.store(key, bucket)
	l.logger.Debug().Str("client", key).Msg("Tracking new client")
	return bucket
}

func (l *Limiter) touch(key string, bucket *rate.Limiter) {
	entry, ok := l.engine.Peek(key)
	if !ok {
		return
	}
	if entry.TTLAt(l.cfg.Clock()) < l.cfg.IdleTTL/2 {
		l.store(key, bucket)
	}
}

func (l *Limiter) store(key string, bucket *rate.Limiter) {
	if _, err := l.engine.Set(key, bucket, l.cfg.IdleTTL); err != nil {
		l.logger.Warn().Err(err).Str("client", key).Msg("Failed to track rate limit bucket")
	}
}
