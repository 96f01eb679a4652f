// Package memo memoizes expensive computations, such as AI recommendation
// calls, in a cache.Engine keyed by a content hash of their inputs.
//
// Failed computations are never cached; the caller sees the error and the
// next call retries. By default concurrent misses on the same key each run
// the computation. WithCoalescing makes them share a single execution.
package memo

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/telcosme/smecache/pkg/cache"
	"github.com/telcosme/smecache/pkg/cachekey"
)

var (
	// Computations tracks executions of memoized functions by outcome
	Computations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smecache_memo_computations_total",
			Help: "Total memoized computations executed by result",
		},
		[]string{"prefix", "result"}, // result: "success", "error"
	)

	// ComputeDuration tracks how long memoized computations take on a miss
	ComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smecache_memo_compute_duration_seconds",
			Help:    "Duration of memoized computations on a cache miss",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"prefix"},
	)
)

// Memoizer stores computation results in an engine it does not own.
type Memoizer struct {
	engine     *cache.Engine
	defaultTTL time.Duration
	coalesce   bool
	group      singleflight.Group
	logger     zerolog.Logger
}

// Option configures a Memoizer.
type Option func(*Memoizer)

// WithDefaultTTL sets the TTL used when GetOrCompute is called with ttl 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Memoizer) { m.defaultTTL = ttl }
}

// WithCoalescing makes concurrent misses on one key share a single
// computation.
func WithCoalescing() Option {
	return func(m *Memoizer) { m.coalesce = true }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Memoizer) { m.logger = logger }
}

// New creates a Memoizer backed by engine.
func New(engine *cache.Engine, opts ...Option) *Memoizer {
	if engine == nil {
		panic("cache engine cannot be nil")
	}

	m := &Memoizer{
		engine: engine,
		logger: log.With().Str("component", "memo").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Forget drops the memoized result for descriptor under prefix.
// It reports whether an entry was removed.
func (m *Memoizer) Forget(prefix string, descriptor any) bool {
	key, err := cachekey.ForPayload(prefix, descriptor)
	if err != nil {
		m.logger.Warn().Err(err).Str("prefix", prefix).Msg("Cannot derive key to forget")
		return false
	}
	return m.engine.Delete(key)
}

// ForgetPrefix drops every memoized result under prefix and returns how
// many were removed.
func (m *Memoizer) ForgetPrefix(prefix string) int {
	n, err := m.engine.DeleteMatching(prefix + ":*")
	if err != nil {
		m.logger.Warn().Err(err).Str("prefix", prefix).Msg("Cannot forget prefix")
		return 0
	}
	return n
}

func (m *Memoizer) ttlFor(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if m.defaultTTL > 0 {
		return m.defaultTTL
	}
	return m.engine.DefaultTTL()
}

// GetOrCompute returns the memoized result for descriptor under prefix, or
// runs fn, stores its result for ttl and returns it. Errors from fn are
// returned unchanged and never stored. A ttl of 0 uses the memoizer's
// default, then the engine's.
//
// If descriptor cannot be encoded into a key, fn runs uncached.
//
// With coalescing, fn runs under a context that keeps ctx's values but not
// its cancellation, so one caller giving up does not fail the others.
func GetOrCompute[T any](ctx context.Context, m *Memoizer, prefix string, descriptor any, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	key, err := cachekey.ForPayload(prefix, descriptor)
	if err != nil {
		m.logger.Warn().Err(err).Str("prefix", prefix).Msg("Cannot derive cache key, computing uncached")
		return fn(ctx)
	}

	if v, ok := lookup[T](m, key); ok {
		return v, nil
	}

	if !m.coalesce {
		return compute(ctx, m, prefix, key, ttl, fn)
	}

	// The shared flight outlives any single caller; each caller stops
	// waiting when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		// A concurrent flight may have stored the value since our lookup
		if v, ok := lookup[T](m, key); ok {
			return v, nil
		}
		return compute(flightCtx, m, prefix, key, ttl, fn)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug().Str("key", key).Msg("Shared in-flight computation")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		// A nil interface result does not assert to an interface T
		typed, _ := res.Val.(T)
		return typed, nil
	}
}

func lookup[T any](m *Memoizer, key string) (T, bool) {
	var zero T

	v, ok := m.engine.Get(key)
	if !ok {
		m.logger.Debug().Str("key", key).Bool("cache_hit", false).Msg("Memo miss")
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		m.logger.Warn().Str("key", key).Msgf("Memoized value has type %T, recomputing", v)
		return zero, false
	}

	m.logger.Debug().Str("key", key).Bool("cache_hit", true).Msg("Memo hit")
	return typed, true
}

func compute[T any](ctx context.Context, m *Memoizer, prefix, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	ComputeDuration.WithLabelValues(prefix).Observe(time.Since(start).Seconds())

	if err != nil {
		Computations.WithLabelValues(prefix, "error").Inc()
		m.logger.Debug().Err(err).Str("key", key).Msg("Computation failed, not caching")
		return v, err
	}
	Computations.WithLabelValues(prefix, "success").Inc()

	if _, err := m.engine.Set(key, v, m.ttlFor(ttl)); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to memoize result")
	}
	return v, nil
}
