// Package httpcache memoizes HTTP responses in front of downstream handlers
// and invalidates them after successful writes.
//
// Only GET requests are cached. Requests that opt out with
// "Cache-Control: no-cache|no-store" or "Pragma: no-cache", requests from
// privileged principals, and excluded path prefixes (health checks, auth,
// streaming) pass through untouched. Only 2xx responses are stored.
//
// An optional Remote tier (Redis) sits behind the in-process engine. Remote
// failures are logged and counted, never returned to the client: a broken
// cache behaves like an empty one.
package httpcache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telcosme/smecache/pkg/cache"
	"github.com/telcosme/smecache/pkg/cachekey"
)

const (
	// DefaultPrefix namespaces response keys inside the engine
	DefaultPrefix = "http"

	// DefaultTTL is used when neither WithTTL nor the engine supply one
	DefaultTTL = 60 * time.Second
)

// DefaultExcludedPrefixes are never cached.
var DefaultExcludedPrefixes = []string{
	"/health",
	"/metrics",
	"/api/v1/auth",
	"/api/v1/stream",
}

// Cache is the HTTP response memoizer. It holds (does not own) an engine.
type Cache struct {
	engine       *cache.Engine
	remote       Remote
	prefix       string
	ttl          time.Duration
	excluded     []string
	privileged   func(*http.Request) bool
	maxBodyBytes int
	logger       zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long captured responses live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithExcludedPrefixes replaces the list of path prefixes that bypass the cache.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(c *Cache) { c.excluded = prefixes }
}

// WithPrivileged sets the predicate for callers whose requests are never cached.
func WithPrivileged(fn func(*http.Request) bool) Option {
	return func(c *Cache) { c.privileged = fn }
}

// WithRemote layers a secondary cache tier behind the engine.
func WithRemote(remote Remote) Option {
	return func(c *Cache) { c.remote = remote }
}

// WithMaxBodyBytes bounds the body size that will be cached.
func WithMaxBodyBytes(n int) Option {
	return func(c *Cache) { c.maxBodyBytes = n }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a response cache backed by engine.
func New(engine *cache.Engine, opts ...Option) *Cache {
	if engine == nil {
		panic("cache engine cannot be nil")
	}

	c := &Cache{
		engine:       engine,
		prefix:       DefaultPrefix,
		ttl:          engine.DefaultTTL(),
		excluded:     DefaultExcludedPrefixes,
		privileged:   isAdmin,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       log.With().Str("component", "httpcache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}

	return c
}

func isAdmin(r *http.Request) bool {
	p, ok := PrincipalFrom(r.Context())
	return ok && p.IsAdmin()
}

// Middleware serves cached responses for cacheable requests and captures
// successful responses on a miss.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Cacheable(r) {
			ResponsesTotal.WithLabelValues("bypass").Inc()
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := c.Key(r)

		if resp, ok := c.lookup(ctx, key); ok {
			resp.Replay(w)
			return
		}

		ResponsesTotal.WithLabelValues("miss").Inc()
		w.Header().Set(HeaderCache, "MISS")

		rec := newRecorder(w, true, c.maxBodyBytes)
		next.ServeHTTP(rec, r)

		if resp := rec.response(); resp != nil {
			c.store(ctx, key, resp)
		}
	})
}

// Cacheable reports whether r is eligible for response caching.
func (c *Cache) Cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}

	for _, prefix := range c.excluded {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}

	cacheControl := strings.ToLower(r.Header.Get("Cache-Control"))
	if strings.Contains(cacheControl, "no-cache") || strings.Contains(cacheControl, "no-store") {
		return false
	}
	if strings.EqualFold(r.Header.Get("Pragma"), "no-cache") {
		return false
	}

	if c.privileged != nil && c.privileged(r) {
		return false
	}

	return true
}

// Key returns the cache key for r.
func (c *Cache) Key(r *http.Request) string {
	principal, _ := PrincipalFrom(r.Context())
	return cachekey.ForRequest(c.prefix, cachekey.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Principal: principal.ID,
		Query:     r.URL.Query(),
	})
}

// ResourcePatterns returns the invalidation patterns for every cached read
// of path and of its sub-resources, for all users and query variants.
func (c *Cache) ResourcePatterns(path string) []string {
	base := c.prefix + ":" + http.MethodGet + ":" + cachekey.EscapeComponent(cachekey.NormalizePath(path))
	return []string{base + ":*", base + "/*"}
}

func (c *Cache) lookup(ctx context.Context, key string) (*Response, bool) {
	if v, ok := c.engine.Get(key); ok {
		if resp, ok := v.(*Response); ok {
			ResponsesTotal.WithLabelValues("hit").Inc()
			c.logger.Debug().Str("key", key).Bool("cache_hit", true).Msg("Serving cached response")
			return resp, true
		}
		c.logger.Warn().Str("key", key).Msg("Unexpected value type in response cache, ignoring")
	}

	if c.remote == nil {
		return nil, false
	}

	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrRemoteMiss) {
			RemoteErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Remote cache get failed, treating as miss")
		}
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		RemoteErrors.WithLabelValues("decode").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Invalid remote cache entry, treating as miss")
		return nil, false
	}

	// Promote into the local tier
	if _, err := c.engine.Set(key, &resp, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to promote remote entry")
	}

	ResponsesTotal.WithLabelValues("remote_hit").Inc()
	c.logger.Debug().Str("key", key).Bool("cache_hit", true).Msg("Serving response from remote cache")
	return &resp, true
}

func (c *Cache) store(ctx context.Context, key string, resp *Response) {
	if _, err := c.engine.Set(key, resp, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return
	}

	c.logger.Debug().
		Str("key", key).
		Int("status_code", resp.StatusCode).
		Dur("ttl", c.ttl).
		Msg("Cached response")

	if c.remote == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		RemoteErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to encode response for remote cache")
		return
	}
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		RemoteErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Remote cache set failed")
	}
}

// Invalidate removes every cached response whose key matches one of the
// patterns, locally and in the remote tier. It returns the number of local
// entries removed.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) int {
	removed := 0
	for _, pattern := range patterns {
		n, err := c.engine.DeleteMatching(pattern)
		if err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("Invalid invalidation pattern")
			continue
		}
		removed += n

		if c.remote != nil {
			if _, err := c.remote.DeletePattern(ctx, pattern); err != nil {
				RemoteErrors.WithLabelValues("delete").Inc()
				c.logger.Warn().Err(err).Str("pattern", pattern).Msg("Remote cache invalidation failed")
			}
		}
	}

	InvalidationsTotal.Add(float64(removed))
	c.logger.Debug().Strs("patterns", patterns).Int("removed", removed).Msg("Invalidated cached responses")

	return removed
}

// InvalidateAll removes every response cached under this Cache's prefix,
// locally and in the remote tier.
func (c *Cache) InvalidateAll(ctx context.Context) int {
	return c.Invalidate(ctx, c.prefix+":*")
}

// InvalidateOnWrite returns middleware that, after a mutating request
// (POST, PUT, PATCH, DELETE) completes with a 2xx status, invalidates the
// patterns returned by patternsFor.
func (c *Cache) InvalidateOnWrite(patternsFor func(*http.Request) []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			rec := newRecorder(w, false, 0)
			next.ServeHTTP(rec, r)

			if !isSuccess(rec.Status()) {
				return
			}
			if patterns := patternsFor(r); len(patterns) > 0 {
				c.Invalidate(r.Context(), patterns...)
			}
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
