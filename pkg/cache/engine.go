package cache

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidArgument indicates a malformed key, pattern or negative TTL
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// DefaultMaxSize is the capacity used when Config.MaxSize is not positive
	DefaultMaxSize = 1000

	// DefaultSweepInterval is how often expired entries are purged when
	// Config.SweepInterval is zero
	DefaultSweepInterval = 60 * time.Second
)

// Config holds the engine configuration.
type Config struct {
	// Name labels the engine in logs and metrics (e.g. "responses")
	Name string

	// MaxSize is the maximum number of live entries
	MaxSize int

	// DefaultTTL is the call-site default handed to facades.
	// Set itself treats a zero TTL as "never expires".
	DefaultTTL time.Duration

	// SweepInterval is the expiry sweep period. Negative disables the sweeper.
	SweepInterval time.Duration

	// Logger overrides the component logger
	Logger *zerolog.Logger

	// Clock overrides time.Now (tests)
	Clock func() time.Time
}

// Engine is a bounded, expiring, LRU-evicting key/value store with
// hit/miss/set/eviction statistics. It is safe for concurrent use: the
// entry table and the counters share one critical section.
type Engine struct {
	name       string
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu        sync.Mutex
	entries   *simplelru.LRU[string, *Entry]
	hits      uint64
	misses    uint64
	sets      uint64
	evictions uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an engine and starts its expiry sweeper.
// Call Close to stop the sweeper.
func New(cfg Config) *Engine {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := log.With().Str("component", "cache").Str("cache", cfg.Name).Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("cache", cfg.Name).Logger()
	}

	// Capacity eviction is done by hand in Set so that only real evictions
	// are counted; the list is sized to never evict on its own.
	entries, err := simplelru.NewLRU[string, *Entry](cfg.MaxSize, nil)
	if err != nil {
		panic(fmt.Sprintf("cache: create lru: %v", err))
	}

	e := &Engine{
		name:       cfg.Name,
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Clock,
		logger:     logger,
		entries:    entries,
		stop:       make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		e.done = make(chan struct{})
		go e.sweepLoop(cfg.SweepInterval)
	}

	return e
}

// Name returns the engine's label.
func (e *Engine) Name() string {
	return e.name
}

// MaxSize returns the configured capacity.
func (e *Engine) MaxSize() int {
	return e.maxSize
}

// DefaultTTL returns the call-site default TTL the engine was configured with.
func (e *Engine) DefaultTTL() time.Duration {
	return e.defaultTTL
}

// Set stores value under key and returns it. A ttl of zero means the entry
// never expires by time. Writing an existing key replaces its entry; writing
// a new key into a full engine first evicts the least recently accessed entry.
func (e *Engine) Set(key string, value any, ttl time.Duration) (any, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: negative ttl %s for key %q", ErrInvalidArgument, ttl, key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	entry := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	if !e.entries.Contains(key) && e.entries.Len() >= e.maxSize {
		if evicted, _, ok := e.entries.RemoveOldest(); ok {
			e.evictions++
			CacheEvictions.WithLabelValues(e.name).Inc()
			e.logger.Debug().Str("key", evicted).Msg("Evicted least recently used entry")
		}
	}

	e.entries.Add(key, entry)
	e.sets++

	CacheSets.WithLabelValues(e.name).Inc()
	CacheEntries.WithLabelValues(e.name).Set(float64(e.entries.Len()))

	e.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache set")

	return value, nil
}

// Get returns the value stored under key. Absent and expired keys are
// misses; an expired entry is removed as a side effect. A hit marks the
// entry as most recently used.
func (e *Engine) Get(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries.Peek(key)
	if !ok {
		e.recordMiss(key)
		return nil, false
	}

	now := e.now()
	if entry.ExpiredAt(now) {
		e.entries.Remove(key)
		CacheEntries.WithLabelValues(e.name).Set(float64(e.entries.Len()))
		e.recordMiss(key)
		return nil, false
	}

	e.entries.Get(key)
	entry.LastAccessedAt = now
	entry.HitCount++
	e.hits++

	CacheHits.WithLabelValues(e.name).Inc()
	e.logger.Debug().Str("key", key).Bool("cache_hit", true).Msg("Cache get")

	return entry.Value, true
}

func (e *Engine) recordMiss(key string) {
	e.misses++
	CacheMisses.WithLabelValues(e.name).Inc()
	e.logger.Debug().Str("key", key).Bool("cache_hit", false).Msg("Cache get")
}

// Now returns the engine's current time. Compare Peek results against it.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Peek returns a copy of the entry stored under key without touching
// recency or statistics. Expired entries are reported as absent.
func (e *Engine) Peek(key string) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries.Peek(key)
	if !ok || entry.ExpiredAt(e.now()) {
		return Entry{}, false
	}
	return *entry, true
}

// Delete removes key and reports whether it was present.
func (e *Engine) Delete(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	present := e.entries.Remove(key)
	if present {
		CacheEntries.WithLabelValues(e.name).Set(float64(e.entries.Len()))
	}
	return present
}

// DeleteMatching removes every key matching pattern, where '*' matches any
// run of characters. It returns the number of entries removed.
func (e *Engine) DeleteMatching(pattern string) (int, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, key := range e.entries.Keys() {
		if re.MatchString(key) && e.entries.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		CacheEntries.WithLabelValues(e.name).Set(float64(e.entries.Len()))
		e.logger.Debug().Str("pattern", pattern).Int("removed", removed).Msg("Invalidated entries")
	}
	return removed, nil
}

// Keys returns live keys ordered from most to least recently used.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	oldestFirst := e.entries.Keys()
	keys := make([]string, 0, len(oldestFirst))
	for i := len(oldestFirst) - 1; i >= 0; i-- {
		if entry, ok := e.entries.Peek(oldestFirst[i]); ok && !entry.ExpiredAt(now) {
			keys = append(keys, oldestFirst[i])
		}
	}
	return keys
}

// Clear removes every entry and resets hits, misses, sets and evictions.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries.Purge()
	e.hits, e.misses, e.sets, e.evictions = 0, 0, 0, 0

	CacheEntries.WithLabelValues(e.name).Set(0)
	e.logger.Info().Msg("Cache cleared")
}

// Stats returns the current counters with derived size and hit rate.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Name:      e.name,
		Hits:      e.hits,
		Misses:    e.misses,
		Sets:      e.sets,
		Evictions: e.evictions,
		Size:      e.entries.Len(),
		MaxSize:   e.maxSize,
		HitRate:   hitRate(e.hits, e.misses),
	}
}

// Sweep removes every expired entry and counts them as evictions.
// It returns the number of entries removed.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	removed := 0
	for _, key := range e.entries.Keys() {
		entry, ok := e.entries.Peek(key)
		if ok && entry.ExpiredAt(now) {
			e.entries.Remove(key)
			removed++
		}
	}

	if removed > 0 {
		e.evictions += uint64(removed)
		CacheEvictions.WithLabelValues(e.name).Add(float64(removed))
		CacheEntries.WithLabelValues(e.name).Set(float64(e.entries.Len()))
	}
	return removed
}

func (e *Engine) sweepLoop(interval time.Duration) {
	defer close(e.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if removed := e.Sweep(); removed > 0 {
				e.logger.Debug().Int("removed", removed).Msg("Swept expired entries")
			}
		}
	}
}

// Close stops the expiry sweeper. It is safe to call more than once.
// The engine stays usable after Close; only the background sweep stops.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stop)
		if e.done != nil {
			<-e.done
		}
	})
	return nil
}

// compilePattern turns a wildcard pattern into an anchored regexp.
// '*' matches any run of characters, everything else is literal.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidArgument)
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
