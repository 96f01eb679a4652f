package httpcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRemoteMiss indicates the requested key was not found in the remote cache
	ErrRemoteMiss = errors.New("remote cache miss")
)

// DefaultRemoteNamespace prefixes every key written to Redis.
const DefaultRemoteNamespace = "smecache:"

// Remote is a secondary cache tier behind the in-process engine.
// Failures are never fatal: the middleware logs them and treats them as misses.
type Remote interface {
	// Get returns the stored bytes or ErrRemoteMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data with the given TTL (0 = no expiry).
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// DeletePattern removes every key matching pattern ('*' wildcard)
	// and returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Compile-time check that RedisRemote implements Remote.
var _ Remote = (*RedisRemote)(nil)

// RedisRemote is a Remote backed by Redis.
type RedisRemote struct {
	redis     *redis.Client
	namespace string
}

// NewRedisRemote creates a Redis-backed remote tier.
func NewRedisRemote(redisClient *redis.Client) *RedisRemote {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisRemote{
		redis:     redisClient,
		namespace: DefaultRemoteNamespace,
	}
}

// Get retrieves the raw bytes stored under key.
// Returns ErrRemoteMiss if the key doesn't exist.
func (r *RedisRemote) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRemoteMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores data under key. Redis expires the key after ttl.
func (r *RedisRemote) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("negative ttl %s", ttl)
	}
	if err := r.redis.Set(ctx, r.namespace+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeletePattern scans for keys matching pattern and deletes them.
func (r *RedisRemote) DeletePattern(ctx context.Context, pattern string) (int, error) {
	match := r.namespace + escapeGlob(pattern)

	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			n, err := r.redis.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// escapeGlob keeps '*' as a wildcard and makes every other Redis glob
// metacharacter literal, matching the engine's pattern semantics.
func escapeGlob(pattern string) string {
	var b strings.Builder
	for _, ch := range pattern {
		switch ch {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
