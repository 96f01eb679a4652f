// Package ratelimit gates API requests with per-client token buckets.
// Buckets live in a cache.Engine: its capacity bounds how many clients are
// tracked at once and its TTL forgets clients that have gone idle.
package ratelimit

import (
	"time"
)

// Defaults applied by New for zero Config fields.
const (
	// DefaultRate is the sustained number of requests per second per client.
	DefaultRate = 10

	// DefaultBurst is how many requests a client may make at once.
	DefaultBurst = 20

	// DefaultIdleTTL is how long an unused bucket is remembered.
	// A forgotten client starts again with a full bucket.
	DefaultIdleTTL = 10 * time.Minute
)

// Config holds the per-client limits.
type Config struct {
	// Rate is the sustained requests per second allowed for one client.
	Rate float64

	// Burst is the bucket size, i.e. the largest instantaneous burst.
	Burst int

	// IdleTTL is how long a client's bucket survives without requests.
	IdleTTL time.Duration

	// Clock overrides time.Now (tests)
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// RetryAfter returns how long a rejected client should wait for one token.
// Rounded up to whole seconds, never less than one.
func (c Config) RetryAfter() time.Duration {
	c = c.withDefaults()
	wait := time.Duration(float64(time.Second) / c.Rate)
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
