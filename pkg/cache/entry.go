package cache

import (
	"time"
)

// Entry is one cached value plus the bookkeeping the engine keeps for it.
type Entry struct {
	// Key is the entry's only identity within an Engine.
	Key string `json:"key"`

	// Value is the cached payload. The engine never inspects it.
	Value any `json:"-"`

	// CreatedAt is when the entry was last written by Set.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is when the entry was last returned by Get (or written).
	// It drives LRU eviction.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// ExpiresAt is the absolute expiry time. Zero means no time-based expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// HitCount is how many times Get returned this entry since it was written.
	HitCount uint64 `json:"hit_count"`
}

// HasExpiry reports whether the entry expires by time.
func (e *Entry) HasExpiry() bool {
	return !e.ExpiresAt.IsZero()
}

// IsExpired reports whether the entry's expiry has passed by the wall clock.
// Engines with a custom Clock should use ExpiredAt(engine.Now()).
func (e *Entry) IsExpired() bool {
	return e.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the entry has an expiry before now.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return e.HasExpiry() && now.After(e.ExpiresAt)
}

// TTL returns the wall-clock time until expiration.
// Returns 0 if already expired or if the entry never expires.
func (e *Entry) TTL() time.Duration {
	return e.TTLAt(time.Now())
}

// TTLAt returns the time from now until expiration, or 0 if the entry is
// expired or never expires.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	if !e.HasExpiry() {
		return 0
	}
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
