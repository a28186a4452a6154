package cache

import "time"

// Clock returns the current time. Tiers take one so tests can control expiry.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Entry wraps a cached value with creation, access and expiry bookkeeping.
// An entry is live while now < ExpiresAt.
type Entry[V any] struct {
	Key         string
	Value       V
	CreatedAt   time.Time
	AccessedAt  time.Time
	ExpiresAt   time.Time
	AccessCount int64
}

// Wrap creates a fresh entry for value expiring ttl after now. A non-positive
// ttl yields an entry that expires one nanosecond after creation.
func Wrap[V any](key string, value V, ttl time.Duration, now time.Time) *Entry[V] {
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	return &Entry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		AccessedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsLive reports whether the entry has not yet expired at now.
func (e *Entry[V]) IsLive(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Touch records a read at now.
func (e *Entry[V]) Touch(now time.Time) {
	e.AccessedAt = now
	e.AccessCount++
}

// Remaining returns how long the entry stays live after now, or zero.
func (e *Entry[V]) Remaining(now time.Time) time.Duration {
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
