package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/colthorp/prospect/internal/core"
)

// FastTier is a bounded in-process cache. When full, inserting a new key
// evicts exactly one entry: the one with the smallest AccessedAt, ties going
// to the least recently used.
type FastTier[V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *Entry[V]]
	capacity int
	clock    Clock
	metrics  Metrics
}

// NewFastTier creates a fast tier holding at most capacity entries. A
// non-positive capacity uses the default of 100. clock and metrics may be nil.
func NewFastTier[V any](capacity int, clock Clock, metrics Metrics) *FastTier[V] {
	if capacity <= 0 {
		capacity = core.FastTierCapacity
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	// Eviction is chosen explicitly in Set, so the LRU is sized one larger
	// and never evicts on its own.
	l, err := simplelru.NewLRU[string, *Entry[V]](capacity+1, nil)
	if err != nil {
		panic(err)
	}
	return &FastTier[V]{lru: l, capacity: capacity, clock: clock, metrics: metrics}
}

// Capacity returns the maximum number of entries.
func (f *FastTier[V]) Capacity() int {
	return f.capacity
}

// Get returns the value for key if it is live, touching the entry. An expired
// entry is removed.
func (f *FastTier[V]) Get(key string) (V, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero V
	e, ok := f.lru.Get(key)
	if !ok {
		return zero, false
	}
	now := f.clock.now()
	if !e.IsLive(now) {
		f.lru.Remove(key)
		f.metrics.Expire(TierFast)
		return zero, false
	}
	e.Touch(now)
	return e.Value, true
}

// Set stores value under key for ttl, overwriting any existing entry.
func (f *FastTier[V]) Set(key string, value V, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.now()
	f.purgeExpired(now)

	if !f.lru.Contains(key) && f.lru.Len() >= f.capacity {
		f.evictOne()
	}
	f.lru.Add(key, Wrap(key, value, ttl, now))
}

// evictOne removes the entry with the smallest AccessedAt. Keys are walked
// oldest to newest, so the first minimum found is also the least recently
// used among equals.
func (f *FastTier[V]) evictOne() {
	var victim string
	var found bool
	var oldest time.Time
	for _, k := range f.lru.Keys() {
		e, ok := f.lru.Peek(k)
		if !ok {
			continue
		}
		if !found || e.AccessedAt.Before(oldest) {
			victim, oldest, found = k, e.AccessedAt, true
		}
	}
	if found {
		f.lru.Remove(victim)
		f.metrics.Eviction(TierFast)
	}
}

// purgeExpired removes every entry that is no longer live. Caller holds mu.
func (f *FastTier[V]) purgeExpired(now time.Time) {
	for _, k := range f.lru.Keys() {
		if e, ok := f.lru.Peek(k); ok && !e.IsLive(now) {
			f.lru.Remove(k)
			f.metrics.Expire(TierFast)
		}
	}
}

// Delete removes key and reports whether it was present.
func (f *FastTier[V]) Delete(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lru.Remove(key)
}

// Clear removes every entry.
func (f *FastTier[V]) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lru.Purge()
}

// Has reports whether key is live without touching it.
func (f *FastTier[V]) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.lru.Peek(key)
	return ok && e.IsLive(f.clock.now())
}

// Peek returns a copy of the entry for key without touching it.
func (f *FastTier[V]) Peek(key string) (Entry[V], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.lru.Peek(key)
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Len returns the number of live entries, purging expired ones first.
func (f *FastTier[V]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeExpired(f.clock.now())
	return f.lru.Len()
}
