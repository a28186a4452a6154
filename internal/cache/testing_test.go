package cache

import (
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingMetrics records events for assertions.
type countingMetrics struct {
	mu        sync.Mutex
	hits      map[Tier]int
	misses    int
	evictions map[Tier]int
	expires   map[Tier]int
	writeErrs int
	dropped   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{hits: map[Tier]int{}, evictions: map[Tier]int{}, expires: map[Tier]int{}}
}

func (m *countingMetrics) Hit(t Tier)      { m.mu.Lock(); m.hits[t]++; m.mu.Unlock() }
func (m *countingMetrics) Miss()           { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *countingMetrics) Eviction(t Tier) { m.mu.Lock(); m.evictions[t]++; m.mu.Unlock() }
func (m *countingMetrics) Expire(t Tier)   { m.mu.Lock(); m.expires[t]++; m.mu.Unlock() }
func (m *countingMetrics) WriteError()     { m.mu.Lock(); m.writeErrs++; m.mu.Unlock() }
func (m *countingMetrics) DroppedWrite()   { m.mu.Lock(); m.dropped++; m.mu.Unlock() }
