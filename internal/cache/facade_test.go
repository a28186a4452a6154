package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/prospect/internal/store"
)

func newTestCache(t *testing.T, clock *fakeClock) (*Cache[string], *store.MemoryEntryStore, *countingMetrics) {
	t.Helper()
	s := store.NewMemoryEntryStore()
	m := newCountingMetrics()
	c := New[string](s, Options{FastCapacity: 10, Clock: clock.Now, Metrics: m})
	t.Cleanup(func() { _ = c.Close() })
	return c, s, m
}

func TestCacheSetWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	c, s, _ := newTestCache(t, newFakeClock())

	c.Set(ctx, "k", "v", time.Hour)
	assert.True(t, c.Fast().Has("k"))

	c.Flush()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheDefaultTTL(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeClock())

	c.Set(ctx, "k", "v", 0)
	e, ok := c.Fast().Peek("k")
	require.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, e.ExpiresAt.Sub(e.CreatedAt))
}

func TestCachePromotesWithRemainingTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, s, m := newTestCache(t, clock)

	c.Set(ctx, "k", "v", time.Hour)
	c.Flush()
	c.Fast().Clear()
	clock.Advance(20 * time.Minute)

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, m.hits[TierDurable])

	e, ok := c.Fast().Peek("k")
	require.True(t, ok, "promoted into fast tier")
	assert.Equal(t, 40*time.Minute, e.ExpiresAt.Sub(e.CreatedAt), "remaining lifetime, not original ttl")

	// Durable tier gone: the second read is served by the fast tier alone.
	s.Reset()
	v, ok = c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, m.hits[TierFast])
}

func TestCacheHitRate(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeClock())

	assert.Zero(t, c.Stats(ctx).HitRate)

	c.Set(ctx, "a", "1", time.Hour)
	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "a")
		require.True(t, ok)
	}
	_, ok := c.Get(ctx, "missing")
	require.False(t, ok)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.FastEntries)
}

func TestCacheHasRecordsNothing(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeClock())

	c.Set(ctx, "k", "v", time.Hour)
	c.Flush()
	c.Fast().Clear()

	assert.True(t, c.Has(ctx, "k"))
	assert.False(t, c.Has(ctx, "other"))
	stats := c.Stats(ctx)
	assert.Zero(t, stats.Hits+stats.Misses)
	assert.False(t, c.Fast().Has("k"), "Has does not promote")
}

func TestCacheDeleteRemovesBothTiers(t *testing.T) {
	ctx := context.Background()
	c, s, _ := newTestCache(t, newFakeClock())

	c.Set(ctx, "k", "v", time.Hour)
	require.NoError(t, c.Delete(ctx, "k"))

	assert.False(t, c.Has(ctx, "k"))
	n, _ := s.Count(ctx)
	assert.Zero(t, n, "queued write applied before delete, then deleted")
}

func TestCacheGetOrCompute(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeClock())

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrCompute(ctx, "k", compute, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	v, err = c.GetOrCompute(ctx, "k", compute, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err = c.GetOrCompute(ctx, "k2", func(context.Context) (string, error) { return "", boom }, time.Hour)
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Has(ctx, "k2"), "failed compute is not cached")
}

func TestCacheClearResetsCounters(t *testing.T) {
	ctx := context.Background()
	c, s, _ := newTestCache(t, newFakeClock())

	c.Set(ctx, "k", "v", time.Hour)
	c.Get(ctx, "k")
	c.Get(ctx, "nope")
	require.NoError(t, c.Clear(ctx))

	stats := c.Stats(ctx)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Zero(t, stats.FastEntries)
	n, _ := s.Count(ctx)
	assert.Zero(t, n)
}

func TestCacheDurableFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEntryStore()
	s.FailInit(errors.New("no disk"), errors.New("no disk"), errors.New("no disk"))
	m := newCountingMetrics()
	c := New[string](s, Options{Metrics: m})
	defer c.Close()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 1, m.misses)

	c.Set(ctx, "k", "v", time.Hour)
	c.Flush()
	assert.Equal(t, 1, m.writeErrs, "write failure logged, not returned")
	v, ok := c.Get(ctx, "k")
	require.True(t, ok, "fast tier still serves")
	assert.Equal(t, "v", v)
}

func TestCacheDropsWritesWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEntryStore()
	m := newCountingMetrics()
	c := New[string](s, Options{WriteQueue: 1, Metrics: m})
	defer c.Close()

	for i := 0; i < 200; i++ {
		c.Set(ctx, "k", "v", time.Hour)
	}
	c.Flush()

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n, "drops never block Set, and every applied write lands on the same key")
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCacheCloseFlushes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEntryStore()
	c := New[string](s, Options{})

	c.Set(ctx, "a", "1", time.Hour)
	c.Set(ctx, "b", "2", time.Hour)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	n, _ := s.Count(ctx)
	assert.Equal(t, 2, n)

	c.Set(ctx, "c", "3", time.Hour)
	c.Flush()
}
