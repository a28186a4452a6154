package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/store"
)

// Options configures a Cache.
type Options struct {
	FastCapacity  int           // fast tier entries; default 100
	DurableBudget int64         // durable tier bytes; default 500 MiB
	DefaultTTL    time.Duration // used when Set gets ttl <= 0; default 7 days
	WriteQueue    int           // pending durable writes before drops; default 256
	Clock         Clock
	Metrics       Metrics
	Logger        *zap.Logger
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRate        float64 `json:"hitRate"`
	FastEntries    int     `json:"fastEntries"`
	DurableEntries int     `json:"durableEntries"`
	DurableBytes   int64   `json:"durableBytes"`
}

type writeReq[V any] struct {
	key   string
	value V
	ttl   time.Duration
	flush chan struct{}
}

// Cache combines a fast tier and a durable tier behind one API.
//
// Reads check the fast tier, then the durable tier; a durable hit is promoted
// into the fast tier for the entry's remaining lifetime. Writes go to the fast
// tier synchronously and are queued for the durable tier on a single
// background worker whose failures are logged, never returned.
type Cache[V any] struct {
	fast       *FastTier[V]
	durable    *DurableTier[V]
	defaultTTL time.Duration
	clock      Clock
	metrics    Metrics
	logger     *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64

	writes chan writeReq[V]
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against sends on writes
	closed bool
}

// New creates a cache over the given durable entry store and starts its
// write-back worker. Call Close to drain pending writes.
func New[V any](s store.EntryStore, opts Options) *Cache[V] {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = core.DefaultCacheTTL
	}
	if opts.WriteQueue <= 0 {
		opts.WriteQueue = core.WriteQueueSize
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Cache[V]{
		fast:       NewFastTier[V](opts.FastCapacity, opts.Clock, opts.Metrics),
		durable:    NewDurableTier[V](s, opts.DurableBudget, opts.Clock, opts.Metrics, opts.Logger),
		defaultTTL: opts.DefaultTTL,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		writes:     make(chan writeReq[V], opts.WriteQueue),
	}
	c.wg.Add(1)
	go c.writeBack()
	return c
}

// writeBack applies queued durable writes in order.
func (c *Cache[V]) writeBack() {
	defer c.wg.Done()
	for req := range c.writes {
		if req.flush != nil {
			close(req.flush)
			continue
		}
		if err := c.durable.Set(context.Background(), req.key, req.value, req.ttl); err != nil {
			c.metrics.WriteError()
			c.logger.Warn("durable cache write failed", zap.String("key", req.key), zap.Error(err))
		}
	}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := c.fast.Get(key); ok {
		c.hits.Add(1)
		c.metrics.Hit(TierFast)
		return v, true
	}

	e, err := c.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("durable cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		c.metrics.Miss()
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	c.metrics.Hit(TierDurable)
	if remaining := e.Remaining(c.clock.now()); remaining > 0 {
		c.fast.Set(key, e.Value, remaining)
	}
	return e.Value, true
}

// Set stores value under key. A non-positive ttl uses the default TTL.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.fast.Set(key, value, ttl)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Warn("cache closed, durable write skipped", zap.String("key", key))
		return
	}
	select {
	case c.writes <- writeReq[V]{key: key, value: value, ttl: ttl}:
	default:
		c.metrics.DroppedWrite()
		c.logger.Warn("durable write queue full, write dropped", zap.String("key", key))
	}
}

// Flush blocks until every durable write queued before the call is applied.
func (c *Cache[V]) Flush() {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	done := make(chan struct{})
	c.writes <- writeReq[V]{flush: done}
	c.mu.RUnlock()
	<-done
}

// Delete removes key from both tiers once pending writes have landed.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	c.Flush()
	c.fast.Delete(key)
	_, err := c.durable.Delete(ctx, key)
	return err
}

// Has reports whether key is live in either tier. It records no hit or miss
// and touches nothing.
func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	if c.fast.Has(key) {
		return true
	}
	ok, err := c.durable.Has(ctx, key)
	if err != nil {
		c.logger.Warn("durable cache lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// GetOrCompute returns the cached value for key, or calls compute once,
// caches its result for ttl and returns it. Concurrent callers for the same
// key may each call compute.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error), ttl time.Duration) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}

// Stats returns hit/miss counters and tier sizes. Durable tier errors are
// logged and reported as zero.
func (c *Cache[V]) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		FastEntries: c.fast.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}

	var err error
	if s.DurableEntries, err = c.durable.Count(ctx); err != nil {
		c.logger.Warn("durable cache count failed", zap.Error(err))
	}
	if s.DurableBytes, err = c.durable.Size(ctx); err != nil {
		c.logger.Warn("durable cache size failed", zap.Error(err))
	}
	return s
}

// Clear empties both tiers and resets the hit/miss counters.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.Flush()
	c.fast.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
	return c.durable.Clear(ctx)
}

// Close drains pending durable writes and stops the worker. The cache must
// not be used for writes afterwards.
func (c *Cache[V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.writes)
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// Fast exposes the fast tier for inspection.
func (c *Cache[V]) Fast() *FastTier[V] {
	return c.fast
}

// Durable exposes the durable tier for inspection.
func (c *Cache[V]) Durable() *DurableTier[V] {
	return c.durable
}
