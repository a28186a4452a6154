package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/store"
)

// ErrMiss is returned by the durable tier when no live entry exists.
var ErrMiss = errors.New("cache: miss")

// ErrTooLarge is returned when a single entry exceeds the whole byte budget.
var ErrTooLarge = errors.New("cache: entry exceeds durable budget")

// DurableTier is a persistent, byte-budgeted cache over a store.EntryStore.
//
// Values are stored as JSON and an entry's size is the length of that
// payload plus its key. Before a write that would take the stored total over
// the budget, expired entries are purged; if that is not enough, entries are
// evicted oldest-inserted first until at least max(10% of budget, overflow)
// bytes have been freed.
type DurableTier[V any] struct {
	store   store.EntryStore
	budget  int64
	clock   Clock
	metrics Metrics
	logger  *zap.Logger

	ready     atomic.Bool
	initGroup singleflight.Group

	// writeMu serializes budget checks with the write that follows them.
	writeMu sync.Mutex
}

// NewDurableTier creates a durable tier with a budget in bytes. A
// non-positive budget uses the 500 MiB default.
func NewDurableTier[V any](s store.EntryStore, budget int64, clock Clock, metrics Metrics, logger *zap.Logger) *DurableTier[V] {
	if budget <= 0 {
		budget = core.DurableBudgetMB << 20
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DurableTier[V]{store: s, budget: budget, clock: clock, metrics: metrics, logger: logger}
}

// Budget returns the byte budget.
func (d *DurableTier[V]) Budget() int64 {
	return d.budget
}

// ensureInit runs store.Init once. Concurrent callers share the in-flight
// call; a failure leaves the tier uninitialized so the next call retries.
func (d *DurableTier[V]) ensureInit(ctx context.Context) error {
	if d.ready.Load() {
		return nil
	}
	_, err, _ := d.initGroup.Do("init", func() (any, error) {
		if d.ready.Load() {
			return nil, nil
		}
		if err := d.store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init durable store: %w", err)
		}
		d.ready.Store(true)
		return nil, nil
	})
	return err
}

// Get returns the live entry for key, or ErrMiss. An expired entry is
// removed. The persisted access bookkeeping is updated best-effort.
func (d *DurableTier[V]) Get(ctx context.Context, key string) (*Entry[V], error) {
	if err := d.ensureInit(ctx); err != nil {
		return nil, err
	}

	rec, err := d.store.Read(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	now := d.clock.now()
	if !now.Before(rec.ExpiresAt) {
		if _, err := d.store.Remove(ctx, key); err != nil {
			d.logger.Warn("remove expired entry failed", zap.String("key", key), zap.Error(err))
		}
		d.metrics.Expire(TierDurable)
		return nil, ErrMiss
	}

	var value V
	if err := json.Unmarshal(rec.Payload, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	if err := d.store.Touch(ctx, key, now); err != nil {
		d.logger.Warn("touch entry failed", zap.String("key", key), zap.Error(err))
	}

	return &Entry[V]{
		Key:         key,
		Value:       value,
		CreatedAt:   rec.CreatedAt,
		AccessedAt:  now,
		ExpiresAt:   rec.ExpiresAt,
		AccessCount: rec.AccessCount + 1,
	}, nil
}

// Has reports whether a live entry exists without touching it.
func (d *DurableTier[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := d.ensureInit(ctx); err != nil {
		return false, err
	}
	rec, err := d.store.Read(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.clock.now().Before(rec.ExpiresAt), nil
}

// Set stores value under key for ttl, making room within the budget first.
func (d *DurableTier[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if err := d.ensureInit(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	size := int64(len(payload) + len(key))
	if size > d.budget {
		return fmt.Errorf("%s (%d bytes): %w", key, size, ErrTooLarge)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	now := d.clock.now()
	if err := d.makeRoom(ctx, size, now); err != nil {
		return err
	}

	e := Wrap(key, value, ttl, now)
	return d.store.Write(ctx, &store.EntryRecord{
		Key:        key,
		Payload:    payload,
		Size:       size,
		CreatedAt:  e.CreatedAt,
		AccessedAt: e.AccessedAt,
		ExpiresAt:  e.ExpiresAt,
	})
}

// makeRoom frees space for an incoming entry of size bytes. Caller holds writeMu.
func (d *DurableTier[V]) makeRoom(ctx context.Context, size int64, now time.Time) error {
	total, err := d.store.TotalSize(ctx)
	if err != nil {
		return fmt.Errorf("measure durable tier: %w", err)
	}
	if total+size <= d.budget {
		return nil
	}

	freed, err := d.store.RemoveExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge expired: %w", err)
	}
	if freed > 0 {
		d.metrics.Expire(TierDurable)
	}
	total -= freed
	if total+size <= d.budget {
		return nil
	}

	target := int64(float64(d.budget) * core.DurableEvictRatio)
	if overflow := total + size - d.budget; overflow > target {
		target = overflow
	}

	victims, err := d.store.OldestFirst(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	var evicted int64
	for _, v := range victims {
		if evicted >= target {
			break
		}
		removed, err := d.store.Remove(ctx, v.Key)
		if err != nil {
			return fmt.Errorf("evict %s: %w", v.Key, err)
		}
		if removed {
			evicted += v.Size
			d.metrics.Eviction(TierDurable)
		}
	}
	d.logger.Debug("durable tier evicted",
		zap.Int64("freed_expired", freed),
		zap.Int64("freed_oldest", evicted),
		zap.Int64("budget", d.budget))
	return nil
}

// Delete removes key and reports whether it was present.
func (d *DurableTier[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := d.ensureInit(ctx); err != nil {
		return false, err
	}
	return d.store.Remove(ctx, key)
}

// Clear removes every entry.
func (d *DurableTier[V]) Clear(ctx context.Context) error {
	if err := d.ensureInit(ctx); err != nil {
		return err
	}
	return d.store.Clear(ctx)
}

// Size returns the sum of stored entry sizes in bytes.
func (d *DurableTier[V]) Size(ctx context.Context) (int64, error) {
	if err := d.ensureInit(ctx); err != nil {
		return 0, err
	}
	return d.store.TotalSize(ctx)
}

// Count returns the number of stored entries.
func (d *DurableTier[V]) Count(ctx context.Context) (int, error) {
	if err := d.ensureInit(ctx); err != nil {
		return 0, err
	}
	return d.store.Count(ctx)
}
