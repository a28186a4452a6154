package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/prospect/internal/store"
)

func TestDurableTierRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemoryEntryStore()
	d := NewDurableTier[map[string]int](s, 1<<20, clock.Now, nil, nil)

	require.NoError(t, d.Set(ctx, "k", map[string]int{"restaurant": 3}, time.Hour))
	clock.Advance(time.Minute)

	e, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Value["restaurant"])
	assert.Equal(t, 59*time.Minute, e.Remaining(clock.Now()))

	rec, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.AccessCount, "touch persisted")
	assert.Equal(t, int64(len(`{"restaurant":3}`)+len("k")), rec.Size)

	_, err = d.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDurableTierExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemoryEntryStore()
	d := NewDurableTier[string](s, 1<<20, clock.Now, nil, nil)

	require.NoError(t, d.Set(ctx, "k", "v", 10*time.Second))
	clock.Advance(10 * time.Second)

	_, err := d.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	n, _ := s.Count(ctx)
	assert.Zero(t, n, "expired entry deleted on read")
}

func TestDurableTierInitOnceConcurrently(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEntryStore()
	d := NewDurableTier[string](s, 1<<20, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Count(ctx)
		}()
	}
	wg.Wait()
	_, _ = d.Count(ctx)

	assert.Equal(t, 1, s.Inits(), "one shared init")
}

func TestDurableTierInitRetriedAfterFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEntryStore()
	s.FailInit(errors.New("disk unavailable"))
	d := NewDurableTier[string](s, 1<<20, nil, nil, nil)

	_, err := d.Count(ctx)
	require.Error(t, err)

	_, err = d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Inits())
}

func TestDurableTierPurgesExpiredBeforeEvicting(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	metrics := newCountingMetrics()
	s := store.NewMemoryEntryStore()

	value := strings.Repeat("x", 90) // 92 bytes encoded + 2 byte key
	d := NewDurableTier[string](s, 400, clock.Now, metrics, nil)

	require.NoError(t, d.Set(ctx, "k1", value, time.Second))
	require.NoError(t, d.Set(ctx, "k2", value, time.Hour))
	require.NoError(t, d.Set(ctx, "k3", value, time.Hour))
	require.NoError(t, d.Set(ctx, "k4", value, time.Hour))
	clock.Advance(2 * time.Second)

	require.NoError(t, d.Set(ctx, "k5", value, time.Hour))

	has, _ := d.Has(ctx, "k2")
	assert.True(t, has, "live entries survive when purging expired is enough")
	assert.Zero(t, metrics.evictions[TierDurable])
	size, _ := d.Size(ctx)
	assert.LessOrEqual(t, size, int64(400))
}

func TestDurableTierEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemoryEntryStore()

	value := strings.Repeat("x", 90)
	d := NewDurableTier[string](s, 1000, clock.Now, nil, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Set(ctx, fmt.Sprintf("k%d", i), value, time.Hour))
		clock.Advance(time.Second)
	}
	// Read the oldest; access recency must not protect it.
	_, err := d.Get(ctx, "k0")
	require.NoError(t, err)

	require.NoError(t, d.Set(ctx, "kn", value, time.Hour))

	has, _ := d.Has(ctx, "k0")
	assert.False(t, has, "oldest inserted evicted first")
	has, _ = d.Has(ctx, "k1")
	assert.False(t, has, "10% of budget (100 bytes) takes two 94-byte victims")
	has, _ = d.Has(ctx, "k2")
	assert.True(t, has)
	has, _ = d.Has(ctx, "kn")
	assert.True(t, has)

	size, err := d.Size(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, size, int64(1000))
}

func TestDurableTierRejectsOversizedEntry(t *testing.T) {
	d := NewDurableTier[string](store.NewMemoryEntryStore(), 10, nil, nil, nil)
	err := d.Set(context.Background(), "k", strings.Repeat("x", 100), time.Hour)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDurableTierOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	d := NewDurableTier[[]string](s, 1<<20, nil, nil, nil)
	require.NoError(t, d.Set(ctx, "k", []string{"a", "b"}, time.Hour))

	e, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, e.Value)

	removed, err := d.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)
}
