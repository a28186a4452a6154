package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	now := newFakeClock().Now()
	e := Wrap("k", 42, time.Minute, now)

	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, now, e.AccessedAt)
	assert.Equal(t, now.Add(time.Minute), e.ExpiresAt)
	assert.Zero(t, e.AccessCount)
}

func TestWrapNonPositiveTTL(t *testing.T) {
	now := newFakeClock().Now()
	e := Wrap("k", "v", 0, now)
	assert.True(t, e.ExpiresAt.After(e.CreatedAt))
	assert.True(t, e.IsLive(now))
	assert.False(t, e.IsLive(now.Add(time.Nanosecond)))
}

func TestEntryLivenessBoundary(t *testing.T) {
	now := newFakeClock().Now()
	e := Wrap("k", "v", 10*time.Second, now)

	assert.True(t, e.IsLive(now.Add(10*time.Second-time.Nanosecond)))
	assert.False(t, e.IsLive(now.Add(10*time.Second)), "expiry instant is not live")
	assert.Equal(t, 4*time.Second, e.Remaining(now.Add(6*time.Second)))
	assert.Zero(t, e.Remaining(now.Add(time.Minute)))
}

func TestEntryTouch(t *testing.T) {
	now := newFakeClock().Now()
	e := Wrap("k", "v", time.Minute, now)
	e.Touch(now.Add(time.Second))
	e.Touch(now.Add(2 * time.Second))

	assert.Equal(t, int64(2), e.AccessCount)
	assert.Equal(t, now.Add(2*time.Second), e.AccessedAt)
	assert.Equal(t, now, e.CreatedAt)
}
