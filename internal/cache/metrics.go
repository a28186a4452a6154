package cache

// Tier names a cache tier in metrics.
type Tier string

const (
	TierFast    Tier = "fast"
	TierDurable Tier = "durable"
)

// Metrics receives cache lifecycle events.
type Metrics interface {
	// Hit is called when a read is served, by the tier that served it.
	Hit(tier Tier)

	// Miss is called when neither tier has a live entry.
	Miss()

	// Eviction is called for each entry removed to make room.
	Eviction(tier Tier)

	// Expire is called when an expired entry is removed.
	Expire(tier Tier)

	// WriteError is called when a background durable write fails.
	WriteError()

	// DroppedWrite is called when the write-back queue is full.
	DroppedWrite()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit(Tier)      {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Eviction(Tier) {}
func (NoopMetrics) Expire(Tier)   {}
func (NoopMetrics) WriteError()   {}
func (NoopMetrics) DroppedWrite() {}
