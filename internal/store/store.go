// Package store provides the persistence backends behind the durable cache
// tier and the shared search/place cache tables.
//
// Two contracts live here:
//
//   - EntryStore holds durable-tier cache entries with their TTL and access
//     metadata. Implementations: SQLite (table cache_entries), filesystem
//     (one JSON file per key) and memory (tests).
//   - Store is a keyed table store over the shared tables search_cache and
//     place_cache. Implementations: SQLite, Supabase (PostgREST) and memory.
//
// Both return ErrNotFound for absent keys.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("store: not found")

// Shared table names.
const (
	TableSearchCache = "search_cache"
	TablePlaceCache  = "place_cache"
)

// tableSpec maps a logical table onto its column names.
type tableSpec struct {
	keyCol     string
	payloadCol string
	hasParams  bool
}

var tables = map[string]tableSpec{
	TableSearchCache: {keyCol: "cache_key", payloadCol: "result_payload", hasParams: true},
	TablePlaceCache:  {keyCol: "place_id", payloadCol: "detail_payload"},
}

func lookupTable(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("store: unknown table %q", table)
	}
	return spec, nil
}

// Row is one record of a shared cache table. Params is only persisted for
// search_cache.
type Row struct {
	Key       string          `json:"key"`
	Params    json.RawMessage `json:"params,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the row is past its expiry at now.
func (r *Row) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store is a keyed store over the shared cache tables. Upsert replaces any
// existing row with the same key (last write wins).
type Store interface {
	Get(ctx context.Context, table, key string) (*Row, error)
	Upsert(ctx context.Context, table string, row Row) error
	Delete(ctx context.Context, table, key string) error
}

// EntryRecord is a durable-tier cache entry as persisted.
type EntryRecord struct {
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	Size        int64           `json:"size"`
	CreatedAt   time.Time       `json:"created_at"`
	AccessedAt  time.Time       `json:"accessed_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	AccessCount int64           `json:"access_count"`
}

// EntryInfo is the metadata needed to pick eviction victims.
type EntryInfo struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// EntryStore persists durable-tier entries.
type EntryStore interface {
	// Init prepares the backing storage. It must be safe to call again
	// after a failure.
	Init(ctx context.Context) error

	// Read returns the entry for key or ErrNotFound.
	Read(ctx context.Context, key string) (*EntryRecord, error)

	// Write inserts or replaces the entry.
	Write(ctx context.Context, rec *EntryRecord) error

	// Touch sets AccessedAt to at and increments AccessCount.
	Touch(ctx context.Context, key string, at time.Time) error

	// Remove deletes the entry and reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// RemoveExpired deletes every entry whose ExpiresAt <= now and returns
	// the bytes freed.
	RemoveExpired(ctx context.Context, now time.Time) (int64, error)

	// OldestFirst lists entries ordered by CreatedAt ascending.
	OldestFirst(ctx context.Context) ([]EntryInfo, error)

	// Clear deletes every entry.
	Clear(ctx context.Context) error

	// TotalSize returns the sum of Size over all entries.
	TotalSize(ctx context.Context) (int64, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
}
