package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryEntryStore is an in-memory EntryStore for testing.
type MemoryEntryStore struct {
	entries map[string]*EntryRecord
	seq     map[string]int64
	next    int64
	inits   int
	initErr []error
	mu      sync.RWMutex
}

// NewMemoryEntryStore creates a new in-memory entry store.
func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{
		entries: make(map[string]*EntryRecord),
		seq:     make(map[string]int64),
	}
}

// FailInit queues errors to be returned by successive Init calls.
func (m *MemoryEntryStore) FailInit(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = append(m.initErr, errs...)
}

// Inits returns how many times Init has been called.
func (m *MemoryEntryStore) Inits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inits
}

func (m *MemoryEntryStore) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	if len(m.initErr) > 0 {
		err := m.initErr[0]
		m.initErr = m.initErr[1:]
		return err
	}
	return nil
}

func copyRecord(rec *EntryRecord) *EntryRecord {
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	return &c
}

func (m *MemoryEntryStore) Read(ctx context.Context, key string) (*EntryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *MemoryEntryStore) Write(ctx context.Context, rec *EntryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.seq[rec.Key] = m.next
	m.entries[rec.Key] = copyRecord(rec)
	return nil
}

func (m *MemoryEntryStore) Touch(ctx context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entries[key]
	if !ok {
		return ErrNotFound
	}
	rec.AccessedAt = at
	rec.AccessCount++
	return nil
}

func (m *MemoryEntryStore) Remove(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	delete(m.seq, key)
	return ok, nil
}

func (m *MemoryEntryStore) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var freed int64
	for key, rec := range m.entries {
		if !now.Before(rec.ExpiresAt) {
			freed += rec.Size
			delete(m.entries, key)
			delete(m.seq, key)
		}
	}
	return freed, nil
}

func (m *MemoryEntryStore) OldestFirst(ctx context.Context) ([]EntryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]EntryInfo, 0, len(m.entries))
	for _, rec := range m.entries {
		result = append(result, EntryInfo{Key: rec.Key, Size: rec.Size, CreatedAt: rec.CreatedAt})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return m.seq[result[i].Key] < m.seq[result[j].Key]
	})
	return result, nil
}

func (m *MemoryEntryStore) Clear(ctx context.Context) error {
	m.Reset()
	return nil
}

func (m *MemoryEntryStore) TotalSize(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, rec := range m.entries {
		total += rec.Size
	}
	return total, nil
}

func (m *MemoryEntryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Reset clears all entries (for testing).
func (m *MemoryEntryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*EntryRecord)
	m.seq = make(map[string]int64)
}

// Seed adds entries directly (for testing).
func (m *MemoryEntryStore) Seed(recs ...*EntryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.next++
		m.seq[rec.Key] = m.next
		m.entries[rec.Key] = copyRecord(rec)
	}
}

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	rows  map[string]map[string]Row
	calls map[string]int
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory table store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  make(map[string]map[string]Row),
		calls: make(map[string]int),
	}
}

func (m *MemoryStore) Get(ctx context.Context, table, key string) (*Row, error) {
	if _, err := lookupTable(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get:"+table]++
	row, ok := m.rows[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	row.Params = append([]byte(nil), row.Params...)
	row.Payload = append([]byte(nil), row.Payload...)
	return &row, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, table string, row Row) error {
	if _, err := lookupTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["upsert:"+table]++
	if m.rows[table] == nil {
		m.rows[table] = make(map[string]Row)
	}
	row.Params = append([]byte(nil), row.Params...)
	row.Payload = append([]byte(nil), row.Payload...)
	m.rows[table][row.Key] = row
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, table, key string) error {
	if _, err := lookupTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete:"+table]++
	delete(m.rows[table], key)
	return nil
}

// Calls returns how many times op ("get", "upsert" or "delete") was invoked
// on table.
func (m *MemoryStore) Calls(op, table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op+":"+table]
}

// Len returns the number of rows in table.
func (m *MemoryStore) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows[table])
}
