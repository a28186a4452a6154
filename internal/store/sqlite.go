package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS cache_entries (
    key          TEXT PRIMARY KEY,
    payload      BLOB NOT NULL,
    size         INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    accessed_at  INTEGER NOT NULL,
    expires_at   INTEGER NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at ASC);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS search_cache (
    cache_key      TEXT PRIMARY KEY,
    query_params   TEXT NOT NULL DEFAULT '{}',
    result_payload TEXT NOT NULL,
    expires_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);

CREATE TABLE IF NOT EXISTS place_cache (
    place_id       TEXT PRIMARY KEY,
    detail_payload TEXT NOT NULL,
    expires_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_place_cache_expires_at ON place_cache(expires_at);
`,
	},
}

// SQLite implements both EntryStore and Store on a single database file.
type SQLite struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite returns a store for the database at path. Nothing is opened until
// Init (or the first Store call). Pass ":memory:" for an in-memory database.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	s := NewSQLite(path)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and applies pending migrations. It is a no-op once
// it has succeeded.
func (s *SQLite) Init(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *SQLite) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", s.path, err)
	}
	// One connection keeps ":memory:" databases coherent and writers serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database if it was opened.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ─── Durable entries ──────────────────────────────────────────────────────────

func (s *SQLite) Read(ctx context.Context, key string) (*EntryRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rec := &EntryRecord{Key: key}
	var payload []byte
	var created, accessed, expires int64
	err = db.QueryRowContext(ctx, `SELECT payload,size,created_at,accessed_at,expires_at,access_count FROM cache_entries WHERE key=?`, key).
		Scan(&payload, &rec.Size, &created, &accessed, &expires, &rec.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	rec.Payload = payload
	rec.CreatedAt = time.Unix(0, created)
	rec.AccessedAt = time.Unix(0, accessed)
	rec.ExpiresAt = time.Unix(0, expires)
	return rec, nil
}

func (s *SQLite) Write(ctx context.Context, rec *EntryRecord) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO cache_entries(key, payload, size, created_at, accessed_at, expires_at, access_count)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(key) DO UPDATE SET
            payload=excluded.payload, size=excluded.size, created_at=excluded.created_at,
            accessed_at=excluded.accessed_at, expires_at=excluded.expires_at,
            access_count=excluded.access_count`,
		rec.Key, []byte(rec.Payload), rec.Size,
		rec.CreatedAt.UnixNano(), rec.AccessedAt.UnixNano(), rec.ExpiresAt.UnixNano(),
		rec.AccessCount)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

func (s *SQLite) Touch(ctx context.Context, key string, at time.Time) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE cache_entries SET accessed_at=?, access_count=access_count+1 WHERE key=?`, at.UnixNano(), key)
	if err != nil {
		return fmt.Errorf("touch entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key=?`, key)
	if err != nil {
		return false, fmt.Errorf("remove entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLite) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var freed sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT SUM(size) FROM cache_entries WHERE expires_at<=?`, now.UnixNano()).Scan(&freed); err != nil {
		return 0, fmt.Errorf("sum expired: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at<=?`, now.UnixNano()); err != nil {
		return 0, fmt.Errorf("remove expired: %w", err)
	}
	return freed.Int64, nil
}

func (s *SQLite) OldestFirst(ctx context.Context) ([]EntryInfo, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT key,size,created_at FROM cache_entries ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var result []EntryInfo
	for rows.Next() {
		var info EntryInfo
		var created int64
		if err := rows.Scan(&info.Key, &info.Size, &created); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(0, created)
		result = append(result, info)
	}
	return result, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

func (s *SQLite) TotalSize(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var total sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT SUM(size) FROM cache_entries`).Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

// ─── Shared tables ────────────────────────────────────────────────────────────

func (s *SQLite) Get(ctx context.Context, table, key string) (*Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	params := "'{}'"
	if spec.hasParams {
		params = "query_params"
	}
	query := fmt.Sprintf(`SELECT %s,%s,expires_at FROM %s WHERE %s=?`, params, spec.payloadCol, table, spec.keyCol)

	row := &Row{Key: key}
	var paramsText, payload, expires string
	err = db.QueryRowContext(ctx, query, key).Scan(&paramsText, &payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	if spec.hasParams {
		row.Params = []byte(paramsText)
	}
	row.Payload = []byte(payload)
	if row.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *SQLite) Upsert(ctx context.Context, table string, row Row) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	expires := row.ExpiresAt.UTC().Format(time.RFC3339Nano)
	if spec.hasParams {
		params := string(row.Params)
		if params == "" {
			params = "{}"
		}
		_, err = db.ExecContext(ctx, fmt.Sprintf(`
            INSERT INTO %s(%s, query_params, %s, expires_at) VALUES(?,?,?,?)
            ON CONFLICT(%s) DO UPDATE SET query_params=excluded.query_params,
                %s=excluded.%s, expires_at=excluded.expires_at`,
			table, spec.keyCol, spec.payloadCol, spec.keyCol, spec.payloadCol, spec.payloadCol),
			row.Key, params, string(row.Payload), expires)
	} else {
		_, err = db.ExecContext(ctx, fmt.Sprintf(`
            INSERT INTO %s(%s, %s, expires_at) VALUES(?,?,?)
            ON CONFLICT(%s) DO UPDATE SET %s=excluded.%s, expires_at=excluded.expires_at`,
			table, spec.keyCol, spec.payloadCol, spec.keyCol, spec.payloadCol, spec.payloadCol),
			row.Key, string(row.Payload), expires)
	}
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, table, key string) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, table, spec.keyCol), key)
	return err
}

// parseTime handles the datetime formats SQLite hands back.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
