package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/colthorp/prospect/internal/core"
)

// FilesystemEntryStore stores one JSON file per entry on disk.
// Layout: <root>/<h[0:2]>/<h>.json where h is the SHA-256 of the key.
type FilesystemEntryStore struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemEntryStore creates a filesystem entry store rooted at root.
// An empty root uses ~/.prospect/cache.
func NewFilesystemEntryStore(root string) *FilesystemEntryStore {
	if root == "" {
		root = filepath.Join(core.CacheRoot(), "cache")
	}
	return &FilesystemEntryStore{root: root}
}

// Path returns the file path for key.
func (s *FilesystemEntryStore) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, h[:2], h+".json")
}

func (s *FilesystemEntryStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", s.root, err)
	}
	return nil
}

func (s *FilesystemEntryStore) readPath(path string) (*EntryRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec EntryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt file, remove it
		os.Remove(path)
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *FilesystemEntryStore) Read(ctx context.Context, key string) (*EntryRecord, error) {
	rec, err := s.readPath(s.Path(key))
	if err != nil {
		return nil, err
	}
	if rec.Key != key {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Write persists the entry atomically.
func (s *FilesystemEntryStore) Write(ctx context.Context, rec *EntryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.writeFile(s.Path(rec.Key), data)
}

func (s *FilesystemEntryStore) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (s *FilesystemEntryStore) Touch(ctx context.Context, key string, at time.Time) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	path := s.Path(key)
	rec, err := s.readPath(path)
	if err != nil {
		return err
	}
	rec.AccessedAt = at
	rec.AccessCount++
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.writeFile(path, data)
}

func (s *FilesystemEntryStore) Remove(ctx context.Context, key string) (bool, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	err := os.Remove(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// scan reads every entry file under root.
func (s *FilesystemEntryStore) scan() ([]*EntryRecord, []string, error) {
	var recs []*EntryRecord
	var paths []string

	shards, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		shardPath := filepath.Join(s.root, shard.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, file := range files {
			if filepath.Ext(file.Name()) != ".json" {
				continue
			}
			path := filepath.Join(shardPath, file.Name())
			rec, err := s.readPath(path)
			if err != nil {
				continue
			}
			recs = append(recs, rec)
			paths = append(paths, path)
		}
	}
	return recs, paths, nil
}

func (s *FilesystemEntryStore) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	recs, paths, err := s.scan()
	if err != nil {
		return 0, err
	}
	var freed int64
	for i, rec := range recs {
		if now.Before(rec.ExpiresAt) {
			continue
		}
		if err := os.Remove(paths[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return freed, err
		}
		freed += rec.Size
	}
	return freed, nil
}

func (s *FilesystemEntryStore) OldestFirst(ctx context.Context) ([]EntryInfo, error) {
	recs, _, err := s.scan()
	if err != nil {
		return nil, err
	}
	result := make([]EntryInfo, 0, len(recs))
	for _, rec := range recs {
		result = append(result, EntryInfo{Key: rec.Key, Size: rec.Size, CreatedAt: rec.CreatedAt})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (s *FilesystemEntryStore) Clear(ctx context.Context) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	shards, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, shard := range shards {
		if shard.IsDir() && len(shard.Name()) == 2 {
			if err := os.RemoveAll(filepath.Join(s.root, shard.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FilesystemEntryStore) TotalSize(ctx context.Context) (int64, error) {
	recs, _, err := s.scan()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, rec := range recs {
		total += rec.Size
	}
	return total, nil
}

func (s *FilesystemEntryStore) Count(ctx context.Context) (int, error) {
	recs, _, err := s.scan()
	return len(recs), err
}
