package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilesystemEntryStore(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewFilesystemEntryStore(tmpDir)
	ctx := context.Background()

	rec := record("search:abc", time.Now().Round(time.Second), 42)
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	path := s.Path(rec.Key)
	if filepath.Dir(filepath.Dir(path)) != tmpDir {
		t.Errorf("Expected %s to live one shard below %s", path, tmpDir)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file %s to exist", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be renamed away")
	}

	got, err := s.Read(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Size != 42 {
		t.Errorf("Expected size 42, got %d", got.Size)
	}
}

func TestFilesystemEntryStoreCorruptFile(t *testing.T) {
	s := NewFilesystemEntryStore(t.TempDir())
	ctx := context.Background()

	path := s.Path("broken")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read(ctx, "broken"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for corrupt file, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected corrupt file to be removed")
	}
}

func TestFilesystemEntryStoreMissingRoot(t *testing.T) {
	s := NewFilesystemEntryStore(filepath.Join(t.TempDir(), "never-created"))
	n, err := s.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Expected empty count on missing root, got %d, %v", n, err)
	}
}
