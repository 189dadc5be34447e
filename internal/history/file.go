package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"itp/internal/domain"
)

// FileStore keeps the log as a JSON array in a single file. Appends rewrite
// the file through a temporary sibling and a rename, so readers see either
// the old or the new log.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save appends snap to the log.
func (s *FileStore) Save(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.read()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(append(snaps, snap))
}

// Snapshots returns the last n snapshots, or all when n <= 0.
func (s *FileStore) Snapshots(ctx context.Context, n int) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.read()
	if err != nil {
		return nil, err
	}
	return lastN(snaps, n), nil
}

// SnapshotsByDate returns snapshots with start <= timestamp <= end.
func (s *FileStore) SnapshotsByDate(ctx context.Context, start, end time.Time) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []domain.Snapshot
	for _, snap := range snaps {
		if inRange(snap.Timestamp, start, end) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Clear removes the log file.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() ([]domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var snaps []domain.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return snaps, nil
}

func (s *FileStore) write(snaps []domain.Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(s.path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snaps); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode history: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}
