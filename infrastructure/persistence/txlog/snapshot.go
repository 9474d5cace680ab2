package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"curricula/application/ports"
)

const snapshotFileName = "snapshot.json"

// FileSnapshotStore keeps the latest snapshot as a single JSON file,
// written atomically via rename.
type FileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewFileSnapshotStore creates a snapshot store under dir
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &FileSnapshotStore{path: filepath.Join(dir, snapshotFileName)}, nil
}

// Save persists a snapshot, replacing any previous one
func (s *FileSnapshotStore) Save(ctx context.Context, snapshot ports.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("swapping snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or found=false when none exists
func (s *FileSnapshotStore) Latest(ctx context.Context) (ports.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ports.Snapshot{}, false, nil
	}
	if err != nil {
		return ports.Snapshot{}, false, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot ports.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		// A torn snapshot is treated as absent; the log still has everything
		return ports.Snapshot{}, false, nil
	}
	return snapshot, true, nil
}
