// Package tokenstore persists the remote access token record.
//
// Every store writes all-or-nothing: a failed Save leaves the previously stored
// record readable.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dokzlo13/huebridge/internal/remote"
)

var (
	_ remote.Store = (*FileStore)(nil)
	_ remote.Store = (*SQLiteStore)(nil)
	_ remote.Store = (*PostgresStore)(nil)
	_ remote.Store = (*MemoryStore)(nil)
)

// FileStore keeps the record as a JSON file readable only by its owner.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a store at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the record, returning remote.ErrTokenNotFound if the file does not exist.
func (f *FileStore) Load(ctx context.Context) (*remote.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", remote.ErrTokenNotFound, f.path)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var rec remote.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &rec, nil
}

// Save writes to a temporary file in the same directory, syncs it and renames it
// over the target.
func (f *FileStore) Save(ctx context.Context, rec *remote.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save token file: %w", err)
	}
	return nil
}

// Delete removes the token file.
func (f *FileStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}
