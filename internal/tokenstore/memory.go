package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokzlo13/huebridge/internal/remote"
)

// MemoryStore keeps the record in memory (tests, ephemeral sessions).
type MemoryStore struct {
	mu  sync.RWMutex
	rec *remote.Record
}

// NewMemoryStore creates an empty store, optionally seeded with rec.
func NewMemoryStore(rec *remote.Record) *MemoryStore {
	m := &MemoryStore{}
	if rec != nil {
		cp := *rec
		m.rec = &cp
	}
	return m
}

func (m *MemoryStore) Load(ctx context.Context) (*remote.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rec == nil {
		return nil, remote.ErrTokenNotFound
	}
	cp := *m.rec
	return &cp, nil
}

func (m *MemoryStore) Save(ctx context.Context, rec *remote.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rec = &cp
	return nil
}

// Clear removes the stored record.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
}
