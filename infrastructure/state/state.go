// Package state implements the in-memory, prefixed key/value backend that
// rollbackables/mockstorage adapts into an engine.Rollbackable blob store.
// Unlike the teacher's general-purpose persistence layer, this backend never
// evicts or expires a key on its own: a Rollbackable's Observe/Checkpoint
// must see a value exactly as long as the exploration keeps it, so no
// TTL-driven cleanup loop or compare-and-swap machinery is carried here —
// those would let a key change between Checkpoint and Rollback without the
// engine ever calling Act, which would silently break rollback fidelity.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotFound = errors.New("key not found")

// PersistenceBackend is the storage primitive StateStore delegates to.
// MemoryBackend is the only implementation mockstorage needs.
type PersistenceBackend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close(ctx context.Context) error
}

// MemoryBackend is a process-local PersistenceBackend: a guarded map with no
// expiry. cleanupInterval is accepted for API parity with a durable backend
// but MemoryBackend keeps every key until Delete or Close removes it.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryBackend) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// StateStore is a key/value facade over a PersistenceBackend that prefixes
// every key and caps value size, the shape rollbackables/mockstorage needs
// for its Put/Get/Delete/List surface and Checkpoint/Rollback snapshots.
type StateStore struct {
	mu        sync.RWMutex
	backend   PersistenceBackend
	keyPrefix string
	maxSize   int
}

// StateConfig configures a new StateStore.
type StateConfig struct {
	Backend   PersistenceBackend
	KeyPrefix string
	MaxSize   int
}

func NewPersistentState(cfg StateConfig) (*StateStore, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "state:"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1024 * 1024
	}
	return &StateStore{
		backend:   cfg.Backend,
		keyPrefix: cfg.KeyPrefix,
		maxSize:   cfg.MaxSize,
	}, nil
}

func (s *StateStore) Save(ctx context.Context, key string, data []byte) error {
	if len(data) > s.maxSize {
		return fmt.Errorf("data size %d exceeds max size %d", len(data), s.maxSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Save(ctx, s.keyPrefix+key, data)
}

func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Load(ctx, s.keyPrefix+key)
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.keyPrefix+key)
}

func (s *StateStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, s.keyPrefix+prefix)
}

func (s *StateStore) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// Snapshot is a point-in-time copy of every key this StateStore owns,
// keyed relative to its prefix. rollbackables/mockstorage's Checkpoint
// deep-copies a Snapshot's Data as its CheckpointToken.
type Snapshot struct {
	Timestamp time.Time
	Data      map[string][]byte
}

func (s *StateStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, err := s.backend.List(ctx, s.keyPrefix)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Timestamp: time.Now(),
		Data:      make(map[string][]byte),
	}

	for _, key := range keys {
		data, err := s.backend.Load(ctx, key)
		if err != nil {
			continue
		}
		relKey := key[len(s.keyPrefix):]
		snapshot.Data[relKey] = data
	}

	return snapshot, nil
}
