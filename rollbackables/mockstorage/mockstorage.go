// Package mockstorage implements engine.Rollbackable as an in-memory blob
// store, adapting infrastructure/state's StateStore/MemoryBackend so that
// exploration runs exercising a "blob storage" dependency don't need a real
// object store: Checkpoint takes its existing Snapshot, Rollback replaces
// the live contents with it wholesale.
package mockstorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
	"github.com/R3E-Network/exploration-engine/infrastructure/state"
)

// Token holds a deep copy of every key/value pair at checkpoint time.
type Token struct {
	system string
	data   map[string][]byte
}

func (t Token) System() string { return t.system }

// Adapter is a blob store keyed by object name, backed by an in-memory
// StateStore.
type Adapter struct {
	name      string
	keyPrefix string
	store     *state.StateStore
	mu        sync.Mutex
}

// New constructs an Adapter. name becomes the StateStore key prefix as well
// as the Rollbackable's System() name.
func New(name string) (*Adapter, error) {
	if name == "" {
		name = "storage"
	}
	keyPrefix := name + ":"
	store, err := state.NewPersistentState(state.StateConfig{
		Backend:   state.NewMemoryBackend(0),
		KeyPrefix: keyPrefix,
		MaxSize:   64 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Adapter{name: name, keyPrefix: keyPrefix, store: store}, nil
}

func (a *Adapter) Name() string { return a.name }

// Put stores an object. Exposed for Action.Execute bodies that model
// blob-storage side effects.
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	return a.store.Save(ctx, key, data)
}

// Get retrieves an object, returning state.ErrNotFound if absent.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.store.Load(ctx, key)
}

// Delete removes an object.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}

// List returns every object key (relative to this adapter) with the given
// prefix.
func (a *Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	full, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(full))
	for _, k := range full {
		if len(k) >= len(a.keyPrefix) {
			out = append(out, k[len(a.keyPrefix):])
		}
	}
	return out, nil
}

func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: snapshot: %w", a.name, err)
	}
	data := make(map[string][]byte, len(snap.Data))
	for k, v := range snap.Data {
		cp := make([]byte, len(v))
		copy(cp, v)
		data[k] = cp
	}
	return Token{system: a.name, data: data}, nil
}

func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%s: snapshot before restore: %w", a.name, err)
	}
	for k := range current.Data {
		if err := a.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("%s: clear %s: %w", a.name, k, err)
		}
	}
	for k, v := range t.data {
		if err := a.store.Save(ctx, k, v); err != nil {
			return fmt.Errorf("%s: restore %s: %w", a.name, k, err)
		}
	}
	return nil
}

func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return engine.Observation{}, fmt.Errorf("%s: snapshot: %w", a.name, err)
	}
	keys := make([]string, 0, len(snap.Data))
	for k := range snap.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"object_count": len(keys),
			"keys":         keys,
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}
