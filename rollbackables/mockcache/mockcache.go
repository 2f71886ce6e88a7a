// Package mockcache implements engine.Rollbackable over an in-process
// TTL cache, standing in for a caching layer (Redis, memcached, a CDN edge
// cache) during exploration: actions can read through it, poison entries,
// and observe hit/miss-relevant state without a live cache dependency.
package mockcache

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
	"github.com/R3E-Network/exploration-engine/infrastructure/cache"
)

// Token holds a deep copy of the cache's entries at checkpoint time.
type Token struct {
	system   string
	snapshot map[string]cache.CacheEntry
}

func (t Token) System() string { return t.system }

// Adapter wraps a cache.TTLCache as a checkpointable subsystem.
type Adapter struct {
	name  string
	cache *cache.TTLCache
}

// New constructs an Adapter with the given default entry TTL.
func New(name string, defaultTTL time.Duration) *Adapter {
	if name == "" {
		name = "cache"
	}
	return &Adapter{name: name, cache: cache.NewTTLCache(defaultTTL)}
}

func (a *Adapter) Name() string { return a.name }

// Get reads a value through the cache. Exposed for Action.Execute bodies
// that want to assert on or warm cache state.
func (a *Adapter) Get(ctx context.Context, key string) (interface{}, bool) {
	return a.cache.Get(ctx, key)
}

// Set writes a value through the cache.
func (a *Adapter) Set(ctx context.Context, key string, value interface{}) {
	a.cache.Set(ctx, key, value)
}

// Delete evicts a single key, simulating a cache invalidation on write.
func (a *Adapter) Delete(ctx context.Context, key string) {
	a.cache.Delete(ctx, key)
}

func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	return Token{system: a.name, snapshot: a.cache.Snapshot()}, nil
}

func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}
	a.cache.Restore(t.snapshot)
	return nil
}

func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"entries": a.cache.Size(),
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}
