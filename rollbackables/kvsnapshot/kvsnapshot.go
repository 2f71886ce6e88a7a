// Package kvsnapshot implements engine.Rollbackable over a Redis-style key
// value store. Checkpoint uses DUMP to capture an exact binary snapshot of
// every tracked key; Rollback flushes the tracked keys and RESTOREs them.
package kvsnapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/exploration-engine/engine"
)

// keyDump is one key's exact binary snapshot, or absence (the key did not
// exist at checkpoint time).
type keyDump struct {
	key     string
	payload []byte // nil means the key was absent
}

// Token holds one dump per tracked key.
type Token struct {
	system string
	dumps  []keyDump
}

func (t Token) System() string { return t.system }

// Adapter wraps a redis.Client plus a fixed or pattern-derived set of
// tracked keys.
type Adapter struct {
	name     string
	client   *redis.Client
	keys     []string
	patterns []string
	mu       sync.Mutex
}

// Config configures a new Adapter.
type Config struct {
	Name     string
	Addr     string
	Password string
	DB       int
	// Keys is an explicit list of keys to track.
	Keys []string
	// Patterns is a list of glob patterns (per redis SCAN MATCH) resolved
	// to concrete keys on every Checkpoint/Observe call, covering keys an
	// action creates dynamically.
	Patterns []string
}

// New constructs an Adapter and pings the server.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "kv"
	}

	return &Adapter{
		name:     name,
		client:   client,
		keys:     append([]string(nil), cfg.Keys...),
		patterns: append([]string(nil), cfg.Patterns...),
	}, nil
}

func (a *Adapter) Name() string { return a.name }

// trackedKeys resolves the fixed key list plus every key currently matching
// a configured pattern.
func (a *Adapter) trackedKeys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{}, len(a.keys))
	out := make([]string, 0, len(a.keys))
	for _, k := range a.keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}

	for _, pattern := range a.patterns {
		var cursor uint64
		for {
			matched, next, err := a.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", pattern, err)
			}
			for _, k := range matched {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					out = append(out, k)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return out, nil
}

// Checkpoint DUMPs every tracked key's exact byte representation.
func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys, err := a.trackedKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	dumps := make([]keyDump, 0, len(keys))
	for _, k := range keys {
		payload, err := a.client.Dump(ctx, k).Bytes()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("%s: dump %s: %w", a.name, k, err)
		}
		if err == redis.Nil {
			dumps = append(dumps, keyDump{key: k})
			continue
		}
		dumps = append(dumps, keyDump{key: k, payload: []byte(payload)})
	}

	return Token{system: a.name, dumps: dumps}, nil
}

// Rollback deletes every tracked key and RESTOREs each from its dump. Keys
// that were absent at checkpoint time are simply left deleted.
func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.trackedKeys(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	for _, k := range current {
		if err := a.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("%s: del %s: %w", a.name, k, err)
		}
	}

	for _, d := range t.dumps {
		if err := a.client.Del(ctx, d.key).Err(); err != nil {
			return fmt.Errorf("%s: del %s: %w", a.name, d.key, err)
		}
		if d.payload == nil {
			continue
		}
		if err := a.client.RestoreReplace(ctx, d.key, 0, string(d.payload)).Err(); err != nil {
			return fmt.Errorf("%s: restore %s: %w", a.name, d.key, err)
		}
	}
	return nil
}

// Observe reports the current value type for every tracked key.
func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys, err := a.trackedKeys(ctx)
	if err != nil {
		return engine.Observation{}, fmt.Errorf("%s: %w", a.name, err)
	}

	data := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		typ, err := a.client.Type(ctx, k).Result()
		if err != nil {
			return engine.Observation{}, fmt.Errorf("%s: type %s: %w", a.name, k, err)
		}
		data[k] = typ
	}

	return engine.Observation{
		System:     a.name,
		Data:       data,
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Close()
}
