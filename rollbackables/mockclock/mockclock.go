// Package mockclock implements engine.Rollbackable over a logical clock, so
// Actions can model time-dependent behavior (token expiry, scheduled jobs)
// deterministically without sleeping real wall-clock time.
package mockclock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
)

// Token holds the clock's value at checkpoint time.
type Token struct {
	system string
	now    time.Time
}

func (t Token) System() string { return t.system }

// Adapter is a settable, advanceable logical clock.
type Adapter struct {
	name string
	mu   sync.Mutex
	now  time.Time
}

// New constructs an Adapter starting at start (or time.Now() if zero).
func New(name string, start time.Time) *Adapter {
	if name == "" {
		name = "clock"
	}
	if start.IsZero() {
		start = time.Now()
	}
	return &Adapter{name: name, now: start}
}

func (a *Adapter) Name() string { return a.name }

// Now returns the current logical time.
func (a *Adapter) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

// Advance moves the logical clock forward by d. Exposed for Action.Execute
// bodies that model "time passes" transitions.
func (a *Adapter) Advance(d time.Duration) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = a.now.Add(d)
	return a.now
}

func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Token{system: a.name, now: a.now}, nil
}

func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = t.now
	return nil
}

func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"now_unix_nano": a.now.UnixNano(),
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}
