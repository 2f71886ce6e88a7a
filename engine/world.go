package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	engerrors "github.com/R3E-Network/exploration-engine/infrastructure/errors"
	"github.com/R3E-Network/exploration-engine/infrastructure/logging"
)

// WorldConfig configures a new World.
type WorldConfig struct {
	Transport Transport
	Systems   map[string]Rollbackable
	// StateFromContextKeys, when non-empty, derives a pseudo-observation
	// from this named subset of Context keys instead of (or in addition
	// to) querying Rollbackables. At least one of Systems or
	// StateFromContextKeys must be non-empty.
	StateFromContextKeys []string
	Logger               *logging.Logger
}

// World is the single point of truth for "current reality" during one
// Agent's exploration: it owns one HTTP transport and a
// system-name -> Rollbackable mapping, and provides atomic checkpoint and
// rollback across all systems.
type World struct {
	transport Transport
	systems   map[string]Rollbackable
	// orderedNames is the fixed iteration order used for checkpoint and
	// rollback, so that partial-failure release/best-effort semantics are
	// deterministic.
	orderedNames    []string
	contextKeys     []string
	context         *Context
	logger          *logging.Logger
	checkpoints     map[string]*Checkpoint
	mu              sync.Mutex
	poisoned        bool
	poisonedReason  string
}

// NewWorld constructs a World. Returns a configuration EngineError if
// neither Systems nor StateFromContextKeys is supplied: such a World could
// never produce a rollback-able State or a meaningful fingerprint.
func NewWorld(cfg WorldConfig) (*World, error) {
	if len(cfg.Systems) == 0 && len(cfg.StateFromContextKeys) == 0 {
		return nil, engerrors.Configuration("world requires at least one rollbackable system or state_from_context keys")
	}

	names := make([]string, 0, len(cfg.Systems))
	for name := range cfg.Systems {
		names = append(names, name)
	}
	sort.Strings(names)

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &World{
		transport:    cfg.Transport,
		systems:      cfg.Systems,
		orderedNames: names,
		contextKeys:  cfg.StateFromContextKeys,
		context:      NewContext(),
		logger:       logger,
		checkpoints:  make(map[string]*Checkpoint),
	}, nil
}

// Context returns the World's path-scoped scratchpad.
func (w *World) Context() *Context { return w.context }

// Poisoned reports whether a fatal subsystem failure has occurred.
func (w *World) Poisoned() (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.poisoned, w.poisonedReason
}

// System returns the named Rollbackable, primarily for Invariant checks
// that need direct access to a specific subsystem.
func (w *World) System(name string) (Rollbackable, bool) {
	r, ok := w.systems[name]
	return r, ok
}

// Act executes action.Execute against the transport and current context,
// recording last_response/last_status on the Context. It does not itself
// validate expected_status; that is the Agent's responsibility.
func (w *World) Act(action Action) *ActionResult {
	result := action.Execute(w.transport, w.context)
	if result == nil {
		// Sentinel for "precondition not met at runtime": the Agent treats
		// this as a skip, not a failure.
		return nil
	}
	w.context.Set("last_response", result.Response)
	if result.Response != nil {
		w.context.Set("last_status", result.Response.StatusCode)
	}
	return result
}

// Observe calls Observe on every registered Rollbackable in the World's
// fixed order, folds in the state_from_context pseudo-observation when
// configured, snapshots the context, and returns an unlinked State (the
// Agent attaches ParentTransitionID and CheckpointID before inserting it
// into the Graph).
func (w *World) Observe(ctx context.Context) (*State, error) {
	observations := make(map[string]Observation, len(w.orderedNames)+1)

	for _, name := range w.orderedNames {
		obs, err := w.systems[name].Observe(ctx)
		if err != nil {
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
		observations[name] = obs
	}

	if len(w.contextKeys) > 0 {
		data := make(map[string]interface{}, len(w.contextKeys))
		for _, k := range w.contextKeys {
			data[k] = w.context.Get(k, nil)
		}
		observations["state_from_context"] = Observation{
			System:     "state_from_context",
			Data:       data,
			ObservedAt: time.Now(),
		}
	}

	snapshot := w.context.Snapshot()
	state := &State{
		ID:              newStateID(),
		Observations:    observations,
		CreatedAt:       time.Now(),
		ContextSnapshot: snapshot,
	}
	state.fingerprint = fingerprintState(observations, snapshot)
	return state, nil
}

// Checkpoint captures a World-wide snapshot: it iterates over systems in
// the fixed order and collects one token per system. If any subsystem
// fails, already-acquired tokens are released in reverse order and a fatal
// CheckpointFailure is returned; no partial checkpoint is ever retained.
func (w *World) Checkpoint(ctx context.Context, name string) (*Checkpoint, error) {
	tokens := make(map[string]CheckpointToken, len(w.orderedNames))
	acquired := make([]string, 0, len(w.orderedNames))

	for _, sysName := range w.orderedNames {
		token, err := w.systems[sysName].Checkpoint(ctx, name)
		w.logger.LogCheckpoint(ctx, sysName, name, err)
		if err != nil {
			for i := len(acquired) - 1; i >= 0; i-- {
				released := acquired[i]
				if releaseErr := w.releaseBestEffort(ctx, released, tokens[released]); releaseErr != nil {
					w.logger.WithFields(map[string]interface{}{
						"system": released,
					}).WithError(releaseErr).Warn("failed to release checkpoint token during rollback of a failed checkpoint attempt")
				}
			}
			return nil, engerrors.CheckpointFailure(sysName, err)
		}
		tokens[sysName] = token
		acquired = append(acquired, sysName)
	}

	cp := &Checkpoint{
		ID:                newCheckpointID(),
		Name:              name,
		SystemCheckpoints: tokens,
		CreatedAt:         time.Now(),
	}

	w.mu.Lock()
	w.checkpoints[cp.ID] = cp
	w.mu.Unlock()

	return cp, nil
}

// releaseBestEffort is a hook point for adapters that hold scarce resources
// per-token (e.g. scratch files). The default Rollbackable contract has no
// explicit "release" operation distinct from rollback, so this is a no-op
// unless the adapter also implements releaser.
func (w *World) releaseBestEffort(ctx context.Context, system string, token CheckpointToken) error {
	if r, ok := w.systems[system].(releaser); ok {
		return r.Release(ctx, token)
	}
	return nil
}

// releaser is an optional extension to Rollbackable for adapters that need
// to free resources tied to an unused checkpoint token (e.g. delete a
// scratch file copy).
type releaser interface {
	Release(ctx context.Context, token CheckpointToken) error
}

// Rollback restores every system from its token in cp, in the World's
// fixed order. If any subsystem fails, rollback continues best-effort for
// the remainder but the World is marked poisoned; the Agent must abort
// after observing this.
func (w *World) Rollback(ctx context.Context, cp *Checkpoint) error {
	var firstErr error
	for _, sysName := range w.orderedNames {
		token, ok := cp.SystemCheckpoints[sysName]
		if !ok {
			continue
		}
		err := w.systems[sysName].Rollback(ctx, token)
		w.logger.LogRollback(ctx, sysName, cp.ID, err)
		if err != nil && firstErr == nil {
			firstErr = engerrors.RollbackFailure(sysName, err)
		}
	}
	if firstErr != nil {
		w.mu.Lock()
		w.poisoned = true
		w.poisonedReason = firstErr.Error()
		w.mu.Unlock()
		return firstErr
	}
	return nil
}

// Close releases every registered Rollbackable and the transport.
func (w *World) Close(ctx context.Context) error {
	var firstErr error
	for _, name := range w.orderedNames {
		if err := w.systems[name].Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	if w.transport != nil {
		if err := w.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
