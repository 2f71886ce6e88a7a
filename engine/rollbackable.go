package engine

import "context"

// Rollbackable is any subsystem that can save an opaque checkpoint token,
// restore to one, and produce an Observation of its current observable
// state. Implementations must make Checkpoint cheap: it is called before
// every frontier step.
//
// Rollback must leave the subsystem indistinguishable from its state at
// Checkpoint time: same observable data, same internal cursors where they
// matter. Observe must be a pure function of current state and should
// avoid heavy work.
type Rollbackable interface {
	Name() string
	Checkpoint(ctx context.Context, name string) (CheckpointToken, error)
	Rollback(ctx context.Context, token CheckpointToken) error
	Observe(ctx context.Context) (Observation, error)
	// Close releases any resources held by the adapter (connections, file
	// handles, scratch files). Called once when the owning World shuts down.
	Close(ctx context.Context) error
}
