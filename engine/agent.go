package engine

import (
	"context"
	"time"

	engerrors "github.com/R3E-Network/exploration-engine/infrastructure/errors"
	"github.com/R3E-Network/exploration-engine/infrastructure/logging"
	"github.com/R3E-Network/exploration-engine/infrastructure/metrics"
)

// Bounds caps one exploration run.
type Bounds struct {
	MaxSteps int   // 0 means unbounded
	MaxDepth int   // 0 means unbounded
	FailFast bool
	Seed     int64
}

func (b Bounds) stepsExceeded(taken int) bool {
	return b.MaxSteps > 0 && taken >= b.MaxSteps
}

func (b Bounds) depthExceeded(depth int) bool {
	return b.MaxDepth > 0 && depth >= b.MaxDepth
}

// Agent owns a World, a Graph, a Strategy, the invariant set, and the
// bounds that govern one exploration run. It drives
// act -> observe -> check -> branch until the frontier is empty or a bound
// is reached.
type Agent struct {
	world      *World
	graph      *Graph
	strategy   Strategy
	invariants []Invariant
	bounds     Bounds
	logger     *logging.Logger
	metrics    *metrics.Metrics
	name       string
}

// AgentConfig configures a new Agent.
type AgentConfig struct {
	World      *World
	Actions    []Action
	Invariants []Invariant
	Strategy   Strategy
	Bounds     Bounds
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Name       string
}

// NewAgent constructs an Agent with a fresh Graph seeded from the given
// action catalog.
func NewAgent(cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = NewBFSStrategy()
	}

	return &Agent{
		world:      cfg.World,
		graph:      NewGraph(cfg.Actions),
		strategy:   strategy,
		invariants: cfg.Invariants,
		bounds:     cfg.Bounds,
		logger:     logger,
		metrics:    m,
		name:       name,
	}
}

// Graph exposes the Agent's Graph, primarily for reporters and tests.
func (a *Agent) Graph() *Graph { return a.graph }

// Explore drives the Agent loop to completion (frontier empty, a bound
// reached, a fatal subsystem failure, or ctx cancellation) and returns the
// resulting ExplorationResult. This is the engine's sole public entry
// point; there is no separate Run — see the design notes on Agent.explore
// versus legacy Agent.run naming.
func (a *Agent) Explore(ctx context.Context) *ExplorationResult {
	start := time.Now()
	var violations []Violation

	root, err := a.world.Observe(ctx)
	if err != nil {
		return a.fatalResult(start, violations, engerrors.Configuration(err.Error()))
	}
	cp, err := a.world.Checkpoint(ctx, "root")
	if err != nil {
		return a.fatalResult(start, violations, err)
	}
	root.CheckpointID = cp.ID
	root.Depth = 0
	a.graph.InsertRoot(root)

	violations = append(violations, a.evaluateInvariants(ctx, root, "")...)
	if a.bounds.FailFast && anyHighOrAbove(violations) {
		return a.buildResult(start, violations, false, "")
	}

	stepsTaken := 0
	for {
		select {
		case <-ctx.Done():
			return a.buildResult(start, violations, true, "")
		default:
		}

		if a.bounds.stepsExceeded(stepsTaken) {
			break
		}

		pair, ok := a.strategy.Pick(a.graph)
		if !ok {
			break
		}
		state, action := pair.State, pair.Action

		if a.bounds.depthExceeded(state.Depth) {
			a.graph.MarkExplored(state.ID, action.Name)
			continue
		}

		rootCp, _ := a.checkpointForState(state)
		if rootCp == nil {
			a.graph.MarkExplored(state.ID, action.Name)
			continue
		}
		if err := a.world.Rollback(ctx, rootCp); err != nil {
			return a.fatalResult(start, violations, err)
		}
		a.world.Context().Restore(state.ContextSnapshot)

		preStepCp, err := a.world.Checkpoint(ctx, "pre")
		if err != nil {
			return a.fatalResult(start, violations, err)
		}
		_ = preStepCp // captured for parity with the documented undo-token step; released implicitly at World.Close

		stepStart := time.Now()
		result := a.world.Act(action)
		stepDuration := time.Since(stepStart)
		stepsTaken++

		if result == nil {
			// Skip semantics: precondition not met at runtime.
			a.graph.MarkExplored(state.ID, action.Name)
			continue
		}

		if !result.Success {
			t := Transition{
				ID:          newTransitionID(),
				FromStateID: state.ID,
				ActionName:  action.Name,
				ToStateID:   "",
				Result:      result,
				Timestamp:   time.Now(),
			}
			a.graph.InsertTransition(t)
			a.graph.MarkExplored(state.ID, action.Name)
			a.metrics.RecordStep(a.name, action.Name, "transport_error", stepDuration)
			a.logger.LogStep(ctx, state.ID, action.Name, "transport_error", stepDuration)
			continue
		}

		var assertionViolation *Violation
		if result.Response != nil && !action.expectedStatusOK(result.Response.StatusCode) {
			v := Violation{
				ID:            newViolationID("unexpected_status:"+action.Name, []string{action.Name}),
				InvariantName: "unexpected_status",
				State:         state,
				Action:        action.Name,
				Message:       "expected_status mismatch",
				Severity:      SeverityHigh,
				Timestamp:     time.Now(),
			}
			assertionViolation = &v
		}

		candidate, err := a.world.Observe(ctx)
		if err != nil {
			return a.fatalResult(start, violations, engerrors.Wrap(engerrors.ErrCodeRollbackFailure, "observe after action failed", err))
		}

		toStateID, dup := a.graph.Dedup(candidate)
		var toState *State
		if dup {
			toState, _ = a.graph.State(toStateID)
		} else {
			stepCp, err := a.world.Checkpoint(ctx, candidate.ID)
			if err != nil {
				return a.fatalResult(start, violations, err)
			}
			candidate.CheckpointID = stepCp.ID
			candidate.Depth = state.Depth + 1
			toState = candidate
		}

		t := Transition{
			ID:          newTransitionID(),
			FromStateID: state.ID,
			ActionName:  action.Name,
			ToStateID:   toState.ID,
			Result:      result,
			Timestamp:   time.Now(),
		}
		if !dup && toState.ParentTransitionID == "" {
			toState.ParentTransitionID = t.ID
		}
		a.graph.InsertTransition(t)
		a.graph.MarkExplored(state.ID, action.Name)
		a.strategy.Advance(state, toState, action.Name)

		a.metrics.RecordStep(a.name, action.Name, "ok", stepDuration)
		a.logger.LogStep(ctx, state.ID, action.Name, "ok", stepDuration)

		if assertionViolation != nil {
			assertionViolation.ReproductionPath = a.graph.GetPathTo(toState.ID)
			violations = append(violations, *assertionViolation)
			a.recordViolationMetric(ctx, *assertionViolation)
		}

		stepViolations := a.evaluateInvariants(ctx, toState, action.Name)
		violations = append(violations, stepViolations...)

		if a.bounds.FailFast && anyHighOrAbove(violations) {
			break
		}
	}

	return a.buildResult(start, violations, false, "")
}

// checkpointForState resolves the live Checkpoint for a given State. Only
// the most recently created checkpoint per state id is retained in
// practice, since each state's observe/checkpoint pair happens exactly
// once (modulo dedup, where the duplicate's checkpoint was never created).
func (a *Agent) checkpointForState(s *State) (*Checkpoint, error) {
	if s.CheckpointID == "" {
		return nil, engerrors.Configuration("state has no checkpoint")
	}
	a.world.mu.Lock()
	cp, ok := a.world.checkpoints[s.CheckpointID]
	a.world.mu.Unlock()
	if !ok {
		return nil, engerrors.Configuration("checkpoint not found: " + s.CheckpointID)
	}
	return cp, nil
}

func (a *Agent) evaluateInvariants(ctx context.Context, state *State, actionName string) []Violation {
	var out []Violation
	for _, inv := range a.invariants {
		if inv.Check(a.world) {
			continue
		}
		v := Violation{
			ID:               newViolationID(inv.Name, actionNames(a.graph.GetPathTo(state.ID))),
			InvariantName:    inv.Name,
			State:            state,
			Action:           actionName,
			Message:          inv.Message,
			Severity:         inv.Severity,
			ReproductionPath: a.graph.GetPathTo(state.ID),
			Timestamp:        time.Now(),
		}
		out = append(out, v)
		a.recordViolationMetric(ctx, v)
	}
	return out
}

func (a *Agent) recordViolationMetric(ctx context.Context, v Violation) {
	a.metrics.RecordViolation(a.name, string(v.Severity))
	path := actionNames(v.ReproductionPath)
	a.logger.LogViolation(ctx, v.ID, v.InvariantName, string(v.Severity), path)
}

func actionNames(path []Transition) []string {
	names := make([]string, len(path))
	for i, t := range path {
		names[i] = t.ActionName
	}
	return names
}

func anyHighOrAbove(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity.atLeastHigh() {
			return true
		}
	}
	return false
}

func (a *Agent) buildResult(start time.Time, violations []Violation, cancelled bool, fatal string) *ExplorationResult {
	states, transitions, actions, explored := a.graph.Size()
	coverage := 0.0
	if states > 0 && actions > 0 {
		coverage = float64(explored) / float64(states*actions)
	}
	a.metrics.SetGraphSize(states, transitions, coverage)

	if err := a.world.Close(context.Background()); err != nil {
		a.logger.WithError(err).Warn("world close failed during result finalization")
	}

	return &ExplorationResult{
		Graph:         a.graph,
		Violations:    violations,
		StatesVisited: states,
		Transitions:   transitions,
		Actions:       actions,
		Coverage:      coverage,
		Duration:      time.Since(start),
		FatalError:    fatal,
		Cancelled:     cancelled,
	}
}

func (a *Agent) fatalResult(start time.Time, violations []Violation, err error) *ExplorationResult {
	states, transitions, actions, explored := a.graph.Size()
	coverage := 0.0
	if states > 0 && actions > 0 {
		coverage = float64(explored) / float64(states*actions)
	}
	return &ExplorationResult{
		Graph:         a.graph,
		Violations:    violations,
		StatesVisited: states,
		Transitions:   transitions,
		Actions:       actions,
		Coverage:      coverage,
		Duration:      time.Since(start),
		FatalError:    err.Error(),
	}
}
