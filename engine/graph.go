package engine

import "sync"

// frontierKey identifies one (state, action) pair in the explored set.
type frontierKey struct {
	stateID    string
	actionName string
}

// Graph is the explored directed multigraph: States (nodes), Transitions
// (edges labeled by action name + ActionResult), and the set of explored
// (state, action) pairs. It also holds the action catalog, since the
// frontier is defined jointly over states and actions.
type Graph struct {
	mu             sync.RWMutex
	states         map[string]*State
	transitions    []Transition
	actions        map[string]Action
	explored       map[frontierKey]struct{}
	initialStateID string
	// fingerprintIndex maps a state fingerprint to the id of the first
	// State observed with that fingerprint, powering deduplication.
	fingerprintIndex map[string]string
}

// NewGraph returns an empty Graph seeded with the given action catalog.
func NewGraph(actions []Action) *Graph {
	catalog := make(map[string]Action, len(actions))
	for _, a := range actions {
		catalog[a.Name] = a
	}
	return &Graph{
		states:           make(map[string]*State),
		actions:          catalog,
		explored:         make(map[frontierKey]struct{}),
		fingerprintIndex: make(map[string]string),
	}
}

// Actions returns the action catalog.
func (g *Graph) Actions() map[string]Action {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Action, len(g.actions))
	for k, v := range g.actions {
		out[k] = v
	}
	return out
}

// State returns the State with the given id, if present.
func (g *Graph) State(id string) (*State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.states[id]
	return s, ok
}

// InitialStateID returns the id of the root State, set once Observe runs
// for the root.
func (g *Graph) InitialStateID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.initialStateID
}

// States returns a snapshot slice of all States, in no particular order.
func (g *Graph) States() []*State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*State, 0, len(g.states))
	for _, s := range g.states {
		out = append(out, s)
	}
	return out
}

// Transitions returns a snapshot of all recorded Transitions, in insertion
// (i.e. total temporal) order.
func (g *Graph) Transitions() []Transition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Transition, len(g.transitions))
	copy(out, g.transitions)
	return out
}

// InsertRoot registers the root State and marks it as initial_state_id.
func (g *Graph) InsertRoot(s *State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[s.ID] = s
	g.fingerprintIndex[s.fingerprint] = s.ID
	g.initialStateID = s.ID
}

// Dedup looks up an existing State with the same fingerprint as candidate.
// If found, returns its id and true: the candidate (and its freshly-minted
// checkpoint) should be discarded by the caller. Otherwise it inserts
// candidate as a new State and returns (candidate.ID, false).
func (g *Graph) Dedup(candidate *State) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existingID, ok := g.fingerprintIndex[candidate.fingerprint]; ok {
		return existingID, true
	}

	g.states[candidate.ID] = candidate
	g.fingerprintIndex[candidate.fingerprint] = candidate.ID
	return candidate.ID, false
}

// InsertTransition records a Transition and marks (fromStateID, actionName)
// explored.
func (g *Graph) InsertTransition(t Transition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitions = append(g.transitions, t)
	g.explored[frontierKey{t.FromStateID, t.ActionName}] = struct{}{}
}

// MarkExplored marks (stateID, actionName) explored without recording a
// transition, used for max-depth cutoffs and runtime-skipped actions.
func (g *Graph) MarkExplored(stateID, actionName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.explored[frontierKey{stateID, actionName}] = struct{}{}
}

// IsExplored reports whether (stateID, actionName) has already been
// explored.
func (g *Graph) IsExplored(stateID, actionName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.explored[frontierKey{stateID, actionName}]
	return ok
}

// Frontier returns every (state, action) pair eligible for the next step:
// the state must be rollback-able, the pair must not yet be explored, and
// every one of the action's preconditions must hold against that state.
func (g *Graph) Frontier() []FrontierPair {
	g.mu.RLock()
	states := make([]*State, 0, len(g.states))
	for _, s := range g.states {
		states = append(states, s)
	}
	actions := make([]Action, 0, len(g.actions))
	for _, a := range g.actions {
		actions = append(actions, a)
	}
	explored := make(map[frontierKey]struct{}, len(g.explored))
	for k := range g.explored {
		explored[k] = struct{}{}
	}
	g.mu.RUnlock()

	var out []FrontierPair
	for _, s := range states {
		if s.CheckpointID == "" {
			continue
		}
		for _, a := range actions {
			if _, done := explored[frontierKey{s.ID, a.Name}]; done {
				continue
			}
			if !preconditionsHold(a, s) {
				continue
			}
			out = append(out, FrontierPair{State: s, Action: a})
		}
	}
	return out
}

func preconditionsHold(a Action, s *State) bool {
	for _, p := range a.Preconditions {
		if !p(s) {
			return false
		}
	}
	return true
}

// FrontierPair is one eligible (state, action) candidate for the next step.
type FrontierPair struct {
	State  *State
	Action Action
}

// GetPathTo returns the ordered Transitions from InitialStateID to
// stateID, following parent pointers. Powers ReproductionPath on
// violations.
func (g *Graph) GetPathTo(stateID string) []Transition {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byID := make(map[string]Transition, len(g.transitions))
	for _, t := range g.transitions {
		byID[t.ID] = t
	}

	var path []Transition
	cur, ok := g.states[stateID]
	for ok && cur.ParentTransitionID != "" {
		t, found := byID[cur.ParentTransitionID]
		if !found {
			break
		}
		path = append([]Transition{t}, path...)
		cur, ok = g.states[t.FromStateID]
	}
	return path
}

// Size returns the number of distinct states and total transitions, used
// for coverage = |explored| / (|states| * |actions|).
func (g *Graph) Size() (states, transitions, actions, explored int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.states), len(g.transitions), len(g.actions), len(g.explored)
}
