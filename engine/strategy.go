package engine

import (
	"math/rand"
	"sort"
)

// Strategy chooses the next (state, action) frontier pair. Implementations
// are pure over the Graph plus their own internal queue; the Agent informs
// the strategy of new States/Transitions via Advance so that
// ordering strategies (BFS/DFS) can track insertion and recency without
// re-deriving it from the Graph every call.
type Strategy interface {
	// Pick returns the next frontier pair, or ok=false if the frontier is
	// (from this strategy's perspective) empty.
	Pick(g *Graph) (FrontierPair, bool)
	// Advance notifies the strategy that a new Transition from -> to via
	// action was just recorded, so ordering strategies can update their
	// internal queues.
	Advance(from, to *State, actionName string)
}

func sortedFrontier(pairs []FrontierPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].State.Depth != pairs[j].State.Depth {
			return pairs[i].State.Depth < pairs[j].State.Depth
		}
		if !pairs[i].State.CreatedAt.Equal(pairs[j].State.CreatedAt) {
			return pairs[i].State.CreatedAt.Before(pairs[j].State.CreatedAt)
		}
		if pairs[i].State.ID != pairs[j].State.ID {
			return pairs[i].State.ID < pairs[j].State.ID
		}
		return pairs[i].Action.Name < pairs[j].Action.Name
	})
}

// BFSStrategy visits frontier pairs in non-decreasing depth order, tied by
// insertion order (state CreatedAt, then state id, then action name).
type BFSStrategy struct{}

func NewBFSStrategy() *BFSStrategy { return &BFSStrategy{} }

func (s *BFSStrategy) Pick(g *Graph) (FrontierPair, bool) {
	pairs := g.Frontier()
	if len(pairs) == 0 {
		return FrontierPair{}, false
	}
	sortedFrontier(pairs)
	return pairs[0], true
}

func (s *BFSStrategy) Advance(from, to *State, actionName string) {}

// DFSStrategy prefers a descendant of the most recently produced to_state;
// if that state has no eligible frontier pair, it falls back to the oldest
// unexplored pair.
type DFSStrategy struct {
	lastToStateID string
}

func NewDFSStrategy() *DFSStrategy { return &DFSStrategy{} }

func (s *DFSStrategy) Pick(g *Graph) (FrontierPair, bool) {
	pairs := g.Frontier()
	if len(pairs) == 0 {
		return FrontierPair{}, false
	}
	sortedFrontier(pairs)

	if s.lastToStateID != "" {
		for _, p := range pairs {
			if p.State.ID == s.lastToStateID {
				return p, true
			}
		}
	}
	return pairs[0], true
}

func (s *DFSStrategy) Advance(from, to *State, actionName string) {
	s.lastToStateID = to.ID
}

// RandomStrategy picks uniformly over the current frontier, seeded for
// reproducibility.
type RandomStrategy struct {
	rng *rand.Rand
}

func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Pick(g *Graph) (FrontierPair, bool) {
	pairs := g.Frontier()
	if len(pairs) == 0 {
		return FrontierPair{}, false
	}
	// Sort first so that "uniform over the frontier" is deterministic given
	// the seed: the rng only selects an index, never breaks map-order ties.
	sortedFrontier(pairs)
	return pairs[s.rng.Intn(len(pairs))], true
}

func (s *RandomStrategy) Advance(from, to *State, actionName string) {}

// CoverageStrategy scores each pair by
// (1 - fraction-already-explored-from-this-state) plus a bonus if the
// action's name has not yet been executed anywhere, picking the argmax and
// breaking ties by BFS order.
type CoverageStrategy struct {
	executedActions map[string]bool
}

func NewCoverageStrategy() *CoverageStrategy {
	return &CoverageStrategy{executedActions: make(map[string]bool)}
}

func (s *CoverageStrategy) Pick(g *Graph) (FrontierPair, bool) {
	pairs := g.Frontier()
	if len(pairs) == 0 {
		return FrontierPair{}, false
	}
	sortedFrontier(pairs)

	actions := g.Actions()
	numActions := len(actions)

	type scored struct {
		pair  FrontierPair
		score float64
	}

	scoredPairs := make([]scored, 0, len(pairs))
	for _, p := range pairs {
		exploredFromState := 0
		for name := range actions {
			if g.IsExplored(p.State.ID, name) {
				exploredFromState++
			}
		}
		fractionExplored := 0.0
		if numActions > 0 {
			fractionExplored = float64(exploredFromState) / float64(numActions)
		}
		score := 1.0 - fractionExplored
		if !s.executedActions[p.Action.Name] {
			score += 1.0
		}
		scoredPairs = append(scoredPairs, scored{pair: p, score: score})
	}

	best := scoredPairs[0]
	for _, sp := range scoredPairs[1:] {
		if sp.score > best.score {
			best = sp
		}
	}
	return best.pair, true
}

func (s *CoverageStrategy) Advance(from, to *State, actionName string) {
	s.executedActions[actionName] = true
}
