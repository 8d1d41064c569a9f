package explorer

import (
	"math/rand"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"

	"simcheck/transition"
)

const (
	StrategyNone     = "none"
	StrategyUniform  = "uniform"
	StrategyMinMatch = "min_match"
	StrategyMaxMatch = "max_match"
)

// ErrUnknownStrategy is returned for an unknown strategy name.
var ErrUnknownStrategy = errors.New("explorer: unknown strategy")

// Strategy values the states opened by the best-first explorers. States with
// the lowest value are explored first.
type Strategy interface {
	Name() string
	// Derive returns the guide of a state from the guide of its parent and
	// the transition reaching it. Both are nil for the initial state.
	Derive(parent any, t *transition.Transition) any
	Value(guide any) int
}

// NewStrategy returns the strategy called name.
func NewStrategy(name string, seed int64) (Strategy, error) {
	switch name {
	case "", StrategyNone:
		return noStrategy{}, nil
	case StrategyUniform:
		return &uniformStrategy{rng: rand.New(rand.NewSource(seed))}, nil
	case StrategyMinMatch:
		return matchStrategy{}, nil
	case StrategyMaxMatch:
		return matchStrategy{max: true}, nil
	}
	return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
}

// noStrategy gives every state the same value, so the most recently opened
// state is picked first.
type noStrategy struct{}

func (noStrategy) Name() string                                   { return StrategyNone }
func (noStrategy) Derive(parent any, t *transition.Transition) any { return nil }
func (noStrategy) Value(guide any) int                            { return 0 }

// uniformStrategy picks among the opened states at random.
type uniformStrategy struct {
	rng *rand.Rand
}

func (s *uniformStrategy) Name() string                                   { return StrategyUniform }
func (s *uniformStrategy) Derive(parent any, t *transition.Transition) any { return nil }
func (s *uniformStrategy) Value(guide any) int                            { return s.rng.Intn(1 << 16) }

// matchStrategy counts, per shared object, the writes not yet matched by a
// read. min_match favours states where accesses are balanced, max_match
// those where they are not.
type matchStrategy struct {
	max bool
}

type matchGuide map[uint64]int

func (s matchStrategy) Name() string {
	if s.max {
		return StrategyMaxMatch
	}
	return StrategyMinMatch
}

func (s matchStrategy) Derive(parent any, t *transition.Transition) any {
	g, _ := parent.(matchGuide)
	if t == nil {
		return g
	}
	var delta int
	switch t.Type() {
	case transition.ObjectWrite:
		delta = 1
	case transition.ObjectRead:
		delta = -1
	default:
		return g
	}
	next := maps.Clone(g)
	if next == nil {
		next = matchGuide{}
	}
	next[t.Object()] += delta
	return next
}

func (s matchStrategy) Value(guide any) int {
	g, _ := guide.(matchGuide)
	total := 0
	for _, n := range g {
		if n < 0 {
			n = -n
		}
		total += n
	}
	if s.max {
		return -total
	}
	return total
}
