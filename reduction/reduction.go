package reduction

import (
	"strings"

	"github.com/cockroachdb/errors"

	"simcheck/execution"
	"simcheck/logger"
	"simcheck/state"
	"simcheck/transition"
)

var plog = logger.GetLogger("reduction")

// Kind names a reduction strategy.
type Kind string

const (
	None  Kind = "none"
	DPOR  Kind = "dpor"
	SDPOR Kind = "sdpor"
	ODPOR Kind = "odpor"
)

// ErrUnknownKind is returned when parsing an unknown reduction name.
var ErrUnknownKind = errors.New("reduction: unknown reduction")

// ParseKind returns the reduction named name.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(name)); k {
	case None, DPOR, SDPOR, ODPOR:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", name)
}

// DepthSensitive returns true if cutting branches at the maximum depth makes
// the reduction unsound.
func (k Kind) DepthSensitive() bool {
	return k == SDPOR || k == ODPOR
}

// Reduction decides which actors must be explored from each state.
type Reduction interface {
	Kind() Kind
	// StateCreate creates the root state when parent is nil, or the state
	// reached from parent through incoming. The application must be in the
	// state being created.
	StateCreate(app state.StatusProvider, parent *state.State, incoming *transition.Transition) (*state.State, error)
	// NextToExplore returns the actor to run from the top of the stack and
	// the variant of its step, or transition.NoActor.
	NextToExplore(exec *execution.Execution, stack state.Stack) (transition.Aid, int)
	// RacesComputation returns the branches to reopen because of the races
	// of exec. It is called when no actor is left to run from the top of
	// the stack.
	RacesComputation(exec *execution.Execution, stack state.Stack) (RaceUpdate, error)
	// ApplyRaceUpdate reopens the branches described by update. open is
	// called for every state that gained work. It returns how many branches
	// were reopened.
	ApplyRaceUpdate(update RaceUpdate, open func(*state.State)) (int, error)
	// OnExecuted is called with the state an actor was just run from by
	// the explorers that leave a state before its subtree is exhausted.
	OnExecuted(s *state.State)
	// OnBacktrack is called once the subtree of s is exhausted.
	OnBacktrack(s *state.State)
}

// New returns the reduction of the provided kind creating its states in reg.
func New(kind Kind, reg *state.Registry) (Reduction, error) {
	switch kind {
	case None:
		return &noReduction{reg: reg}, nil
	case DPOR:
		return &dpor{reg: reg}, nil
	case SDPOR:
		return &sdpor{dpor{reg: reg}}, nil
	case ODPOR:
		return &odpor{reg: reg}, nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
}

func createState(reg *state.Registry, app state.StatusProvider, parent *state.State, incoming *transition.Transition) (*state.State, error) {
	infos, err := app.GetActorsStatus()
	if err != nil {
		if parent == nil {
			return nil, errors.Wrap(err, "creating the initial state")
		}
		return nil, errors.Wrapf(err, "creating the state after %v from %v", incoming, parent)
	}
	return reg.New(parent, incoming, infos), nil
}

// foldIntoParentSleep puts the incoming transition of s to sleep in its
// parent once every variant of it was explored.
func foldIntoParentSleep(s *state.State) {
	parent, t := s.Parent(), s.Incoming()
	if parent == nil || t == nil {
		return
	}
	if parent.Exhausted(t.Aid()) {
		parent.AddSleep(t.Aid(), t)
	}
}

type noReduction struct {
	reg *state.Registry
}

func (r *noReduction) Kind() Kind {
	return None
}

func (r *noReduction) StateCreate(app state.StatusProvider, parent *state.State, incoming *transition.Transition) (*state.State, error) {
	s, err := createState(r.reg, app, parent, incoming)
	if err != nil {
		return nil, err
	}
	s.MarkAllEnabledTodo()
	return s, nil
}

func (r *noReduction) NextToExplore(exec *execution.Execution, stack state.Stack) (transition.Aid, int) {
	return stack.Top().NextTodo()
}

func (r *noReduction) RacesComputation(exec *execution.Execution, stack state.Stack) (RaceUpdate, error) {
	return &setUpdate{}, nil
}

func (r *noReduction) ApplyRaceUpdate(update RaceUpdate, open func(*state.State)) (int, error) {
	update.Release()
	return 0, nil
}

func (r *noReduction) OnExecuted(s *state.State) {}

func (r *noReduction) OnBacktrack(s *state.State) {}
