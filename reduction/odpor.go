package reduction

import (
	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"

	"simcheck/execution"
	"simcheck/state"
	"simcheck/transition"
)

// odpor is the optimal DPOR: branches are stored as sequences in the wakeup
// tree of each state.
type odpor struct {
	reg *state.Registry
}

func (r *odpor) Kind() Kind {
	return ODPOR
}

func (r *odpor) StateCreate(app state.StatusProvider, parent *state.State, incoming *transition.Transition) (*state.State, error) {
	s, err := createState(r.reg, app, parent, incoming)
	if err != nil {
		return nil, err
	}
	s.InheritSleep()
	s.UseWakeupTree()
	if parent == nil {
		return s, nil
	}
	// The other variants of a non-deterministic step are not racing with
	// it, schedule the next one explicitly.
	a, ok := parent.Actor(incoming.Aid())
	next := incoming.Times() + 1
	if ok && next < a.MaxConsidered && a.TimesConsidered == next {
		parent.ForceInsertIntoWut(execution.PartialExecution{incoming.WithTimes(next)})
	}
	return s, nil
}

func (r *odpor) NextToExplore(exec *execution.Execution, stack state.Stack) (transition.Aid, int) {
	return stack.Top().NextWutBranch()
}

func (r *odpor) RacesComputation(exec *execution.Execution, stack state.Stack) (RaceUpdate, error) {
	update := &sequenceUpdate{}
	if len(stack) != exec.Len()+1 {
		return nil, errors.AssertionFailedf("stack of %d states for an execution of %d events", len(stack), exec.Len())
	}
	// only maximal executions are considered
	if len(stack.Top().EnabledActors()) > 0 {
		return update, nil
	}
	for ePrime := 0; ePrime < exec.Len(); ePrime++ {
		for _, e := range exec.ReversibleRacesOf(ePrime) {
			pre := stack[e]
			v, ok, err := exec.OdporExtensionFrom(e, ePrime, pre.Sleep())
			if err != nil {
				return nil, errors.Wrapf(err, "reversing the race between events %d and %d", e, ePrime)
			}
			if ok {
				update.add(pre, v)
			}
		}
	}
	if update.Len() > 0 {
		plog.Debugf("races: %# v", pretty.Formatter(update))
	}
	return update, nil
}

func (r *odpor) ApplyRaceUpdate(update RaceUpdate, open func(*state.State)) (int, error) {
	defer update.Release()
	u, ok := update.(*sequenceUpdate)
	if !ok {
		return 0, errors.AssertionFailedf("unexpected race update %T", update)
	}
	n := 0
	for _, entry := range u.entries {
		owner, inserted, err := entry.s.InsertIntoWut(entry.v)
		if err != nil {
			return n, errors.Wrapf(err, "inserting %s into the wakeup tree of %v", entry.v, entry.s)
		}
		if inserted {
			n++
			if open != nil {
				open(owner)
			}
		}
	}
	return n, nil
}

// OnExecuted does nothing: a branch goes to sleep once it is explored.
func (r *odpor) OnExecuted(s *state.State) {}

func (r *odpor) OnBacktrack(s *state.State) {
	foldIntoParentSleep(s)
}
