package reduction

import (
	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"simcheck/execution"
	"simcheck/state"
	"simcheck/transition"
)

// dpor is the dynamic partial order reduction of Flanagan and Godefroid,
// with sleep sets. The backtrack set of a racing state always ends up
// holding an initial of the reversed race.
type dpor struct {
	reg *state.Registry
}

func (r *dpor) Kind() Kind {
	return DPOR
}

func (r *dpor) StateCreate(app state.StatusProvider, parent *state.State, incoming *transition.Transition) (*state.State, error) {
	s, err := createState(r.reg, app, parent, incoming)
	if err != nil {
		return nil, err
	}
	s.InheritSleep()
	s.MarkFirstAwakeTodo()
	return s, nil
}

func (r *dpor) NextToExplore(exec *execution.Execution, stack state.Stack) (transition.Aid, int) {
	return stack.Top().NextTodo()
}

// newEvents returns the handles of the events whose races were not computed
// yet, and marks them as computed.
func newEvents(exec *execution.Execution, stack state.Stack) ([]int, error) {
	if len(stack) != exec.Len()+1 {
		return nil, errors.AssertionFailedf("stack of %d states for an execution of %d events", len(stack), exec.Len())
	}
	events := []int{}
	for h := 0; h < exec.Len(); h++ {
		child := stack[h+1]
		if child.RacesComputed() {
			continue
		}
		child.SetRacesComputed()
		events = append(events, h)
	}
	return events, nil
}

func (r *dpor) RacesComputation(exec *execution.Execution, stack state.Stack) (RaceUpdate, error) {
	update := &setUpdate{}
	events, err := newEvents(exec, stack)
	if err != nil {
		return nil, err
	}
	for _, ePrime := range events {
		view := exec.PrefixBefore(ePrime + 1)
		p := view.ActorAt(ePrime)
		for _, e := range view.ReversibleRacesOf(ePrime) {
			pre := stack[e]
			choices := dporChoices(view, pre, e, p)
			// a choice that is asleep at pre or not an initial of the
			// reversed race does not reverse it
			q, ok, err := uncoveredInitial(view, pre, e, choices...)
			if err != nil {
				return nil, errors.Wrapf(err, "reversing the race between events %d and %d", e, ePrime)
			}
			if ok {
				choices = append(choices, q)
			}
			update.add(pre, choices...)
		}
	}
	if update.Len() > 0 {
		plog.Debugf("races: %# v", pretty.Formatter(update))
	}
	return update, nil
}

// dporChoices returns the actors to add to the backtrack set of pre, the
// state before e, to reverse the race between e and the latest event of
// view, executed by p.
func dporChoices(view *execution.Execution, pre *state.State, e int, p transition.Aid) []transition.Aid {
	if pre.IsEnabled(p) {
		return []transition.Aid{p}
	}
	// actors with an event after e that leads to the latest event
	separating := map[transition.Aid]bool{}
	for j := e + 1; j < view.Len(); j++ {
		q := view.ActorAt(j)
		if pre.IsEnabled(q) && (j == view.Latest() || view.HappensBefore(j, view.Latest())) {
			separating[q] = true
		}
	}
	if len(separating) > 0 {
		out := maps.Keys(separating)
		slices.Sort(out)
		return out
	}
	return pre.EnabledActors()
}

func (r *dpor) ApplyRaceUpdate(update RaceUpdate, open func(*state.State)) (int, error) {
	defer update.Release()
	u, ok := update.(*setUpdate)
	if !ok {
		return 0, errors.AssertionFailedf("unexpected race update %T", update)
	}
	n := 0
	for _, entry := range u.entries {
		added := 0
		for _, aid := range entry.actors {
			if entry.s.MarkTodo(aid) {
				added++
			}
		}
		if added > 0 && open != nil {
			open(entry.s)
		}
		n += added
	}
	return n, nil
}

// OnExecuted puts the branch of s to sleep in its parent right away.
func (r *dpor) OnExecuted(s *state.State) {
	foldIntoParentSleep(s)
}

func (r *dpor) OnBacktrack(s *state.State) {
	foldIntoParentSleep(s)
}

// sdpor is the source-set DPOR: a race only reopens a branch when no actor
// of the backtrack set of the state already reverses it.
type sdpor struct {
	dpor
}

func (r *sdpor) Kind() Kind {
	return SDPOR
}

func (r *sdpor) RacesComputation(exec *execution.Execution, stack state.Stack) (RaceUpdate, error) {
	update := &setUpdate{}
	events, err := newEvents(exec, stack)
	if err != nil {
		return nil, err
	}
	for _, ePrime := range events {
		view := exec.PrefixBefore(ePrime + 1)
		for _, e := range view.ReversibleRacesOf(ePrime) {
			pre := stack[e]
			q, ok, err := uncoveredInitial(view, pre, e)
			if err != nil {
				return nil, errors.Wrapf(err, "reversing the race between events %d and %d", e, ePrime)
			}
			if ok {
				update.add(pre, q)
			}
		}
	}
	if update.Len() > 0 {
		plog.Debugf("races: %# v", pretty.Formatter(update))
	}
	return update, nil
}

// uncoveredInitial returns an actor to add to the backtrack set of pre so
// that the race between e and the latest event of view is reversed, unless
// an initial of the reversed sequence is already scheduled, explored, asleep
// or among extra.
func uncoveredInitial(view *execution.Execution, pre *state.State, e int, extra ...transition.Aid) (transition.Aid, bool, error) {
	covered := pre.BacktrackSet()
	for aid := range pre.Sleep() {
		covered[aid] = true
	}
	for _, aid := range extra {
		covered[aid] = true
	}
	missing, err := view.MissingSourceSetActorsFrom(e, covered)
	if err != nil {
		return transition.NoActor, false, err
	}
	q, ok := pickInitial(pre, missing)
	return q, ok, nil
}

// pickInitial returns the enabled actor of initials with the lowest id.
func pickInitial(pre *state.State, initials map[transition.Aid]bool) (transition.Aid, bool) {
	aids := maps.Keys(initials)
	slices.Sort(aids)
	for _, aid := range aids {
		if pre.IsEnabled(aid) {
			return aid, true
		}
	}
	return transition.NoActor, false
}
