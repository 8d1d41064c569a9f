package execution

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"simcheck/logger"
	"simcheck/transition"
)

var plog = logger.GetLogger("execution")

// PartialExecution is a sequence of transitions that is not attached to an
// execution.
type PartialExecution []*transition.Transition

// Execution is the ordered log of the events executed since the initial
// state. Events are identified by their handle, their position in the log.
type Execution struct {
	events []Event
	// handles of the events of each actor, in order
	skip [][]int
	// number of events borrowed from the execution this one was derived from
	inherited int
}

// New returns an empty execution.
func New() *Execution {
	return &Execution{}
}

// FromPartialExecution returns the execution made of the transitions of w.
func FromPartialExecution(w PartialExecution) *Execution {
	e := New()
	for _, t := range w {
		e.PushTransition(t)
	}
	return e
}

func (e *Execution) Len() int {
	return len(e.events)
}

func (e *Execution) Empty() bool {
	return len(e.events) == 0
}

// Event returns the event with handle h.
func (e *Execution) Event(h int) Event {
	return e.events[h]
}

// TransitionAt returns the transition of the event with handle h.
func (e *Execution) TransitionAt(h int) *transition.Transition {
	return e.events[h].t
}

// ActorAt returns the actor that executed the event with handle h.
func (e *Execution) ActorAt(h int) transition.Aid {
	return e.events[h].t.Aid()
}

// Latest returns the handle of the last event, -1 if the execution is empty.
func (e *Execution) Latest() int {
	return len(e.events) - 1
}

// Transitions returns the transitions of the execution in order.
func (e *Execution) Transitions() PartialExecution {
	out := make(PartialExecution, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.t
	}
	return out
}

// PushTransition appends t to the execution and returns the handle of the
// new event. The clock vector of the event merges the clock vectors of the
// latest event of every actor t depends on.
func (e *Execution) PushTransition(t *transition.Transition) int {
	var cv ClockVector
	for _, handles := range e.skip {
		for i := len(handles) - 1; i >= 0; i-- {
			prev := e.events[handles[i]]
			if prev.t.Depends(t) {
				cv = cv.maxMerge(prev.cv)
				break
			}
		}
	}
	h := len(e.events)
	cv = cv.set(t.Aid(), h)
	e.events = append(e.events, Event{t: t, cv: cv})
	for len(e.skip) <= int(t.Aid()) {
		e.skip = append(e.skip, nil)
	}
	e.skip[t.Aid()] = append(e.skip[t.Aid()], h)
	return h
}

// RemoveLastEvent undoes the last PushTransition.
func (e *Execution) RemoveLastEvent() error {
	if len(e.events) == 0 {
		return errors.AssertionFailedf("removing an event from an empty execution")
	}
	if len(e.events) <= e.inherited {
		return errors.AssertionFailedf("removing event %d which belongs to the prefix of the execution", len(e.events)-1)
	}
	last := e.events[len(e.events)-1]
	e.events = e.events[:len(e.events)-1]
	aid := last.t.Aid()
	e.skip[aid] = e.skip[aid][:len(e.skip[aid])-1]
	return nil
}

// PrefixBefore returns the execution made of the events before handle h.
// The returned execution shares the events of e; pushing to it never
// modifies e.
func (e *Execution) PrefixBefore(h int) *Execution {
	p := &Execution{
		events:    e.events[:h:h],
		inherited: h,
	}
	for i, ev := range p.events {
		aid := ev.t.Aid()
		for len(p.skip) <= int(aid) {
			p.skip = append(p.skip, nil)
		}
		p.skip[aid] = append(p.skip[aid], i)
	}
	return p
}

// Clone returns a copy of e that can be modified independently.
func (e *Execution) Clone() *Execution {
	c := &Execution{
		events: slices.Clone(e.events),
		skip:   make([][]int, len(e.skip)),
	}
	for i, handles := range e.skip {
		c.skip[i] = slices.Clone(handles)
	}
	return c
}

// HappensBefore returns true if the event e1 happens-before the event e2.
func (e *Execution) HappensBefore(e1, e2 int) bool {
	if e1 >= e2 {
		return false
	}
	if h, ok := e.events[e2].cv.Get(e.ActorAt(e1)); ok {
		return e1 <= h
	}
	return false
}

// HappensBeforeProcess returns true if the event h happens-before some event
// of the actor p, or if p executed h.
func (e *Execution) HappensBeforeProcess(h int, p transition.Aid) bool {
	if e.ActorAt(h) == p {
		return true
	}
	for k := h + 1; k < len(e.events); k++ {
		if e.ActorAt(k) == p && e.HappensBefore(h, k) {
			return true
		}
	}
	return false
}

// RacingEventsOf returns the events in a race with target, latest first.
func (e *Execution) RacingEventsOf(target int) []int {
	cv := e.events[target].cv
	targetActor := e.ActorAt(target)
	candidates := []int{}
	for aid, h := range cv {
		if transition.Aid(aid) != targetActor && h >= 0 {
			candidates = append(candidates, h)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	prevOnActor := -1
	for k := target - 1; k >= 0; k-- {
		if e.ActorAt(k) == targetActor {
			prevOnActor = k
			break
		}
	}

	racing := []int{}
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		if prevOnActor >= 0 && e.HappensBefore(c, prevOnActor) {
			continue
		}
		disqualified := false
		for _, r := range racing {
			if e.HappensBefore(c, r) {
				disqualified = true
				break
			}
		}
		if disqualified {
			continue
		}
		racing = append(racing, c)
	}
	return racing
}

// ReversibleRacesOf returns the racing events of target whose race with it
// can be reversed.
func (e *Execution) ReversibleRacesOf(target int) []int {
	races := []int{}
	t := e.TransitionAt(target)
	for _, r := range e.RacingEventsOf(target) {
		if e.TransitionAt(r).ReversibleRace(t, e, r, target) {
			races = append(races, r)
		}
	}
	return races
}

// MissingSourceSetActorsFrom returns the initials of notdep(h).next after the
// prefix before h, unless one of them is already in backtrack, in which case
// the result is empty. The latest event of e is next.
func (e *Execution) MissingSourceSetActorsFrom(h int, backtrack map[transition.Aid]bool) (map[transition.Aid]bool, error) {
	if e.Empty() {
		return map[transition.Aid]bool{}, nil
	}
	next := e.Latest()
	if h == next {
		return nil, errors.AssertionFailedf("event %d is claimed to race with itself", h)
	}
	prime := e.PrefixBefore(h)
	v := []int{}
	initials := map[transition.Aid]bool{}
	disqualified := map[transition.Aid]bool{}

	for k := h + 1; k <= next; k++ {
		if e.HappensBefore(h, k) && k != next {
			continue
		}
		inPrime := prime.PushTransition(e.TransitionAt(k))
		v = append(v, inPrime)
		q := prime.ActorAt(inPrime)
		if disqualified[q] {
			continue
		}
		isInitial := true
		for _, star := range v {
			if prime.HappensBefore(star, inPrime) {
				isInitial = false
				break
			}
		}
		if !isInitial {
			disqualified[q] = true
			continue
		}
		if backtrack[q] {
			return map[transition.Aid]bool{}, nil
		}
		initials[q] = true
	}
	if len(initials) == 0 {
		return nil, errors.AssertionFailedf("no initial found after event %d of a non empty execution", h)
	}
	return initials, nil
}

// OdporExtensionFrom returns the sequence v = notdep(h).t(h') that must be
// explored from the state before h to reverse the race between h and h'.
// It returns false when an initial of v is asleep at that state, or when the
// next transition of a sleeping actor is a weak initial of v.
func (e *Execution) OdporExtensionFrom(h, hPrime int, sleep map[transition.Aid]*transition.Transition) (PartialExecution, bool, error) {
	if h > hPrime {
		return nil, false, errors.AssertionFailedf("event %d is claimed to race with the earlier event %d", h, hPrime)
	}
	if e.Empty() {
		return nil, false, nil
	}

	v := PartialExecution{}
	disqualified := map[transition.Aid]bool{e.ActorAt(h): true}
	for star := h + 1; star <= e.Latest(); star++ {
		aid := e.ActorAt(star)
		if disqualified[aid] {
			continue
		}
		if e.HappensBefore(h, star) {
			disqualified[aid] = true
			continue
		}
		if star == hPrime {
			return nil, false, errors.AssertionFailedf("events %d and %d are claimed to race but are not ordered", h, hPrime)
		}
		v = append(v, e.TransitionAt(star))
	}
	v = append(v, e.TransitionAt(hPrime))

	for i, t := range v {
		initial := true
		for _, before := range v[:i] {
			if t.Depends(before) {
				initial = false
				break
			}
		}
		if initial && sleep[t.Aid()] != nil {
			plog.Debugf("discarding %s: initial actor %d is asleep", v, t.Aid())
			return nil, false, nil
		}
	}

	sleeping := maps.Keys(sleep)
	slices.Sort(sleeping)
	for _, aid := range sleeping {
		// the first event of the actor after pre, h included
		next := -1
		for k := h; k <= e.Latest(); k++ {
			if e.ActorAt(k) == aid {
				next = k
				break
			}
		}
		// the execution was cut before the sleeping actor ran again
		if next < 0 {
			continue
		}
		if IsInWeakInitialOf(e.TransitionAt(next), v) {
			plog.Debugf("discarding %s: weak initial actor %d is asleep", v, aid)
			return nil, false, nil
		}
	}
	return v, true, nil
}

// IsInWeakInitialOf returns true if t can be moved to the front of w: either
// its actor occurs in w before anything dependent with t, or t is
// independent of all of w.
func IsInWeakInitialOf(t *transition.Transition, w PartialExecution) bool {
	for _, wi := range w {
		if t.Aid() == wi.Aid() {
			return true
		}
		if wi.Depends(t) {
			return false
		}
	}
	return true
}

// IsInitialAfter returns true if p occurs in w and its first step is not
// preceded by anything it depends on.
func IsInitialAfter(w PartialExecution, p transition.Aid) bool {
	for i, wi := range w {
		if wi.Aid() != p {
			continue
		}
		for _, wj := range w[:i] {
			if wj.Depends(wi) {
				return false
			}
		}
		return true
	}
	return false
}

// IsIndependentWith returns true if t is independent of every transition of w.
func IsIndependentWith(w PartialExecution, t *transition.Transition) bool {
	for _, wi := range w {
		if wi.Depends(t) {
			return false
		}
	}
	return true
}

// ShortestOdporSqSubsetInsertion computes the shortest w' such that v.w' is
// equivalent to a continuation of w, and returns false when no such w' exists.
// An error is returned when the initials computed for w are inconsistent.
func ShortestOdporSqSubsetInsertion(v, w PartialExecution) (PartialExecution, bool, error) {
	rest := slices.Clone(w)
	for _, next := range v {
		p := next.Aid()
		if IsInitialAfter(rest, p) {
			i := slices.IndexFunc(rest, func(t *transition.Transition) bool { return t.Aid() == p })
			if i < 0 {
				return nil, false, errors.AssertionFailedf("actor %d is an initial after %s but does not occur in it", p, rest)
			}
			if rest[i].Type() != next.Type() {
				return nil, false, errors.AssertionFailedf("actor %d executes %v in v but %v in w", p, next, rest[i])
			}
			rest = slices.Delete(rest, i, i+1)
		} else if IsIndependentWith(rest, next) {
			if slices.IndexFunc(rest, func(t *transition.Transition) bool { return t.Aid() == p }) >= 0 {
				return nil, false, errors.AssertionFailedf("actor %d is independent with %s and occurs in it, yet is not an initial", p, rest)
			}
		} else {
			return nil, false, nil
		}
	}
	return rest, true, nil
}

func (w PartialExecution) String() string {
	out := strings.Builder{}
	out.WriteString("<")
	for i, t := range w {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(fmt.Sprintf("%d:%v", t.Aid(), t))
	}
	out.WriteString(">")
	return out.String()
}

// TextualTrace returns one line per event describing the actor and the
// transition it executed.
func (e *Execution) TextualTrace() []string {
	return TextualTrace(e.Transitions())
}

// TextualTrace returns one line per transition of w.
func TextualTrace(w PartialExecution) []string {
	trace := make([]string, 0, len(w))
	for _, t := range w {
		trace = append(trace, fmt.Sprintf("Actor %d: %v", t.Aid(), t))
	}
	return trace
}

// OneStringTrace returns the actors of the execution as a single line.
func (e *Execution) OneStringTrace() string {
	out := strings.Builder{}
	for _, ev := range e.events {
		out.WriteString(fmt.Sprintf(";%d", ev.t.Aid()))
	}
	return out.String()
}
