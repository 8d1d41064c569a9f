package transition

import (
	"fmt"
)

// Aid identifies an actor of the application under test.
type Aid int

// NoActor is returned when there is no actor left to schedule.
const NoActor Aid = -1

// Type is the kind of simulated operation a transition performs.
type Type uint8

// The order of the types matters: dependency and co-enabledness checks are
// always evaluated with the lowest type as the receiver.
const (
	Unknown Type = iota
	Random
	ActorJoin
	ActorSleep
	ActorExit
	ObjectRead
	ObjectWrite
	MutexAsyncLock
	MutexTest
	MutexTryLock
	MutexUnlock
	MutexWait
	SemAsyncLock
	SemUnlock
	SemWait
	BarrierAsyncLock
	BarrierWait
	numTypes
)

var typeNames = [...]string{
	Unknown:          "Unknown",
	Random:           "Random",
	ActorJoin:        "ActorJoin",
	ActorSleep:       "ActorSleep",
	ActorExit:        "ActorExit",
	ObjectRead:       "ObjectRead",
	ObjectWrite:      "ObjectWrite",
	MutexAsyncLock:   "MutexAsyncLock",
	MutexTest:        "MutexTest",
	MutexTryLock:     "MutexTryLock",
	MutexUnlock:      "MutexUnlock",
	MutexWait:        "MutexWait",
	SemAsyncLock:     "SemAsyncLock",
	SemUnlock:        "SemUnlock",
	SemWait:          "SemWait",
	BarrierAsyncLock: "BarrierAsyncLock",
	BarrierWait:      "BarrierWait",
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid returns true if t is one of the known transition types.
func (t Type) Valid() bool {
	return t < numTypes
}

func (t Type) isMutex() bool {
	return t >= MutexAsyncLock && t <= MutexWait
}

func (t Type) isSem() bool {
	return t >= SemAsyncLock && t <= SemWait
}

func (t Type) isBarrier() bool {
	return t >= BarrierAsyncLock && t <= BarrierWait
}

func (t Type) isObject() bool {
	return t == ObjectRead || t == ObjectWrite
}

// Transition is one step taken by an actor. A transition is never modified
// after it has been created.
//
// The meaning of the operands depends on the type:
//   - object: the object, mutex, semaphore or barrier the step operates on
//   - value: the value read or written, the semaphore capacity, the joined
//     actor or the random outcome
//   - aux: the mutex owner, whether a semaphore wait was granted or the
//     barrier size
type Transition struct {
	aid    Aid
	times  int
	typ    Type
	object uint64
	value  int64
	aux    int64
}

// New creates a transition for the actor aid that was considered times times
// before at its state.
func New(aid Aid, times int, typ Type, object uint64, value, aux int64) *Transition {
	return &Transition{
		aid:    aid,
		times:  times,
		typ:    typ,
		object: object,
		value:  value,
		aux:    aux,
	}
}

// NewUnknown creates a placeholder transition for aid. It is dependent with
// every other transition.
func NewUnknown(aid Aid) *Transition {
	return &Transition{aid: aid, typ: Unknown}
}

func (t *Transition) Aid() Aid {
	return t.aid
}

func (t *Transition) Times() int {
	return t.times
}

func (t *Transition) Type() Type {
	return t.typ
}

func (t *Transition) Object() uint64 {
	return t.object
}

func (t *Transition) Value() int64 {
	return t.value
}

func (t *Transition) Aux() int64 {
	return t.aux
}

// WithTimes returns a copy of the transition considered times times.
func (t *Transition) WithTimes(times int) *Transition {
	c := *t
	c.times = times
	return &c
}

// Equal returns true if both transitions describe the same step.
func (t *Transition) Equal(o *Transition) bool {
	if t == nil || o == nil {
		return t == o
	}
	return *t == *o
}

// Depends returns true if swapping t and o may change the outcome of the
// execution.
func (t *Transition) Depends(o *Transition) bool {
	// A join is enabled by the termination of its target, so it depends on
	// everything the target does.
	if t.typ == ActorJoin && Aid(t.value) == o.aid || o.typ == ActorJoin && Aid(o.value) == t.aid {
		return true
	}
	if o.typ < t.typ {
		return o.Depends(t)
	}
	if t.aid == o.aid {
		return true
	}
	switch {
	case t.typ == Unknown:
		return true
	case t.typ == Random, t.typ == ActorJoin, t.typ == ActorSleep, t.typ == ActorExit:
		return false
	case t.typ.isObject():
		if !o.typ.isObject() || t.object != o.object {
			return false
		}
		return t.typ == ObjectWrite || o.typ == ObjectWrite
	case t.typ.isMutex():
		return t.mutexDepends(o)
	case t.typ.isSem():
		return t.semDepends(o)
	case t.typ.isBarrier():
		return t.barrierDepends(o)
	}
	return true
}

// Independent is the negation of Depends.
func (t *Transition) Independent(o *Transition) bool {
	return !t.Depends(o)
}

// t.typ <= o.typ, both are mutex types from different actors
func (t *Transition) mutexDepends(o *Transition) bool {
	if !o.typ.isMutex() || t.object != o.object {
		return false
	}
	// LOCK indep TEST/WAIT and LOCK indep UNLOCK
	if t.typ == MutexAsyncLock && (o.typ == MutexTest || o.typ == MutexWait || o.typ == MutexUnlock) {
		return false
	}
	if (t.typ == MutexWait || t.typ == MutexTest) && (o.typ == MutexWait || o.typ == MutexTest) {
		return false
	}
	// TRYLOCK always fails while a request is queued
	if t.typ == MutexTest && o.typ == MutexTryLock {
		return false
	}
	if t.typ == MutexTryLock && o.typ == MutexWait {
		return false
	}
	// two unlocks are never enabled at the same time
	if t.typ == MutexUnlock && o.typ == MutexUnlock {
		return false
	}
	return true
}

func (t *Transition) semDepends(o *Transition) bool {
	if !o.typ.isSem() || t.object != o.object {
		return false
	}
	switch {
	case t.typ == SemAsyncLock && (o.typ == SemUnlock || o.typ == SemWait):
		return false
	case t.typ == SemUnlock && o.typ == SemUnlock:
		return false
	case t.typ == SemWait && o.typ == SemWait:
		return false
	}
	return true
}

func (t *Transition) barrierDepends(o *Transition) bool {
	if !o.typ.isBarrier() || t.object != o.object {
		return false
	}
	// requests are not ordered in a barrier
	return t.typ != o.typ
}

// CanBeCoEnabled returns false if t and o can never be enabled in the same
// state.
func (t *Transition) CanBeCoEnabled(o *Transition) bool {
	if o.typ < t.typ {
		return o.CanBeCoEnabled(t)
	}
	if t.aid == o.aid {
		return false
	}
	if t.typ.isMutex() && o.typ.isMutex() && t.object == o.object {
		// whoever can unlock or wait owns the mutex
		if t.typ == MutexUnlock && o.typ == MutexWait {
			return false
		}
		if t.typ == MutexWait && o.typ == MutexWait {
			return false
		}
	}
	return true
}

// History gives access to the transitions of an execution by their position.
type History interface {
	Len() int
	TransitionAt(h int) *Transition
}

// ReversibleRace returns true if the race between t, executed at position
// this in h, and the later transition later, executed at position other,
// can be reversed. A race is not reversible when t is what enabled later.
func (t *Transition) ReversibleRace(later *Transition, h History, this, other int) bool {
	if later.typ == ActorJoin && Aid(later.value) == t.aid {
		return false
	}
	switch {
	case t.typ.isMutex():
		// only an unlock can be dependent with a wait, and it enabled it
		return later.typ != MutexWait
	case t.typ.isSem():
		if later.typ == SemWait && t.typ == SemUnlock {
			return semWaitFireableWithoutUnlock(h, this, other)
		}
		return true
	case t.typ.isBarrier():
		return !(later.typ == BarrierWait && t.typ == BarrierAsyncLock)
	}
	return true
}

// semWaitFireableWithoutUnlock replays the semaphore operations preceding
// the wait to decide whether it would have been granted had the unlock at
// position unlock not happened.
func semWaitFireableWithoutUnlock(h History, unlock, wait int) bool {
	sem := h.TransitionAt(unlock).object
	waiter := h.TransitionAt(wait).aid
	maxCapacity := -1
	nbLock, nbUnlock := 0, 0
	lockFound := false

	for e := wait; e >= 0; e-- {
		t := h.TransitionAt(e)
		if t.typ != SemAsyncLock && t.typ != SemUnlock {
			continue
		}
		// locks issued after the one matching this wait do not matter
		if !lockFound && t.typ == SemAsyncLock {
			if t.aid != waiter {
				continue
			}
			lockFound = true
		}
		if t.object != sem {
			continue
		}
		maxCapacity = int(t.value)
		if t.typ == SemAsyncLock {
			maxCapacity++
		} else {
			maxCapacity--
		}
		if e == unlock {
			continue
		}
		if t.typ == SemAsyncLock {
			nbLock++
		} else {
			nbUnlock++
		}
	}
	return maxCapacity-nbLock+nbUnlock >= 0
}

func (t *Transition) String() string {
	if t == nil {
		return "<nil>"
	}
	switch {
	case t.typ == Random:
		return fmt.Sprintf("Random(value: %d)", t.value)
	case t.typ == ActorJoin:
		return fmt.Sprintf("ActorJoin(target: %d)", t.value)
	case t.typ == ActorSleep, t.typ == ActorExit, t.typ == Unknown:
		return t.typ.String()
	case t.typ.isObject():
		return fmt.Sprintf("%v(object: %x, value: %d)", t.typ, t.object, t.value)
	case t.typ.isMutex():
		return fmt.Sprintf("%v(mutex: %x, owner: %d)", t.typ, t.object, t.aux)
	case t.typ == SemWait:
		granted := "no"
		if t.aux != 0 {
			granted = "yes"
		}
		return fmt.Sprintf("%v(semaphore: %d, capacity: %d, granted: %s)", t.typ, t.object, t.value, granted)
	case t.typ.isSem():
		return fmt.Sprintf("%v(semaphore: %d, capacity: %d)", t.typ, t.object, t.value)
	case t.typ.isBarrier():
		return fmt.Sprintf("%v(barrier: %d)", t.typ, t.object)
	}
	return t.typ.String()
}
