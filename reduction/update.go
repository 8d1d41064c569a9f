package reduction

import (
	"github.com/kr/pretty"

	"simcheck/execution"
	"simcheck/state"
	"simcheck/transition"
)

// RaceUpdate describes the branches that must be reopened in the ancestors
// of a leaf. It holds a reference to every state it names until it is
// applied or released.
type RaceUpdate interface {
	// Len returns the number of states named by the update.
	Len() int
	// States returns the states named by the update.
	States() []*state.State
	// Release drops the references held by the update.
	Release()
}

type setEntry struct {
	s      *state.State
	actors []transition.Aid
}

// setUpdate adds actors to the backtrack sets of states.
type setUpdate struct {
	entries []setEntry
}

func (u *setUpdate) add(s *state.State, actors ...transition.Aid) {
	if len(actors) == 0 {
		return
	}
	for i := range u.entries {
		if u.entries[i].s == s {
			u.entries[i].actors = append(u.entries[i].actors, actors...)
			return
		}
	}
	s.Retain()
	u.entries = append(u.entries, setEntry{s: s, actors: actors})
}

func (u *setUpdate) Len() int {
	return len(u.entries)
}

func (u *setUpdate) States() []*state.State {
	out := make([]*state.State, len(u.entries))
	for i, e := range u.entries {
		out[i] = e.s
	}
	return out
}

func (u *setUpdate) Release() {
	for _, e := range u.entries {
		e.s.Release()
	}
	u.entries = nil
}

func (u *setUpdate) GoString() string {
	desc := map[int64][]transition.Aid{}
	for _, e := range u.entries {
		desc[e.s.Num()] = e.actors
	}
	return pretty.Sprintf("setUpdate%# v", desc)
}

type sequenceEntry struct {
	s *state.State
	v execution.PartialExecution
}

// sequenceUpdate inserts sequences into the wakeup trees of states.
type sequenceUpdate struct {
	entries []sequenceEntry
}

func (u *sequenceUpdate) add(s *state.State, v execution.PartialExecution) {
	s.Retain()
	u.entries = append(u.entries, sequenceEntry{s: s, v: v})
}

func (u *sequenceUpdate) Len() int {
	return len(u.entries)
}

func (u *sequenceUpdate) States() []*state.State {
	out := make([]*state.State, len(u.entries))
	for i, e := range u.entries {
		out[i] = e.s
	}
	return out
}

func (u *sequenceUpdate) Release() {
	for _, e := range u.entries {
		e.s.Release()
	}
	u.entries = nil
}

func (u *sequenceUpdate) GoString() string {
	desc := map[int64][]string{}
	for _, e := range u.entries {
		desc[e.s.Num()] = append(desc[e.s.Num()], e.v.String())
	}
	return pretty.Sprintf("sequenceUpdate%# v", desc)
}
