package state

import (
	"sync"
	"sync/atomic"

	"simcheck/transition"
)

// Registry owns every live state and reclaims the ones the exploration can
// no longer reach.
//
// A state is live while it is referenced (see Retain) or while one of its
// descendants is. Children point to their parent, so reference counts alone
// cannot tell when a subtree is unreachable: Sweep marks the referenced
// states and their ancestors and drops everything else.
type Registry struct {
	mu     sync.Mutex
	states map[int64]*State
	nextID atomic.Int64
	onDrop func(*State)
}

// NewRegistry returns an empty registry. onDrop, if not nil, is called for
// every state removed by Sweep.
func NewRegistry(onDrop func(*State)) *Registry {
	return &Registry{
		states: map[int64]*State{},
		onDrop: onDrop,
	}
}

// New creates and registers a state. The caller holds the only reference to
// it.
func (r *Registry) New(parent *State, incoming *transition.Transition, infos []ActorInfo) *State {
	s := newState(r.nextID.Add(1)-1, parent, incoming, infos)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.num] = s
	return s
}

// NewPlaceholder creates the state reached by a step that failed. It takes
// over the branch its parent picked for the step, and nothing is ever
// explored from it.
func (r *Registry) NewPlaceholder(parent *State, incoming *transition.Transition) *State {
	s := r.New(parent, incoming, nil)
	if parent != nil && incoming != nil {
		parent.takeBranch(incoming.Aid(), s)
	}
	s.MarkToDelete()
	s.MarkExplored()
	return s
}

// Get returns the live state with the provided id.
func (r *Registry) Get(id int64) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	return s, ok
}

// Len returns the number of live states.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Created returns the number of states created so far.
func (r *Registry) Created() int64 {
	return r.nextID.Load()
}

// Sweep removes the states that are neither referenced nor the ancestor of
// a referenced state. It returns how many states were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	marked := make(map[int64]bool, len(r.states))
	for _, s := range r.states {
		if s.Refs() <= 0 {
			continue
		}
		for cur := s; cur != nil && !marked[cur.num]; cur = cur.parent {
			marked[cur.num] = true
		}
	}
	dropped := []*State{}
	for id, s := range r.states {
		if !marked[id] {
			dropped = append(dropped, s)
			delete(r.states, id)
		}
	}
	r.mu.Unlock()

	for _, s := range dropped {
		plog.Debugf("dropping %v", s)
		if r.onDrop != nil {
			r.onDrop(s)
		}
	}
	return len(dropped)
}
