package state

import (
	"fmt"

	"simcheck/transition"
)

// ActorInfo is what the application reports about one of its actors.
type ActorInfo struct {
	Aid           transition.Aid
	Enabled       bool
	MaxConsidered int
	// Next is the transition the actor would run if scheduled
	Next *transition.Transition
}

type actorStatus int

const (
	// the actor has not been marked for exploration
	unknown actorStatus = iota
	// the actor must be explored from this state
	todo
	// every variant of the actor's step has been explored from this state
	done
)

func (s actorStatus) String() string {
	switch s {
	case todo:
		return "todo"
	case done:
		return "done"
	}
	return "unknown"
}

// ActorState is the view a state has of one actor.
type ActorState struct {
	Aid             transition.Aid
	Enabled         bool
	MaxConsidered   int
	TimesConsidered int
	Status          string
	Next            *transition.Transition
}

type actorState struct {
	aid             transition.Aid
	enabled         bool
	maxConsidered   int
	timesConsidered int
	status          actorStatus
	next            *transition.Transition
}

func newActorState(info ActorInfo) *actorState {
	maxConsidered := info.MaxConsidered
	if maxConsidered < 1 {
		maxConsidered = 1
	}
	return &actorState{
		aid:           info.Aid,
		enabled:       info.Enabled,
		maxConsidered: maxConsidered,
		next:          info.Next,
	}
}

// markTodo schedules the actor unless it is disabled or already scheduled.
func (a *actorState) markTodo() bool {
	if !a.enabled || a.status != unknown {
		return false
	}
	a.status = todo
	return true
}

// consider records that the variant times of the actor's step is explored.
func (a *actorState) consider(times int) {
	if times+1 > a.timesConsidered {
		a.timesConsidered = times + 1
	}
	if a.timesConsidered >= a.maxConsidered {
		a.status = done
	}
}

func (a *actorState) exhausted() bool {
	return a.timesConsidered >= a.maxConsidered
}

func (a *actorState) view() ActorState {
	return ActorState{
		Aid:             a.aid,
		Enabled:         a.enabled,
		MaxConsidered:   a.maxConsidered,
		TimesConsidered: a.timesConsidered,
		Status:          a.status.String(),
		Next:            a.next,
	}
}

func (a ActorState) String() string {
	return fmt.Sprintf("actor %d (enabled: %v, %d/%d, %s): %v", a.Aid, a.Enabled, a.TimesConsidered, a.MaxConsidered, a.Status, a.Next)
}
