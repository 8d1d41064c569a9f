package execution

import (
	"fmt"
	"strings"

	"simcheck/transition"
)

// ClockVector maps each actor to the handle of its latest event that
// happens-before the event owning the vector. A negative entry means no
// event of that actor happens-before it.
type ClockVector []int

// Get returns the entry of aid and whether it is set.
func (cv ClockVector) Get(aid transition.Aid) (int, bool) {
	if int(aid) >= len(cv) || cv[aid] < 0 {
		return -1, false
	}
	return cv[aid], true
}

func (cv ClockVector) set(aid transition.Aid, h int) ClockVector {
	for len(cv) <= int(aid) {
		cv = append(cv, -1)
	}
	cv[aid] = h
	return cv
}

// maxMerge sets every entry of cv to the maximum of itself and the entry of
// other.
func (cv ClockVector) maxMerge(other ClockVector) ClockVector {
	for len(cv) < len(other) {
		cv = append(cv, -1)
	}
	for i, h := range other {
		if h > cv[i] {
			cv[i] = h
		}
	}
	return cv
}

func (cv ClockVector) String() string {
	out := strings.Builder{}
	out.WriteString("[")
	for i, h := range cv {
		if i > 0 {
			out.WriteString(" ")
		}
		if h < 0 {
			out.WriteString("-")
		} else {
			out.WriteString(fmt.Sprint(h))
		}
	}
	out.WriteString("]")
	return out.String()
}

// Event is a transition together with the clock vector it was executed with.
type Event struct {
	t  *transition.Transition
	cv ClockVector
}

func (e Event) Transition() *transition.Transition {
	return e.t
}

func (e Event) ClockVector() ClockVector {
	return e.cv
}
