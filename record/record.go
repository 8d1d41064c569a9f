// Package record holds the replayable form of an explored trace.
package record

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"simcheck/transition"
)

// ExitStatus is the outcome of an exploration or of a replayed trace.
type ExitStatus int

const (
	Success ExitStatus = iota
	// Safety means that an assertion of the application failed.
	Safety
	Deadlock
	ProgramCrash
	// NonTermination is reserved for liveness checking.
	NonTermination
)

func (s ExitStatus) String() string {
	switch s {
	case Success:
		return "success"
	case Safety:
		return "safety violation"
	case Deadlock:
		return "deadlock"
	case ProgramCrash:
		return "program crash"
	case NonTermination:
		return "non-termination"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// ExitCode is the process exit code reporting s.
func (s ExitStatus) ExitCode() int {
	switch s {
	case Success:
		return 0
	case Safety:
		return 1
	case Deadlock:
		return 3
	case ProgramCrash:
		return 4
	case NonTermination:
		return 5
	}
	return 2
}

// ErrInvalidTrace is returned when parsing or decoding a malformed trace.
var ErrInvalidTrace = errors.New("record: invalid trace")

// Step is one scheduling decision of a trace.
type Step struct {
	Aid   transition.Aid
	Times int
	// Transition is what the actor did. It is nil for traces parsed from
	// their textual form.
	Transition *transition.Transition
}

// RecordTrace is a sequence of scheduling decisions that can be replayed
// against a fresh application instance.
type RecordTrace struct {
	// Session identifies the exploration that produced the trace.
	Session uuid.UUID
	Status  ExitStatus
	Steps   []Step
}

// FromTransitions returns the trace scheduling the actors of w in order.
func FromTransitions(session uuid.UUID, status ExitStatus, w []*transition.Transition) RecordTrace {
	steps := make([]Step, len(w))
	for i, t := range w {
		steps[i] = Step{Aid: t.Aid(), Times: t.Times(), Transition: t}
	}
	return RecordTrace{Session: session, Status: status, Steps: steps}
}

// Transitions returns the recorded transitions, or nil if some step has none.
func (r RecordTrace) Transitions() []*transition.Transition {
	w := make([]*transition.Transition, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Transition == nil {
			return nil
		}
		w = append(w, s.Transition)
	}
	return w
}

// String returns the textual form "aid/times;aid/times;...".
func (r RecordTrace) String() string {
	var sb strings.Builder
	for i, s := range r.Steps {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Itoa(int(s.Aid)))
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(s.Times))
	}
	return sb.String()
}

// Parse reads the textual form of a trace. The times of a step may be
// omitted and then defaults to 0.
func Parse(text string) (RecordTrace, error) {
	var r RecordTrace
	text = strings.TrimSpace(text)
	if text == "" {
		return r, nil
	}
	for i, item := range strings.Split(text, ";") {
		aidText, timesText, hasTimes := strings.Cut(strings.TrimSpace(item), "/")
		aid, err := strconv.Atoi(aidText)
		if err != nil || aid < 0 {
			return RecordTrace{}, errors.Wrapf(ErrInvalidTrace, "step %d: bad actor %q", i, aidText)
		}
		times := 0
		if hasTimes {
			if times, err = strconv.Atoi(timesText); err != nil || times < 0 {
				return RecordTrace{}, errors.Wrapf(ErrInvalidTrace, "step %d: bad times %q", i, timesText)
			}
		}
		r.Steps = append(r.Steps, Step{Aid: transition.Aid(aid), Times: times})
	}
	return r, nil
}
