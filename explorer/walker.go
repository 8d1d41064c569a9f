package explorer

import (
	"github.com/cockroachdb/errors"

	"simcheck/execution"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
	"simcheck/state"
	"simcheck/transition"
)

// outcome is a bug found on the current path.
type outcome struct {
	status record.ExitStatus
	trace  execution.PartialExecution
}

// walker follows one path of the state space on one application instance.
// The stack holds one reference on each of its states.
type walker struct {
	cfg      Config
	red      reduction.Reduction
	reg      *state.Registry
	strategy Strategy
	stats    *Stats
	dot      *dotWriter

	app   *remoteApp.RemoteApp
	exec  *execution.Execution
	stack state.Stack

	// called with the state an actor was just executed from
	afterExecute    func(s *state.State)
	maxDepthReached bool
	crashed         bool
}

// createRoot creates the initial state from the current application state
// and checkpoints it.
func (w *walker) createRoot() (*state.State, error) {
	root, err := w.red.StateCreate(w.app, nil, nil)
	if err != nil {
		return nil, err
	}
	w.stats.states.Inc()
	root.SetGuide(w.strategy.Derive(nil, nil))
	cp, err := w.app.Fork()
	if err != nil {
		root.Release()
		return nil, errors.Wrap(err, "checkpointing the initial state")
	}
	root.SetCheckpoint(cp)
	return root, nil
}

// maxDepthExceeded cuts the branch of the top state when the stack is too
// deep.
func (w *walker) maxDepthExceeded() bool {
	if len(w.stack) <= w.cfg.MaxDepth {
		return false
	}
	top := w.stack.Top()
	if !w.maxDepthReached {
		plog.Warningf("max depth of %d reached at %v, cutting the branch", w.cfg.MaxDepth, top)
		if w.red.Kind().DepthSensitive() {
			plog.Warningf("the %s reduction is not guaranteed to be sound anymore", w.red.Kind())
		}
	}
	w.maxDepthReached = true
	top.Abandon()
	top.MarkToDelete()
	return true
}

// execute runs actor aid from the top state and pushes the resulting state.
// An outcome is returned when the application failed.
func (w *walker) execute(aid transition.Aid, times int, announced *transition.Transition) (*outcome, error) {
	top := w.stack.Top()
	t, err := w.app.ExecuteSimcall(aid, times)
	if err != nil {
		return w.applicationError(err, announced)
	}
	top.SetOutgoing(t)
	w.exec.PushTransition(t)
	child, err := w.red.StateCreate(w.app, top, t)
	if err != nil {
		if errors.Is(err, remoteApp.ErrAppCrashed) {
			w.crashed = true
			return &outcome{status: record.ProgramCrash, trace: w.exec.Transitions()}, nil
		}
		return nil, err
	}
	w.stats.states.Inc()
	child.SetGuide(w.strategy.Derive(top.Guide(), t))
	w.stack = append(w.stack, child)
	w.dot.edge(top, child, t)
	plog.Debugf("executed %v from %v, reaching %v", t, top, child)
	if w.afterExecute != nil {
		w.afterExecute(top)
	}
	return nil, w.checkpoint(child)
}

// applicationError pushes a terminal placeholder state for the failed step
// so that the races of the failing execution can be computed.
func (w *walker) applicationError(err error, announced *transition.Transition) (*outcome, error) {
	status := record.Safety
	switch {
	case errors.Is(err, remoteApp.ErrAssertionFailed):
	case errors.Is(err, remoteApp.ErrAppCrashed):
		status = record.ProgramCrash
		w.crashed = true
	default:
		return nil, err
	}
	top := w.stack.Top()
	w.exec.PushTransition(announced)
	placeholder := w.reg.NewPlaceholder(top, announced)
	w.stack = append(w.stack, placeholder)
	plog.Infof("%v while running %v from %v", status, announced, top)
	return &outcome{status: status, trace: w.exec.Transitions()}, nil
}

// popPlaceholder removes the placeholder pushed by applicationError.
func (w *walker) popPlaceholder() error {
	placeholder := w.stack.Top()
	w.stack = w.stack[:len(w.stack)-1]
	placeholder.Release()
	return w.exec.RemoveLastEvent()
}

// atLeaf inspects a state from which nothing is left to run. It reports
// whether the execution is complete and whether the application is
// deadlocked.
func (w *walker) atLeaf() (complete, deadlock bool, err error) {
	top := w.stack.Top()
	if top.NumActors() == 0 {
		return true, false, nil
	}
	if len(top.EnabledActors()) > 0 {
		// the remaining actors are asleep
		return false, false, nil
	}
	deadlock, err = w.app.CheckDeadlock()
	return false, deadlock, err
}

// closeExhausted backtracks from the states of stack whose subtree is
// exhausted, from the top down to the first one that is not.
func closeExhausted(red reduction.Reduction, stack state.Stack) {
	for i := len(stack) - 1; i >= 0; i-- {
		s := stack[i]
		if !s.SubtreeExhausted() {
			return
		}
		if !s.Explored() {
			red.OnBacktrack(s)
			s.MarkExplored()
		}
	}
}

func (w *walker) races() (reduction.RaceUpdate, error) {
	update, err := w.red.RacesComputation(w.exec, w.stack)
	if err != nil {
		return nil, errors.Wrapf(err, "computing the races of %s", w.exec.OneStringTrace())
	}
	if update.Len() > 0 {
		plog.Debugf("race update: %# v", update)
	}
	return update, nil
}

func (w *walker) checkpoint(s *state.State) error {
	n := w.cfg.CheckpointInterval
	if n <= 0 || s.Num()%int64(n) != 0 {
		return nil
	}
	if live := w.app.LiveCheckpoints(); live >= w.cfg.MaxCheckpoints {
		plog.Warningf("skipping the checkpoint of %v, %d checkpoints are alive", s, live)
		w.stats.checkpointsSkipped.Inc()
		return nil
	}
	cp, err := w.app.Fork()
	if err != nil {
		return errors.Wrapf(err, "checkpointing %v", s)
	}
	s.SetCheckpoint(cp)
	return nil
}

// setStack makes the path from the initial state to s the current stack.
// The states leaving the stack are released.
func (w *walker) setStack(s *state.State) error {
	depth := s.Depth()
	if depth < len(w.stack) && w.stack[depth] == s {
		for _, popped := range w.stack[depth+1:] {
			popped.Release()
		}
		w.stack = w.stack[:depth+1]
		for w.exec.Len() > depth {
			if err := w.exec.RemoveLastEvent(); err != nil {
				return err
			}
		}
		return nil
	}
	path := state.Stack(s.Ancestors())
	for _, st := range path {
		st.Retain()
	}
	w.releaseStack()
	w.stack = path
	w.exec = execution.FromPartialExecution(path.Transitions())
	return nil
}

func (w *walker) releaseStack() {
	for _, s := range w.stack {
		s.Release()
	}
	w.stack = nil
}

// restore brings the application to s from the closest checkpoint above it.
func (w *walker) restore(s *state.State) error {
	path := s.Ancestors()
	i := len(path) - 1
	for ; i > 0; i-- {
		if _, ok := path[i].Checkpoint(); ok {
			break
		}
	}
	cp, ok := path[i].Checkpoint()
	if !ok {
		return errors.AssertionFailedf("no checkpoint to restore %v from", s)
	}
	if err := w.app.Restore(cp); err != nil {
		return errors.Wrapf(err, "restoring %v", path[i])
	}
	replay := state.Stack(path[i+1:]).Transitions()
	if err := w.app.Replay(replay); err != nil {
		return errors.Wrapf(err, "replaying from %v to %v", path[i], s)
	}
	w.stats.replays.Add(len(replay))
	plog.Debugf("restored %v from the checkpoint of %v, %d transitions replayed", s, path[i], len(replay))
	return nil
}

// finalizeCheckpoint releases the checkpoint of a dropped state.
func (w *walker) finalizeCheckpoint(s *state.State) {
	cp, ok := s.Checkpoint()
	if !ok || w.app == nil || w.crashed {
		return
	}
	s.ClearCheckpoint()
	if err := w.app.Finalize(cp); err != nil {
		plog.Warningf("releasing the checkpoint of %v: %v", s, err)
	}
}

func (w *walker) shutdown() {
	if w.app == nil {
		return
	}
	var err error
	if w.crashed {
		err = w.app.Close()
	} else {
		err = w.app.Shutdown()
	}
	if err != nil {
		plog.Warningf("shutting the application down: %v", err)
	}
}
