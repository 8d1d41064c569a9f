package explorer

import (
	"context"

	"github.com/cockroachdb/errors"

	"simcheck/execution"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
	"simcheck/state"
	"simcheck/transition"
)

// backtracker decides where a sequential exploration resumes.
type backtracker interface {
	// executed is called with the state an actor was just run from.
	executed(x *sequential, s *state.State)
	// open is called with the states a race update reopened.
	open(s *state.State)
	// postpone returns true if the top state should be left for a better
	// opened state.
	postpone(x *sequential, top *state.State) bool
	// next returns the state to resume from, nil when nothing is left.
	next(x *sequential) *state.State
	// lazy tells whether restoring the application can wait until an actor
	// is run.
	lazy() bool
	release()
}

// sequential explores the state space on a single application instance.
type sequential struct {
	walker
	launcher remoteApp.Launcher
	bt       backtracker
	traces   *execution.MazurkiewiczTraces
	// prefix is replayed before creating the initial state.
	prefix execution.PartialExecution
	// searching for a correct execution: bugs do not stop the exploration
	correctOnly   bool
	restorePended bool
}

func newSequential(launcher remoteApp.Launcher, cfg Config, stats *Stats) (*sequential, error) {
	strategy, err := NewStrategy(cfg.Strategy, cfg.Seed)
	if err != nil {
		return nil, err
	}
	x := &sequential{launcher: launcher}
	x.reg = state.NewRegistry(func(s *state.State) { x.finalizeCheckpoint(s) })
	red, err := reduction.New(cfg.Reduction, x.reg)
	if err != nil {
		return nil, err
	}
	x.cfg = cfg
	x.red = red
	x.strategy = strategy
	x.stats = stats
	x.dot = newDotWriter(cfg.Dot)
	switch cfg.Explorer {
	case BeFS:
		x.bt = newPool(strategy, cfg.Threshold, false)
	case OutOfOrder:
		x.bt = newPool(strategy, 0, true)
	default:
		x.bt = dfsBacktracker{}
	}
	x.afterExecute = func(s *state.State) { x.bt.executed(x, s) }
	if cfg.OptimalityCheck {
		switch {
		case red.Kind() != reduction.ODPOR:
			plog.Warningf("the optimality check only applies to the odpor reduction")
		case cfg.Explorer != DFS:
			plog.Warningf("odpor is only optimal in depth-first order, skipping the optimality check")
		default:
			x.traces = execution.NewMazurkiewiczTraces()
		}
	}
	return x, nil
}

func (x *sequential) start(ctx context.Context) error {
	app, err := x.launcher.Launch(ctx)
	if err != nil {
		return errors.Wrap(err, "launching the application")
	}
	app.SetTimeout(x.cfg.Timeout)
	x.app = app
	if len(x.prefix) > 0 {
		if err := app.Replay(x.prefix); err != nil {
			return errors.Wrap(err, "replaying the prefix")
		}
	}
	root, err := x.createRoot()
	if err != nil {
		return err
	}
	x.exec = execution.New()
	x.stack = state.Stack{root}
	x.dot.begin()
	return nil
}

func (x *sequential) stop() {
	x.releaseStack()
	x.bt.release()
	x.reg.Sweep()
	x.dot.end()
	if x.traces != nil {
		x.traces.LogData()
	}
	x.shutdown()
}

// explore runs the exploration loop until the state space is exhausted or
// an outcome stops it.
func (x *sequential) explore() (*outcome, error) {
	for {
		backtrack, out, err := x.pick()
		if err != nil || out != nil {
			return out, err
		}
		if !backtrack {
			continue
		}
		resumed, err := x.backtrack()
		if err != nil || !resumed {
			return nil, err
		}
	}
}

// pick runs the next actor of the top state. It returns true when the
// exploration has to backtrack.
func (x *sequential) pick() (bool, *outcome, error) {
	if x.maxDepthExceeded() {
		return true, nil, nil
	}
	top := x.stack.Top()
	if x.bt.postpone(x, top) {
		return true, nil, nil
	}
	aid, times := x.red.NextToExplore(x.exec, x.stack)
	if aid == transition.NoActor {
		out, err := x.leaf()
		return true, out, err
	}
	if err := x.restorePending(); err != nil {
		return false, nil, err
	}
	announced := top.ExecuteNext(aid, times)
	out, err := x.execute(aid, times, announced)
	if err != nil || out == nil {
		return false, nil, err
	}
	if err := x.applyRaces(); err != nil {
		return false, nil, err
	}
	if !x.correctOnly {
		return false, out, nil
	}
	if x.crashed {
		// the instance is gone, give up this search
		return false, out, nil
	}
	// an incorrect execution, keep looking for a correct one
	return true, nil, x.popPlaceholder()
}

func (x *sequential) leaf() (*outcome, error) {
	top := x.stack.Top()
	if top.NumActors() > 0 && len(top.EnabledActors()) == 0 {
		// the deadlock check needs the application
		if err := x.restorePending(); err != nil {
			return nil, err
		}
	}
	complete, deadlock, err := x.atLeaf()
	if err != nil {
		return nil, err
	}
	if complete {
		x.stats.traces.Inc()
		plog.Debugf("execution came to an end at %s", x.exec.OneStringTrace())
		if x.correctOnly {
			return &outcome{status: record.Success, trace: x.exec.Transitions()}, nil
		}
		if x.cfg.OnExecution != nil {
			x.cfg.OnExecution(x.exec.Transitions())
		}
		if x.traces != nil {
			if err := x.traces.Record(x.exec); err != nil {
				return nil, err
			}
		}
	}
	if err := x.applyRaces(); err != nil {
		return nil, err
	}
	top.MarkToDelete()
	if deadlock {
		plog.Infof("deadlock found at %s", x.exec.OneStringTrace())
		if !x.correctOnly {
			return &outcome{status: record.Deadlock, trace: x.exec.Transitions()}, nil
		}
	}
	return nil, nil
}

func (x *sequential) applyRaces() error {
	update, err := x.races()
	if err != nil {
		return err
	}
	_, err = x.red.ApplyRaceUpdate(update, x.bt.open)
	return err
}

func (x *sequential) backtrack() (bool, error) {
	x.stats.backtracks.Inc()
	next := x.bt.next(x)
	if next == nil {
		return false, nil
	}
	if err := x.setStack(next); err != nil {
		return false, err
	}
	next.Release()
	x.reg.Sweep()
	plog.Debugf("backtracking to %v at depth %d", next, next.Depth())
	if x.bt.lazy() {
		x.restorePended = true
		return true, nil
	}
	return true, x.restore(next)
}

func (x *sequential) restorePending() error {
	if !x.restorePended {
		return nil
	}
	x.restorePended = false
	return x.restore(x.stack.Top())
}

// dfsBacktracker resumes from the deepest state of the stack that still has
// something to explore.
type dfsBacktracker struct{}

func (dfsBacktracker) executed(x *sequential, s *state.State)          {}
func (dfsBacktracker) open(s *state.State)                             {}
func (dfsBacktracker) postpone(x *sequential, top *state.State) bool { return false }
func (dfsBacktracker) lazy() bool                                      { return false }
func (dfsBacktracker) release()                                        {}

func (dfsBacktracker) next(x *sequential) *state.State {
	for i := len(x.stack) - 1; i >= 0; i-- {
		s := x.stack[i]
		if s.HasMoreToExplore() {
			// next hands over a reference
			s.Retain()
			return s
		}
		x.red.OnBacktrack(s)
		s.MarkExplored()
	}
	return nil
}

// pool keeps the opened states and resumes from the one of lowest value.
// Ties go to the most recently created state.
type pool struct {
	strategy  Strategy
	threshold int
	lazyMode  bool
	opened    map[int64]*state.State
}

func newPool(strategy Strategy, threshold int, lazy bool) *pool {
	return &pool{
		strategy:  strategy,
		threshold: threshold,
		lazyMode:  lazy,
		opened:    make(map[int64]*state.State),
	}
}

func (p *pool) open(s *state.State) {
	if _, ok := p.opened[s.Num()]; ok {
		return
	}
	s.Retain()
	p.opened[s.Num()] = s
}

func (p *pool) executed(x *sequential, s *state.State) {
	x.red.OnExecuted(s)
	if s.HasMoreToExplore() {
		p.open(s)
	}
}

// best returns the opened state to explore first, dropping those that have
// nothing left to explore. The state stays in the pool.
func (p *pool) best() (*state.State, int) {
	var (
		best      *state.State
		bestValue int
	)
	for num, s := range p.opened {
		if !s.HasMoreToExplore() {
			delete(p.opened, num)
			s.Release()
			continue
		}
		v := p.strategy.Value(s.Guide())
		if best == nil || v < bestValue || v == bestValue && s.Num() > best.Num() {
			best, bestValue = s, v
		}
	}
	return best, bestValue
}

func (p *pool) postpone(x *sequential, top *state.State) bool {
	if p.threshold == 0 {
		return false
	}
	best, bestValue := p.best()
	if best == nil || best == top {
		return false
	}
	current := p.strategy.Value(top.Guide())
	if bestValue >= current || float64(current*p.threshold)/100 <= float64(bestValue) {
		return false
	}
	plog.Debugf("postponing %v (value %d) for %v (value %d)", top, current, best, bestValue)
	p.open(top)
	return true
}

func (p *pool) next(x *sequential) *state.State {
	closeExhausted(x.red, x.stack)
	if p.lazyMode {
		return p.oldest()
	}
	best, _ := p.best()
	if best != nil {
		delete(p.opened, best.Num())
	}
	return best
}

// oldest returns the opened state created first.
func (p *pool) oldest() *state.State {
	var first *state.State
	for num, s := range p.opened {
		if !s.HasMoreToExplore() {
			delete(p.opened, num)
			s.Release()
			continue
		}
		if first == nil || s.Num() < first.Num() {
			first = s
		}
	}
	if first != nil {
		delete(p.opened, first.Num())
	}
	return first
}

func (p *pool) lazy() bool {
	return p.lazyMode
}

func (p *pool) release() {
	for num, s := range p.opened {
		delete(p.opened, num)
		s.Release()
	}
}
