package explorer

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lni/goutils/syncutil"
	"golang.org/x/sync/errgroup"

	"simcheck/execution"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
	"simcheck/state"
	"simcheck/transition"
)

// report is what a worker sends back for every state it popped.
type report struct {
	popped *state.State
	// the path walked by the worker, one reference each
	held     state.Stack
	opened   []*state.State
	update   reduction.RaceUpdate
	// complete executions reached by the worker
	complete []execution.PartialExecution
	outcome  *outcome
	maxDepth bool
	err      error
}

func (r *report) release() {
	if r.update != nil {
		r.update.Release()
		r.update = nil
	}
	for _, s := range r.held {
		s.Release()
	}
	r.held = nil
	r.popped.Release()
}

// worker explores from the opened states on its own application instance.
type worker struct {
	walker
	id     int
	rootCp uint32
}

func (w *worker) run(opened *queue[*state.State], reports *queue[*report]) {
	for {
		s := opened.pop()
		if s == nil {
			plog.Debugf("worker %d: stopping", w.id)
			return
		}
		reports.push(w.explore(s))
	}
}

// explore runs one actor from s, then walks down to a leaf.
func (w *worker) explore(s *state.State) *report {
	rep := &report{popped: s}
	if !s.TryClaim() {
		return rep
	}
	w.stack = state.Stack(s.Ancestors())
	for _, st := range w.stack {
		st.Retain()
	}
	w.exec = execution.FromPartialExecution(w.stack.Transitions())
	aid, times := w.red.NextToExplore(w.exec, w.stack)
	var announced *transition.Transition
	if aid != transition.NoActor {
		announced = s.ExecuteNext(aid, times)
	}
	s.ReleaseClaim()
	if aid == transition.NoActor {
		rep.held, w.stack = w.stack, nil
		return rep
	}

	var out *outcome
	err := w.restoreFromRoot()
	if err == nil {
		out, err = w.execute(aid, times, announced)
	}
	for out == nil && err == nil {
		if w.maxDepthExceeded() {
			break
		}
		top := w.stack.Top()
		aid, times := w.red.NextToExplore(w.exec, w.stack)
		if aid == transition.NoActor {
			out, err = w.leaf(rep)
			break
		}
		out, err = w.execute(aid, times, top.ExecuteNext(aid, times))
	}
	if out != nil && err == nil && out.status != record.Deadlock {
		rep.update, err = w.races()
	}
	rep.outcome, rep.err = out, err
	rep.maxDepth = w.maxDepthReached
	for _, st := range w.stack {
		if st.HasMoreToExplore() {
			rep.opened = append(rep.opened, st)
		}
	}
	rep.held, w.stack = w.stack, nil
	return rep
}

func (w *worker) leaf(rep *report) (*outcome, error) {
	complete, deadlock, err := w.atLeaf()
	if err != nil {
		return nil, err
	}
	if complete {
		rep.complete = append(rep.complete, w.exec.Transitions())
	}
	if rep.update, err = w.races(); err != nil {
		return nil, err
	}
	w.stack.Top().MarkToDelete()
	if deadlock {
		return &outcome{status: record.Deadlock, trace: w.exec.Transitions()}, nil
	}
	return nil, nil
}

func (w *worker) restoreFromRoot() error {
	if err := w.app.Restore(w.rootCp); err != nil {
		return err
	}
	replay := w.stack.Transitions()
	if err := w.app.Replay(replay); err != nil {
		return errors.Wrapf(err, "worker %d: replaying to %v", w.id, w.stack.Top())
	}
	w.stats.replays.Add(len(replay))
	return nil
}

func fingerprint(w execution.PartialExecution) uint64 {
	trace := record.FromTransitions(uuid.Nil, record.Success, w)
	return xxhash.Sum64String(trace.String())
}

// parallelExplorer hands the opened states to a pool of workers and applies
// the race updates they report.
type parallelExplorer struct {
	cfg     Config
	red     reduction.Reduction
	reg     *state.Registry
	stats   *Stats
	dot     *dotWriter
	workers []*worker
	opened  *queue[*state.State]
	reports *queue[*report]
	seen    map[uint64]bool

	maxDepthReached bool
}

func exploreParallel(ctx context.Context, launcher remoteApp.Launcher, cfg Config, stats *Stats) (*outcome, bool, error) {
	// every worker restores from its own initial checkpoint
	cfg.CheckpointInterval = 0
	reg := state.NewRegistry(nil)
	red, err := reduction.New(cfg.Reduction, reg)
	if err != nil {
		return nil, false, err
	}
	p := &parallelExplorer{
		cfg:     cfg,
		red:     red,
		reg:     reg,
		stats:   stats,
		dot:     newDotWriter(cfg.Dot),
		workers: make([]*worker, cfg.Workers),
		opened:  newQueue[*state.State](),
		reports: newQueue[*report](),
		seen:    make(map[uint64]bool),
	}
	defer p.shutdown()
	if err := p.launch(ctx, launcher); err != nil {
		return nil, false, err
	}
	root, err := red.StateCreate(p.workers[0].app, nil, nil)
	if err != nil {
		return nil, false, err
	}
	stats.states.Inc()
	root.SetGuide(p.workers[0].strategy.Derive(nil, nil))

	p.dot.begin()
	defer p.dot.end()
	stopper := syncutil.NewStopper()
	for _, w := range p.workers {
		w := w
		stopper.RunWorker(func() {
			w.run(p.opened, p.reports)
		})
	}
	out, err := p.coordinate(root)
	for range p.workers {
		p.opened.push(nil)
	}
	stopper.Stop()
	for _, rep := range p.reports.drain() {
		rep.release()
	}
	for _, s := range p.opened.drain() {
		if s != nil {
			s.Release()
		}
	}
	root.Release()
	p.reg.Sweep()
	return out, p.maxDepthReached, err
}

// launch starts the application instances of the workers concurrently.
func (p *parallelExplorer) launch(ctx context.Context, launcher remoteApp.Launcher) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.workers {
		i := i
		g.Go(func() error {
			app, err := launcher.Launch(gctx)
			if err != nil {
				return errors.Wrapf(err, "launching the application of worker %d", i)
			}
			app.SetTimeout(p.cfg.Timeout)
			w := &worker{id: i}
			w.cfg = p.cfg
			w.red = p.red
			w.reg = p.reg
			w.stats = p.stats
			w.dot = p.dot
			w.app = app
			w.afterExecute = p.red.OnExecuted
			// strategies are not shared between goroutines
			if w.strategy, err = NewStrategy(p.cfg.Strategy, p.cfg.Seed+int64(i)); err != nil {
				return err
			}
			p.workers[i] = w
			if w.rootCp, err = app.Fork(); err != nil {
				return errors.Wrapf(err, "checkpointing the initial state of worker %d", i)
			}
			return nil
		})
	}
	return g.Wait()
}

// coordinate applies the reports until no popped state is left without its
// report, or a worker found a bug.
func (p *parallelExplorer) coordinate(root *state.State) (*outcome, error) {
	outstanding := 1
	root.Retain()
	p.opened.push(root)
	for outstanding > 0 {
		rep := p.reports.pop()
		outstanding--
		p.maxDepthReached = p.maxDepthReached || rep.maxDepth
		for _, w := range rep.complete {
			if fp := fingerprint(w); !p.seen[fp] {
				p.seen[fp] = true
				p.stats.traces.Inc()
			}
			if p.cfg.OnExecution != nil {
				p.cfg.OnExecution(w)
			}
		}
		if rep.err != nil || rep.outcome != nil {
			rep.release()
			return rep.outcome, rep.err
		}
		pushed := 0
		push := func(s *state.State) {
			s.Retain()
			p.opened.push(s)
			pushed++
		}
		for _, s := range rep.opened {
			push(s)
		}
		if rep.update != nil {
			update := rep.update
			rep.update = nil
			if _, err := p.red.ApplyRaceUpdate(update, push); err != nil {
				rep.release()
				return nil, err
			}
		}
		outstanding += pushed
		closeExhausted(p.red, rep.held)
		rep.release()
		p.reg.Sweep()
		p.stats.backtracks.Inc()
	}
	plog.Debugf("no opened state left, %d states alive", p.reg.Len())
	return nil, nil
}

func (p *parallelExplorer) shutdown() {
	for _, w := range p.workers {
		if w != nil {
			w.shutdown()
		}
	}
}
