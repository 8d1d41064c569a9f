package explorer

import (
	"context"

	"simcheck/execution"
	"simcheck/record"
	"simcheck/remoteApp"
	"simcheck/transition"
)

// CriticalTransition is the step of a buggy trace after which no correct
// execution remains.
type CriticalTransition struct {
	// Index is the position of the step in the trace.
	Index      int
	Transition *transition.Transition
}

// findCriticalTransition walks the buggy trace backwards and explores from
// each of its prefixes until one of them can still end correctly. The step
// following that prefix is the critical transition.
func findCriticalTransition(ctx context.Context, launcher remoteApp.Launcher, cfg Config, trace execution.PartialExecution) (*CriticalTransition, error) {
	sub := cfg
	sub.Explorer = DFS
	sub.CriticalSearch = false
	sub.OptimalityCheck = false
	sub.Dot = nil
	sub.OnExecution = nil
	sub.CheckpointInterval = 0
	stats := newStats()
	defer stats.log("critical transition search")
	plog.Infof("looking for the critical transition of a trace of %d transitions", len(trace))
	for i := len(trace) - 1; i >= 0; i-- {
		found, err := correctExecutionAfter(ctx, launcher, sub, trace[:i], stats)
		if err != nil {
			return nil, err
		}
		if found {
			plog.Infof("found the critical transition: actor %d, %v", trace[i].Aid(), trace[i])
			return &CriticalTransition{Index: i, Transition: trace[i]}, nil
		}
		plog.Debugf("no correct execution after %s", execution.TextualTrace(trace[:i]))
	}
	plog.Infof("no correct execution exists, every trace is buggy")
	return nil, nil
}

func correctExecutionAfter(ctx context.Context, launcher remoteApp.Launcher, cfg Config, prefix execution.PartialExecution, stats *Stats) (bool, error) {
	x, err := newSequential(launcher, cfg, stats)
	if err != nil {
		return false, err
	}
	x.prefix = prefix
	x.correctOnly = true
	if err := x.start(ctx); err != nil {
		x.shutdown()
		return false, err
	}
	defer x.stop()
	out, err := x.explore()
	if err != nil {
		return false, err
	}
	return out != nil && out.status == record.Success, nil
}
