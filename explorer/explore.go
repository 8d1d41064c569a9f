// Package explorer walks the state space of an application, one transition
// at a time, looking for assertion failures, crashes and deadlocks.
package explorer

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"simcheck/execution"
	"simcheck/logger"
	"simcheck/record"
	"simcheck/remoteApp"
)

var plog = logger.GetLogger("explorer")

// ErrMaxDepthReached is the warning of a result whose exploration cut at
// least one branch.
var ErrMaxDepthReached = errors.New("explorer: max depth reached")

// Result is the outcome of an exploration.
type Result struct {
	Session uuid.UUID
	Status  record.ExitStatus
	// Trace replays the bug. It is empty when Status is record.Success.
	Trace        record.RecordTrace
	TextualTrace []string
	// Critical is nil when no critical transition was searched or found.
	Critical        *CriticalTransition
	Stats           Snapshot
	MaxDepthReached bool
	// Unsound is set when a branch was cut while using a reduction whose
	// guarantees depend on complete executions.
	Unsound bool
	// Warning wraps ErrMaxDepthReached when MaxDepthReached is set.
	Warning error

	stats *Stats
}

// WriteMetrics writes the counters of the exploration in the Prometheus
// text format.
func (r *Result) WriteMetrics(w io.Writer) {
	r.stats.WritePrometheus(w)
}

// Explore explores the application started by launcher.
func Explore(ctx context.Context, launcher remoteApp.Launcher, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	res := &Result{Session: uuid.New(), stats: newStats()}
	plog.Infof("exploration %s: %s explorer, %s reduction", res.Session, cfg.Explorer, cfg.Reduction)

	var (
		out *outcome
		err error
	)
	if cfg.Explorer == Parallel {
		out, res.MaxDepthReached, err = exploreParallel(ctx, launcher, cfg, res.stats)
	} else {
		out, res.MaxDepthReached, err = exploreSequential(ctx, launcher, cfg, res.stats)
	}
	if err != nil {
		return nil, err
	}
	if res.MaxDepthReached {
		res.Unsound = cfg.Reduction.DepthSensitive()
		res.Warning = errors.Wrapf(ErrMaxDepthReached, "branches longer than %d transitions were cut", cfg.MaxDepth)
	}
	if out != nil {
		res.Status = out.status
		res.Trace = record.FromTransitions(res.Session, out.status, out.trace)
		res.TextualTrace = execution.TextualTrace(out.trace)
		plog.Infof("%v found, replay it with %q", out.status, res.Trace.String())
		if cfg.CriticalSearch && (out.status == record.Safety || out.status == record.Deadlock) {
			if res.Critical, err = findCriticalTransition(ctx, launcher, cfg, out.trace); err != nil {
				return nil, err
			}
		}
	}
	res.stats.log("exploration done")
	res.Stats = res.stats.Snapshot()
	return res, nil
}

func exploreSequential(ctx context.Context, launcher remoteApp.Launcher, cfg Config, stats *Stats) (*outcome, bool, error) {
	x, err := newSequential(launcher, cfg, stats)
	if err != nil {
		return nil, false, err
	}
	if err := x.start(ctx); err != nil {
		x.shutdown()
		return nil, false, err
	}
	defer x.stop()
	out, err := x.explore()
	return out, x.maxDepthReached, err
}
