package simcheck

import (
	"io"
	"time"

	"simcheck/config"
	"simcheck/explorer"
	"simcheck/reduction"
)

// Use the provided reduction to prune equivalent interleavings.
//
// Default value is reduction.DPOR.
func WithReduction(kind reduction.Kind) config.Option {
	return config.ReductionOption{Reduction: kind}
}

// Explore depth first, backtracking to the deepest state with work left.
func DFS() config.Option {
	return config.ExplorerOption{Explorer: explorer.DFS}
}

// Explore the opened state with the best value according to strategy first.
//
// The current state is left for a better one when its value scaled by
// threshold percent is worse than the best value. A threshold of 0 only
// changes state when the current one is exhausted.
func BestFirst(strategy string, threshold int) config.Option {
	return config.Options{
		config.ExplorerOption{Explorer: explorer.BeFS},
		config.StrategyOption{Name: strategy},
		config.BeFSThresholdOption{Threshold: threshold},
	}
}

// Explore the oldest opened state first. The application is only restored
// once an actor has to be run.
func OutOfOrder() config.Option {
	return config.ExplorerOption{Explorer: explorer.OutOfOrder}
}

// Explore with n application instances at the same time.
//
// Default value is GOMAXPROCS
func Parallel(n int) config.Option {
	return config.Options{
		config.ExplorerOption{Explorer: explorer.Parallel},
		config.WorkersOption{N: n},
	}
}

// Configure the maximum depth explored.
//
// Default value is 1000.
//
// Note that the sdpor and odpor reductions are not sound anymore when a
// branch is cut.
func MaxDepth(maxDepth int) config.Option {
	return config.MaxDepthOption{MaxDepth: maxDepth}
}

// Checkpoint the application every interval created states, keeping at most
// maxLive checkpoints alive.
func Checkpoints(interval, maxLive int) config.Option {
	return config.Options{
		config.CheckpointIntervalOption{Interval: interval},
		config.MaxCheckpointsOption{Max: maxLive},
	}
}

// Do not search the critical transition of a found bug.
func SkipCriticalTransition() config.Option {
	return config.CriticalTransitionOption{Enabled: false}
}

// Fail the exploration when two explored traces are equivalent.
func CheckOptimality() config.Option {
	return config.OptimalityCheckOption{}
}

// Write the explored graph to the writer
func ExportDot(w io.Writer) config.Option {
	return config.DotOutputOption{W: w}
}

// Configure how long the checker waits for the application.
//
// Default value is 10s.
func Timeout(d time.Duration) config.Option {
	return config.TimeoutOption{Timeout: d}
}
