// Package config holds the options of an exploration.
package config

import (
	"io"
	"time"

	"simcheck/explorer"
	"simcheck/reduction"
)

// Option is implemented by every exploration option.
type Option interface {
	ExploreOpt()
}

// Configures the reduction pruning the explored interleavings.

// Default value is dpor.
type ReductionOption struct {
	Reduction reduction.Kind
}

func (ro ReductionOption) ExploreOpt() {}

// Configures the exploration algorithm.

// Default value is dfs.
type ExplorerOption struct {
	Explorer explorer.Kind
}

func (eo ExplorerOption) ExploreOpt() {}

// Default value is 1000
type MaxDepthOption struct {
	MaxDepth int
}

func (mdo MaxDepthOption) ExploreOpt() {}

// Configures when the best-first explorer leaves the current state for a
// better opened state, in percent of the value of the current state.

// Default value is 0, the current state is always explored further.
type BeFSThresholdOption struct {
	Threshold int
}

func (bto BeFSThresholdOption) ExploreOpt() {}

// Configures how often the application is checkpointed, in created states.

// Default value is 0, only the initial state is checkpointed.
type CheckpointIntervalOption struct {
	Interval int
}

func (cio CheckpointIntervalOption) ExploreOpt() {}

// Default value is 1024
type MaxCheckpointsOption struct {
	Max int
}

func (mco MaxCheckpointsOption) ExploreOpt() {}

// Configures how many application instances the parallel explorer runs.

// Default value is GOMAXPROCS
type WorkersOption struct {
	N int
}

func (wo WorkersOption) ExploreOpt() {}

// Configures whether the critical transition of a bug is searched.

// Default value is true.
type CriticalTransitionOption struct {
	Enabled bool
}

func (cto CriticalTransitionOption) ExploreOpt() {}

// Configures how the best-first explorers value the opened states, and the
// seed of the uniform strategy.

// Default value is none.
type StrategyOption struct {
	Name string
	Seed int64
}

func (so StrategyOption) ExploreOpt() {}

// Configures the check that no two explored traces are equivalent. Only
// meaningful with the odpor reduction.
type OptimalityCheckOption struct{}

func (oco OptimalityCheckOption) ExploreOpt() {}

// Configures an io.Writer receiving the explored graph in the Graphviz
// format.
type DotOutputOption struct {
	W io.Writer
}

func (doo DotOutputOption) ExploreOpt() {}

// Configures how long the checker waits for each answer of the application.

// Default value is 10s.
type TimeoutOption struct {
	Timeout time.Duration
}

func (to TimeoutOption) ExploreOpt() {}

// Options groups several options into one.
type Options []Option

func (o Options) ExploreOpt() {}

// Apply returns the configuration of the exploration once opts are applied
// to the default configuration. Options that are applied several times keep
// their last value.
func Apply(opts ...Option) explorer.Config {
	cfg := explorer.DefaultConfig()
	apply(&cfg, opts)
	return cfg
}

func apply(cfg *explorer.Config, opts []Option) {
	for _, opt := range opts {
		switch t := opt.(type) {
		case Options:
			apply(cfg, t)
		case ReductionOption:
			cfg.Reduction = t.Reduction
		case ExplorerOption:
			cfg.Explorer = t.Explorer
		case MaxDepthOption:
			cfg.MaxDepth = t.MaxDepth
		case BeFSThresholdOption:
			cfg.Threshold = t.Threshold
		case CheckpointIntervalOption:
			cfg.CheckpointInterval = t.Interval
		case MaxCheckpointsOption:
			cfg.MaxCheckpoints = t.Max
		case WorkersOption:
			cfg.Workers = t.N
		case CriticalTransitionOption:
			cfg.CriticalSearch = t.Enabled
		case StrategyOption:
			cfg.Strategy = t.Name
			cfg.Seed = t.Seed
		case OptimalityCheckOption:
			cfg.OptimalityCheck = true
		case DotOutputOption:
			cfg.Dot = t.W
		case TimeoutOption:
			cfg.Timeout = t.Timeout
		}
	}
}
