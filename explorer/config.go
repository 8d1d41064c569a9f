package explorer

import (
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"simcheck/execution"
	"simcheck/reduction"
	"simcheck/remoteApp"
)

// Kind names an exploration algorithm.
type Kind string

const (
	DFS        Kind = "dfs"
	BeFS       Kind = "befs"
	OutOfOrder Kind = "ooo"
	Parallel   Kind = "parallel"
)

// ErrUnknownExplorer is returned for an unknown explorer name.
var ErrUnknownExplorer = errors.New("explorer: unknown explorer")

// ParseKind returns the explorer named name.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(name)); k {
	case DFS, BeFS, OutOfOrder, Parallel:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownExplorer, "%q", name)
}

// Config holds the parameters of an exploration.
type Config struct {
	Reduction reduction.Kind
	Explorer  Kind
	// MaxDepth is the number of transitions after which a branch is cut.
	MaxDepth int
	// Threshold, in percent, makes the best-first explorer postpone the
	// current state when its value scaled by Threshold is worse than the
	// value of the best opened state. 0 disables it.
	Threshold int
	// CheckpointInterval asks the application for a checkpoint every
	// CheckpointInterval created states. 0 disables checkpoints besides the
	// one of the initial state.
	CheckpointInterval int
	// MaxCheckpoints bounds the number of live checkpoints.
	MaxCheckpoints int
	Workers        int
	CriticalSearch bool
	// Strategy values the opened states of the best-first explorer.
	Strategy string
	// Seed feeds the uniform strategy.
	Seed int64
	// OptimalityCheck records every explored trace and fails when two of
	// them are equivalent. Only meaningful with ODPOR under DFS: branches
	// explored side by side can reach the same trace.
	OptimalityCheck bool
	// Dot receives the explored graph in the Graphviz format if not nil.
	Dot io.Writer
	// OnExecution, if not nil, is called with every complete execution.
	// The parallel explorer calls it from a single goroutine.
	OnExecution func(execution.PartialExecution)
	Timeout     time.Duration
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Reduction:      reduction.DPOR,
		Explorer:       DFS,
		MaxDepth:       1000,
		MaxCheckpoints: 1024,
		Workers:        runtime.GOMAXPROCS(0),
		CriticalSearch: true,
		Strategy:       StrategyNone,
		Timeout:        remoteApp.DefaultTimeout,
	}
}

func (c Config) validate() error {
	if _, err := reduction.ParseKind(string(c.Reduction)); err != nil {
		return err
	}
	if _, err := ParseKind(string(c.Explorer)); err != nil {
		return err
	}
	if _, err := NewStrategy(c.Strategy, c.Seed); err != nil {
		return err
	}
	switch {
	case c.MaxDepth <= 0:
		return errors.Newf("explorer: max depth must be positive, got %d", c.MaxDepth)
	case c.Threshold < 0:
		return errors.Newf("explorer: threshold must not be negative, got %d", c.Threshold)
	case c.CheckpointInterval < 0:
		return errors.Newf("explorer: checkpoint interval must not be negative, got %d", c.CheckpointInterval)
	case c.MaxCheckpoints <= 0:
		return errors.Newf("explorer: max checkpoints must be positive, got %d", c.MaxCheckpoints)
	case c.Explorer == Parallel && c.Workers <= 0:
		return errors.Newf("explorer: at least one worker is needed, got %d", c.Workers)
	}
	return nil
}
