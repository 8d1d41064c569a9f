package explorer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcheck/examples/coin"
	"simcheck/examples/counter"
	"simcheck/examples/independent"
	"simcheck/examples/philosophers"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
	"simcheck/transition"
)

func launcherOf(newApp func() remoteApp.Application) remoteApp.Launcher {
	return remoteApp.InProcess(newApp)
}

func testConfig(red reduction.Kind, kind Kind) Config {
	cfg := DefaultConfig()
	cfg.Reduction = red
	cfg.Explorer = kind
	cfg.CriticalSearch = false
	return cfg
}

func explore(t *testing.T, launcher remoteApp.Launcher, cfg Config) *Result {
	t.Helper()
	res, err := Explore(context.Background(), launcher, cfg)
	require.NoError(t, err)
	return res
}

var allReductions = []reduction.Kind{reduction.None, reduction.DPOR, reduction.SDPOR, reduction.ODPOR}

func TestIndependentActors(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return independent.New(3, 2) })

	tests := []struct {
		red    reduction.Kind
		traces uint64
	}{
		// 6! / (2! 2! 2!) interleavings
		{reduction.None, 90},
		{reduction.DPOR, 1},
		{reduction.SDPOR, 1},
		{reduction.ODPOR, 1},
	}
	for _, test := range tests {
		res := explore(t, app, testConfig(test.red, DFS))
		assert.Equal(t, record.Success, res.Status, "%s", test.red)
		assert.Equal(t, test.traces, res.Stats.Traces, "%s", test.red)
		assert.Empty(t, res.Trace.Steps, "%s", test.red)
	}
}

func TestCounterBugIsFound(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return counter.New(true) })

	for _, red := range allReductions {
		cfg := testConfig(red, DFS)
		cfg.CriticalSearch = true
		res := explore(t, app, cfg)
		require.Equal(t, record.Safety, res.Status, "%s", red)
		require.NotEmpty(t, res.Trace.Steps, "%s", red)
		last := res.Trace.Steps[len(res.Trace.Steps)-1]
		assert.Equal(t, transition.Aid(1), last.Aid, "%s", red)
		assert.Len(t, res.TextualTrace, len(res.Trace.Steps), "%s", red)

		// the producer can still write the final value before the read
		require.NotNil(t, res.Critical, "%s", red)
		assert.Equal(t, len(res.Trace.Steps)-1, res.Critical.Index, "%s", red)
		assert.Equal(t, transition.Aid(1), res.Critical.Transition.Aid(), "%s", red)
		assert.Equal(t, transition.ObjectRead, res.Critical.Transition.Type(), "%s", red)
	}
}

func TestCounterTraces(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return counter.New(false) })

	exhaustive := explore(t, app, testConfig(reduction.None, DFS))
	assert.Equal(t, record.Success, exhaustive.Status)
	// 5! / (3! 2!) interleavings
	assert.Equal(t, uint64(10), exhaustive.Stats.Traces)

	dpor := explore(t, app, testConfig(reduction.DPOR, DFS))
	assert.Equal(t, record.Success, dpor.Status)
	assert.GreaterOrEqual(t, dpor.Stats.Traces, uint64(3))
	assert.Less(t, dpor.Stats.Traces, exhaustive.Stats.Traces)

	// one trace per position of the read relative to the two writes
	cfg := testConfig(reduction.ODPOR, DFS)
	cfg.OptimalityCheck = true
	odpor := explore(t, app, cfg)
	assert.Equal(t, record.Success, odpor.Status)
	assert.Equal(t, uint64(3), odpor.Stats.Traces)
}

func TestPhilosophersDeadlock(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for _, red := range []reduction.Kind{reduction.None, reduction.DPOR} {
		deadlocking := launcherOf(func() remoteApp.Application { return philosophers.New(2, false) })
		res := explore(t, deadlocking, testConfig(red, DFS))
		assert.Equal(t, record.Deadlock, res.Status, "%s", red)
		assert.Equal(t, 3, res.Status.ExitCode())

		ordered := launcherOf(func() remoteApp.Application { return philosophers.New(2, true) })
		res = explore(t, ordered, testConfig(red, DFS))
		assert.Equal(t, record.Success, res.Status, "%s", red)
	}
}

func TestRandomVariants(t *testing.T) {
	defer leaktest.AfterTest(t)()
	flips := launcherOf(func() remoteApp.Application { return coin.New(1, false) })
	res := explore(t, flips, testConfig(reduction.None, DFS))
	assert.Equal(t, record.Success, res.Status)
	assert.Equal(t, uint64(2), res.Stats.Traces)

	tails := launcherOf(func() remoteApp.Application { return coin.New(1, true) })
	cfg := testConfig(reduction.DPOR, DFS)
	cfg.CriticalSearch = true
	res = explore(t, tails, cfg)
	require.Equal(t, record.Safety, res.Status)
	require.Len(t, res.Trace.Steps, 2)
	assert.Equal(t, coin.Tails, res.Trace.Steps[0].Times)
	// every execution is doomed once tails was drawn
	require.NotNil(t, res.Critical)
	assert.Equal(t, 0, res.Critical.Index)
	assert.Equal(t, transition.Random, res.Critical.Transition.Type())
}

func TestBestFirstExplorers(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return independent.New(3, 2) })
	for _, kind := range []Kind{BeFS, OutOfOrder} {
		for _, strategy := range []string{StrategyNone, StrategyUniform, StrategyMinMatch, StrategyMaxMatch} {
			cfg := testConfig(reduction.None, kind)
			cfg.Strategy = strategy
			cfg.Threshold = 50
			res := explore(t, app, cfg)
			assert.Equal(t, record.Success, res.Status, "%s/%s", kind, strategy)
			assert.Equal(t, uint64(90), res.Stats.Traces, "%s/%s", kind, strategy)
		}
	}

	buggy := launcherOf(func() remoteApp.Application { return counter.New(true) })
	for _, kind := range []Kind{BeFS, OutOfOrder} {
		res := explore(t, buggy, testConfig(reduction.DPOR, kind))
		assert.Equal(t, record.Safety, res.Status, "%s", kind)
	}
}

func TestParallelExplorer(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return independent.New(3, 2) })
	for _, workers := range []int{1, 4} {
		cfg := testConfig(reduction.None, Parallel)
		cfg.Workers = workers
		res := explore(t, app, cfg)
		assert.Equal(t, record.Success, res.Status, "%d workers", workers)
		assert.Equal(t, uint64(90), res.Stats.Traces, "%d workers", workers)
	}

	buggy := launcherOf(func() remoteApp.Application { return counter.New(true) })
	cfg := testConfig(reduction.DPOR, Parallel)
	cfg.CriticalSearch = true
	res := explore(t, buggy, cfg)
	require.Equal(t, record.Safety, res.Status)
	require.NotNil(t, res.Critical)
	assert.Equal(t, transition.Aid(1), res.Critical.Transition.Aid())
}

func TestMaxDepth(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return independent.New(3, 2) })

	cfg := testConfig(reduction.DPOR, DFS)
	cfg.MaxDepth = 3
	res := explore(t, app, cfg)
	assert.Equal(t, record.Success, res.Status)
	assert.True(t, res.MaxDepthReached)
	assert.False(t, res.Unsound)
	assert.True(t, errors.Is(res.Warning, ErrMaxDepthReached))
	assert.Zero(t, res.Stats.Traces)

	cfg.Reduction = reduction.ODPOR
	res = explore(t, app, cfg)
	assert.True(t, res.MaxDepthReached)
	assert.True(t, res.Unsound)
}

func TestCheckpoints(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return counter.New(false) })
	for _, interval := range []int{1, 2} {
		cfg := testConfig(reduction.None, DFS)
		cfg.CheckpointInterval = interval
		res := explore(t, app, cfg)
		assert.Equal(t, uint64(10), res.Stats.Traces, "interval %d", interval)
	}

	cfg := testConfig(reduction.None, DFS)
	cfg.CheckpointInterval = 1
	cfg.MaxCheckpoints = 2
	res := explore(t, app, cfg)
	assert.Equal(t, uint64(10), res.Stats.Traces)
	assert.NotZero(t, res.Stats.CheckpointsSkipped)
}

func TestStatesAreReleased(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for _, red := range allReductions {
		for _, kind := range []Kind{DFS, BeFS, OutOfOrder} {
			cfg := testConfig(red, kind)
			cfg.CheckpointInterval = 1
			app := launcherOf(func() remoteApp.Application { return counter.New(false) })
			x, err := newSequential(app, cfg, newStats())
			require.NoError(t, err)
			require.NoError(t, x.start(context.Background()))
			out, err := x.explore()
			require.NoError(t, err)
			require.Nil(t, out)
			remote := x.app
			x.stop()
			assert.Zero(t, x.reg.Len(), "%s/%s", red, kind)
			assert.Zero(t, remote.LiveCheckpoints(), "%s/%s", red, kind)
		}
	}
}

func TestDotOutput(t *testing.T) {
	defer leaktest.AfterTest(t)()
	var buf bytes.Buffer
	cfg := testConfig(reduction.None, DFS)
	cfg.Dot = &buf
	explore(t, launcherOf(func() remoteApp.Application { return independent.New(1, 2) }), cfg)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "digraph graphname{"))
	assert.Contains(t, out, `[label="0: ObjectWrite`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "}"))
}

func TestMetrics(t *testing.T) {
	defer leaktest.AfterTest(t)()
	res := explore(t, launcherOf(func() remoteApp.Application { return independent.New(2, 1) }), testConfig(reduction.None, DFS))
	var buf bytes.Buffer
	res.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "simcheck_traces_explored_total 2")
}

func TestInvalidConfig(t *testing.T) {
	app := launcherOf(func() remoteApp.Application { return independent.New(1, 1) })
	tests := []func(*Config){
		func(c *Config) { c.Reduction = "magic" },
		func(c *Config) { c.Explorer = "bfs" },
		func(c *Config) { c.Strategy = "best" },
		func(c *Config) { c.MaxDepth = 0 },
		func(c *Config) { c.Threshold = -1 },
		func(c *Config) { c.Explorer = Parallel; c.Workers = 0 },
	}
	for i, mutate := range tests {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := Explore(context.Background(), app, cfg)
		assert.Error(t, err, "test %d", i)
	}
}
