package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcheck/explorer"
	"simcheck/reduction"
)

func TestApplyDefaults(t *testing.T) {
	assert.Equal(t, explorer.DefaultConfig(), Apply())
}

func TestApply(t *testing.T) {
	var dot bytes.Buffer
	cfg := Apply(
		ReductionOption{Reduction: reduction.ODPOR},
		ExplorerOption{Explorer: explorer.BeFS},
		MaxDepthOption{MaxDepth: 10},
		MaxDepthOption{MaxDepth: 20},
		BeFSThresholdOption{Threshold: 80},
		Options{
			CheckpointIntervalOption{Interval: 5},
			MaxCheckpointsOption{Max: 7},
		},
		WorkersOption{N: 3},
		CriticalTransitionOption{Enabled: false},
		StrategyOption{Name: explorer.StrategyUniform, Seed: 42},
		OptimalityCheckOption{},
		DotOutputOption{W: &dot},
		TimeoutOption{Timeout: time.Second},
	)
	assert.Equal(t, reduction.ODPOR, cfg.Reduction)
	assert.Equal(t, explorer.BeFS, cfg.Explorer)
	assert.Equal(t, 20, cfg.MaxDepth, "the last option wins")
	assert.Equal(t, 80, cfg.Threshold)
	assert.Equal(t, 5, cfg.CheckpointInterval)
	assert.Equal(t, 7, cfg.MaxCheckpoints)
	assert.Equal(t, 3, cfg.Workers)
	assert.False(t, cfg.CriticalSearch)
	assert.Equal(t, explorer.StrategyUniform, cfg.Strategy)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.True(t, cfg.OptimalityCheck)
	assert.Same(t, &dot, cfg.Dot)
	assert.Equal(t, time.Second, cfg.Timeout)
}

const sample = `
reduction: sdpor
explorer: parallel
max_depth: 50
workers: 2
critical_transition: false
timeout: 250ms
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	f, err := Load(path)
	require.NoError(t, err)
	opts, err := f.Options()
	require.NoError(t, err)

	cfg := Apply(opts...)
	assert.Equal(t, reduction.SDPOR, cfg.Reduction)
	assert.Equal(t, explorer.Parallel, cfg.Explorer)
	assert.Equal(t, 50, cfg.MaxDepth)
	assert.Equal(t, 2, cfg.Workers)
	assert.False(t, cfg.CriticalSearch)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, explorer.DefaultConfig().MaxCheckpoints, cfg.MaxCheckpoints)
}

func TestParseErrors(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	opts, err := f.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)

	_, err = Parse([]byte("max_dept: 3\n"))
	assert.Error(t, err, "unknown keys are rejected")

	for _, text := range []string{"reduction: magic\n", "explorer: bfs\n", "timeout: soon\n"} {
		f, err := Parse([]byte(text))
		require.NoError(t, err)
		_, err = f.Options()
		assert.Error(t, err, text)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
