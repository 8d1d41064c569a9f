package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	exitCode = 0
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestModels(t *testing.T) {
	out := execute(t, "models")
	assert.Contains(t, strings.Split(strings.TrimSpace(out), "\n"), "counter")
}

func TestExploreAndReplay(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.bin")
	dot := filepath.Join(dir, "graph.dot")

	out := execute(t, "explore", "--model", "counter", "--reduction", "odpor",
		"--trace-out", trace, "--dot", dot, "--metrics")
	assert.Contains(t, out, "Safety violation found.")
	assert.Contains(t, out, "simcheck_traces_explored_total")
	assert.Equal(t, 1, exitCode)

	out = execute(t, "replay", "--model", "counter", "--trace-file", trace)
	assert.Contains(t, out, "safety violation")
	assert.Equal(t, 1, exitCode)

	out = execute(t, "replay", "--model", "counter-fixed", "--trace-file", "", "--trace", "0;0;0;1;1")
	assert.Contains(t, out, "Replayed 5 steps: success")
	assert.Equal(t, 0, exitCode)
}

func TestLauncherFlags(t *testing.T) {
	modelName, remote = "", ""
	_, _, err := newLauncher()
	assert.Error(t, err)

	modelName, remote = "counter", "127.0.0.1:1"
	_, _, err = newLauncher()
	assert.Error(t, err)

	modelName, remote = "nope", ""
	_, _, err = newLauncher()
	assert.Error(t, err)
	modelName = ""
}
