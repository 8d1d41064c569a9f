package simcheck

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcheck/examples/counter"
	"simcheck/examples/independent"
	"simcheck/examples/philosophers"
	"simcheck/explorer"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
)

func TestPrepareExploration(t *testing.T) {
	e := PrepareInProcess(
		func() remoteApp.Application { return independent.New(1, 1) },
		WithReduction(reduction.ODPOR),
		BestFirst(explorer.StrategyMinMatch, 70),
		Checkpoints(10, 100),
		MaxDepth(40),
	)
	cfg := e.Config()
	assert.Equal(t, reduction.ODPOR, cfg.Reduction)
	assert.Equal(t, explorer.BeFS, cfg.Explorer)
	assert.Equal(t, explorer.StrategyMinMatch, cfg.Strategy)
	assert.Equal(t, 70, cfg.Threshold)
	assert.Equal(t, 10, cfg.CheckpointInterval)
	assert.Equal(t, 100, cfg.MaxCheckpoints)
	assert.Equal(t, 40, cfg.MaxDepth)

	cfg = PrepareInProcess(nil, Parallel(3), OutOfOrder()).Config()
	assert.Equal(t, explorer.OutOfOrder, cfg.Explorer)
	assert.Equal(t, 3, cfg.Workers)
}

func TestNoBug(t *testing.T) {
	defer leaktest.AfterTest(t)()
	resp, err := PrepareInProcess(
		func() remoteApp.Application { return independent.New(2, 2) },
		WithReduction(reduction.DPOR),
	).Run(context.Background())
	require.NoError(t, err)

	ok, desc := resp.Response()
	assert.True(t, ok)
	assert.Equal(t, "No property violation found. 1 traces explored.", desc)
	assert.Empty(t, resp.Export().Steps)
	assert.Equal(t, 0, resp.ExitCode())
}

func TestBugIsReplayable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	factory := func() remoteApp.Application { return counter.New(true) }
	resp, err := PrepareInProcess(factory, WithReduction(reduction.ODPOR)).Run(context.Background())
	require.NoError(t, err)

	ok, desc := resp.Response()
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(desc, "Safety violation found."), desc)
	assert.Contains(t, desc, "<- critical transition")
	assert.Contains(t, desc, resp.Export().String())
	assert.Equal(t, 1, resp.ExitCode())

	status, err := record.Replay(context.Background(), remoteApp.InProcess(factory), resp.Export())
	require.NoError(t, err)
	assert.Equal(t, record.Safety, status)

	var buf bytes.Buffer
	_, err = resp.WriteTo(&buf)
	require.NoError(t, err)
	var decoded record.RecordTrace
	require.NoError(t, decoded.UnmarshalBinary(buf.Bytes()))
	assert.Equal(t, resp.Session, decoded.Session)
	assert.Equal(t, resp.Export().String(), decoded.String())
}

func TestDeadlockResponse(t *testing.T) {
	defer leaktest.AfterTest(t)()
	var dot bytes.Buffer
	resp, err := PrepareInProcess(
		func() remoteApp.Application { return philosophers.New(2, false) },
		WithReduction(reduction.None),
		SkipCriticalTransition(),
		ExportDot(&dot),
	).Run(context.Background())
	require.NoError(t, err)

	ok, desc := resp.Response()
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(desc, "Deadlock found."), desc)
	assert.NotContains(t, desc, "critical transition")
	assert.Equal(t, 3, resp.ExitCode())
	assert.NotZero(t, dot.Len())
}

func TestInvalidOptions(t *testing.T) {
	_, err := PrepareInProcess(
		func() remoteApp.Application { return independent.New(1, 1) },
		MaxDepth(-1),
	).Run(context.Background())
	assert.Error(t, err)
}
