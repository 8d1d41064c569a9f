package explorer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcheck/examples/model"
	"simcheck/examples/philosophers"
	"simcheck/execution"
	"simcheck/record"
	"simcheck/reduction"
	"simcheck/remoteApp"
)

// crossedWrites has two actors writing one object and reading the other,
// and a third one writing both.
func crossedWrites() *model.Program {
	const x, y = 1, 2
	return model.New(
		model.Script(model.Write(x, 1), model.Read(y, nil)),
		model.Script(model.Write(y, 1), model.Read(x, nil)),
		model.Script(model.Write(x, 2), model.Write(y, 2)),
	)
}

// classOf names the Mazurkiewicz trace of w by its events, each one being
// the rank of the step within its actor, and the order of its dependent
// pairs.
func classOf(w execution.PartialExecution) string {
	ranks := map[int]int{}
	events := make([]string, len(w))
	for i, t := range w {
		aid := int(t.Aid())
		events[i] = fmt.Sprintf("%d.%d", aid, ranks[aid])
		ranks[aid]++
	}
	ordered := []string{}
	for i := range w {
		for j := i + 1; j < len(w); j++ {
			if w[i].Depends(w[j]) {
				ordered = append(ordered, events[i]+"<"+events[j])
			}
		}
	}
	sorted := append([]string{}, events...)
	sort.Strings(sorted)
	sort.Strings(ordered)
	return strings.Join(sorted, ",") + "|" + strings.Join(ordered, ",")
}

// everyClass runs every interleaving of p to its end and returns the classes
// of the complete ones.
func everyClass(t *testing.T, p *model.Program) map[string]bool {
	classes := map[string]bool{}
	var walk func(p *model.Program, w execution.PartialExecution)
	walk = func(p *model.Program, w execution.PartialExecution) {
		infos := p.Actors()
		if len(infos) == 0 {
			classes[classOf(w)] = true
			return
		}
		for _, info := range infos {
			if !info.Enabled {
				continue
			}
			for times := 0; times < info.MaxConsidered; times++ {
				next := p.Clone().(*model.Program)
				tr, err := next.Execute(info.Aid, times)
				require.NoError(t, err)
				walk(next, append(w[:len(w):len(w)], tr))
			}
		}
	}
	walk(p, nil)
	return classes
}

func TestEveryInterleavingClassIsExplored(t *testing.T) {
	defer leaktest.AfterTest(t)()
	models := []struct {
		name    string
		newApp  func() *model.Program
		classes int
		// exhaustive exploration is too long for the best-first pools
		skipNone bool
	}{
		{"crossed writes", crossedWrites, 22, false},
		{"ordered philosophers", func() *model.Program { return philosophers.New(3, true) }, 6, true},
	}
	explorers := []struct {
		kind    Kind
		workers int
	}{
		{DFS, 0},
		{BeFS, 0},
		{OutOfOrder, 0},
		{Parallel, 1},
		{Parallel, 4},
	}
	for _, m := range models {
		classes := everyClass(t, m.newApp())
		require.Len(t, classes, m.classes, m.name)
		app := launcherOf(func() remoteApp.Application { return m.newApp() })
		for _, red := range allReductions {
			if red == reduction.None && m.skipNone {
				continue
			}
			for _, x := range explorers {
				name := fmt.Sprintf("%s/%s/%s", m.name, red, x.kind)
				cfg := testConfig(red, x.kind)
				if x.kind == Parallel {
					cfg.Workers = x.workers
					name = fmt.Sprintf("%s/%d", name, x.workers)
				}
				var mu sync.Mutex
				explored := map[string]bool{}
				cfg.OnExecution = func(w execution.PartialExecution) {
					mu.Lock()
					defer mu.Unlock()
					explored[classOf(w)] = true
				}
				res := explore(t, app, cfg)
				require.Equal(t, record.Success, res.Status, name)
				mu.Lock()
				assert.Equal(t, classes, explored, name)
				mu.Unlock()
			}
		}
	}
}

func TestDporReversesRacesWithSleepingChoices(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := launcherOf(func() remoteApp.Application { return crossedWrites() })
	for _, kind := range []Kind{DFS, BeFS, OutOfOrder} {
		res := explore(t, app, testConfig(reduction.DPOR, kind))
		assert.Equal(t, record.Success, res.Status, "%s", kind)
		// one complete execution per class
		assert.Equal(t, uint64(22), res.Stats.Traces, "%s", kind)
	}
}

func TestOdporOutOfDepthFirstOrder(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tests := []struct {
		newApp func() *model.Program
		traces uint64
	}{
		{crossedWrites, 22},
		{func() *model.Program { return philosophers.New(3, true) }, 6},
	}
	for _, test := range tests {
		app := launcherOf(func() remoteApp.Application { return test.newApp() })
		for _, kind := range []Kind{DFS, BeFS, OutOfOrder} {
			cfg := testConfig(reduction.ODPOR, kind)
			cfg.OptimalityCheck = true
			res := explore(t, app, cfg)
			require.Equal(t, record.Success, res.Status, "%s", kind)
			if kind == DFS {
				assert.Equal(t, test.traces, res.Stats.Traces, "%s", kind)
				continue
			}
			// a trace can be reached by two branches explored side by side
			assert.GreaterOrEqual(t, res.Stats.Traces, test.traces, "%s", kind)
		}
	}
}
