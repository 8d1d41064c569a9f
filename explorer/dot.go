package explorer

import (
	"fmt"
	"io"
	"sync"

	"simcheck/state"
	"simcheck/transition"
)

// dotWriter writes the explored graph in the Graphviz format. A nil
// dotWriter writes nothing.
type dotWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newDotWriter(w io.Writer) *dotWriter {
	if w == nil {
		return nil
	}
	return &dotWriter{w: w}
}

func (d *dotWriter) printf(format string, args ...any) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.w, format, args...); err != nil {
		plog.Warningf("writing the dot output: %v", err)
	}
}

func (d *dotWriter) begin() {
	d.printf("digraph graphname{\n")
}

func (d *dotWriter) edge(from, to *state.State, t *transition.Transition) {
	d.printf("\"%d\" -> \"%d\" [label=\"%d: %v\"];\n", from.Num(), to.Num(), t.Aid(), t)
}

func (d *dotWriter) end() {
	d.printf("}\n")
}
