package explorer

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Stats counts the work done by an exploration. Counters can be updated
// from several goroutines.
type Stats struct {
	set                *metrics.Set
	states             *metrics.Counter
	traces             *metrics.Counter
	replays            *metrics.Counter
	backtracks         *metrics.Counter
	checkpointsSkipped *metrics.Counter
}

func newStats() *Stats {
	set := metrics.NewSet()
	return &Stats{
		set:                set,
		states:             set.NewCounter("simcheck_states_expanded_total"),
		traces:             set.NewCounter("simcheck_traces_explored_total"),
		replays:            set.NewCounter("simcheck_transition_replays_total"),
		backtracks:         set.NewCounter("simcheck_backtracks_total"),
		checkpointsSkipped: set.NewCounter("simcheck_checkpoints_skipped_total"),
	}
}

// Snapshot is the value of the counters at one point in time.
type Snapshot struct {
	States             uint64
	Traces             uint64
	Replays            uint64
	Backtracks         uint64
	CheckpointsSkipped uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		States:             s.states.Get(),
		Traces:             s.traces.Get(),
		Replays:            s.replays.Get(),
		Backtracks:         s.backtracks.Get(),
		CheckpointsSkipped: s.checkpointsSkipped.Get(),
	}
}

// WritePrometheus writes the counters in the Prometheus text format.
func (s *Stats) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}

func (s *Stats) log(prefix string) {
	snap := s.Snapshot()
	plog.Infof("%s: %d states expanded, %d traces explored, %d transitions replayed, %d backtracks",
		prefix, snap.States, snap.Traces, snap.Replays, snap.Backtracks)
	if snap.CheckpointsSkipped > 0 {
		plog.Infof("%s: %d checkpoints skipped", prefix, snap.CheckpointsSkipped)
	}
}
