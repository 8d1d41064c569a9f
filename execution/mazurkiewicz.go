package execution

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
)

// AreEquivalent returns true if u and v are two linearizations of the same
// Mazurkiewicz trace.
func AreEquivalent(u, v PartialExecution) bool {
	if len(u) != len(v) {
		return false
	}
	rest := slices.Clone(v)
	for _, a := range u {
		found := -1
		for i, b := range rest {
			if b.Type() == a.Type() && b.Aid() == a.Aid() {
				found = i
				break
			}
			// b must stay before a
			if b.Depends(a) {
				return false
			}
		}
		if found < 0 {
			return false
		}
		rest = slices.Delete(rest, found, found+1)
	}
	return true
}

// MazurkiewiczTraces records the complete executions explored so far and
// detects when an execution equivalent to a recorded one is explored again.
type MazurkiewiczTraces struct {
	mu      sync.Mutex
	classes map[uint64][]PartialExecution
	count   int
}

// NewMazurkiewiczTraces returns an empty trace recorder.
func NewMazurkiewiczTraces() *MazurkiewiczTraces {
	return &MazurkiewiczTraces{classes: map[uint64][]PartialExecution{}}
}

// multisetKey hashes the transitions of w independently of their order, so
// that equivalent executions share a key.
func multisetKey(w PartialExecution) uint64 {
	keys := make([]uint64, len(w))
	buf := make([]byte, 17)
	for i, t := range w {
		binary.LittleEndian.PutUint64(buf[0:], uint64(t.Aid()))
		buf[8] = byte(t.Type())
		binary.LittleEndian.PutUint64(buf[9:], t.Object())
		keys[i] = xxhash.Sum64(buf)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	d := xxhash.New()
	for _, k := range keys {
		binary.LittleEndian.PutUint64(buf[:8], k)
		_, _ = d.Write(buf[:8])
	}
	return d.Sum64()
}

// Record adds the execution e. It returns an assertion failure if an
// equivalent execution was recorded before.
func (m *MazurkiewiczTraces) Record(e *Execution) error {
	seq := e.Transitions()
	key := multisetKey(seq)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, known := range m.classes[key] {
		if AreEquivalent(seq, known) {
			plog.Errorf("explored a sequence equivalent to an already explored one\nprevious: %s\nnew: %s", known, seq)
			return errors.AssertionFailedf("execution %s is equivalent to the already explored %s", seq, known)
		}
	}
	m.classes[key] = append(m.classes[key], seq)
	m.count++
	plog.Debugf("currently recorded %d traces", m.count)
	return nil
}

// Len returns the number of recorded classes.
func (m *MazurkiewiczTraces) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// LogData logs how many traces of each size have been recorded.
func (m *MazurkiewiczTraces) LogData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySize := map[int]int{}
	for _, bucket := range m.classes {
		for _, seq := range bucket {
			bySize[len(seq)]++
		}
	}
	sizes := make([]int, 0, len(bySize))
	for size := range bySize {
		sizes = append(sizes, size)
	}
	slices.Sort(sizes)
	plog.Infof("Mazurkiewicz stats:")
	for _, size := range sizes {
		plog.Infof("... there are %5d traces of size %5d", bySize[size], size)
	}
}
