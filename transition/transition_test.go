package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type history []*Transition

func (h history) Len() int                       { return len(h) }
func (h history) TransitionAt(i int) *Transition { return h[i] }

func allTypesFor(aid Aid, object uint64) []*Transition {
	out := []*Transition{}
	for typ := Unknown; typ < numTypes; typ++ {
		out = append(out, New(aid, 0, typ, object, 0, 0))
	}
	return out
}

func TestDependsIsSymmetricAndConsistent(t *testing.T) {
	left := append(allTypesFor(0, 1), allTypesFor(0, 2)...)
	right := append(allTypesFor(1, 1), allTypesFor(1, 2)...)
	for _, a := range left {
		for _, b := range right {
			if a.Depends(b) != b.Depends(a) {
				t.Errorf("Dependency should be symmetric. %v and %v", a, b)
			}
			if a.Depends(b) == a.Independent(b) {
				t.Errorf("Depends and Independent should never agree. %v and %v", a, b)
			}
			if a.CanBeCoEnabled(b) != b.CanBeCoEnabled(a) {
				t.Errorf("Co-enabledness should be symmetric. %v and %v", a, b)
			}
		}
	}
}

func TestSameActorAlwaysDependent(t *testing.T) {
	for _, a := range allTypesFor(3, 1) {
		for _, b := range allTypesFor(3, 7) {
			assert.True(t, a.Depends(b), "%v and %v are executed by the same actor", a, b)
			assert.False(t, a.CanBeCoEnabled(b))
		}
	}
}

func TestObjectAccessDependency(t *testing.T) {
	r0 := New(0, 0, ObjectRead, 1, 0, 0)
	r1 := New(1, 0, ObjectRead, 1, 0, 0)
	w1 := New(1, 0, ObjectWrite, 1, 5, 0)
	w1Other := New(1, 0, ObjectWrite, 2, 5, 0)

	assert.False(t, r0.Depends(r1), "two reads are independent")
	assert.True(t, r0.Depends(w1), "read and write on the same object are dependent")
	assert.False(t, r0.Depends(w1Other), "accesses to distinct objects are independent")
	assert.False(t, New(0, 0, Random, 0, 0, 0).Depends(w1))
	assert.False(t, New(0, 0, ActorSleep, 0, 0, 0).Depends(w1))
	assert.True(t, NewUnknown(0).Depends(w1))
}

func TestMutexDependency(t *testing.T) {
	lock := New(0, 0, MutexAsyncLock, 1, 0, 0)
	lock2 := New(1, 0, MutexAsyncLock, 1, 0, 0)
	unlock := New(1, 0, MutexUnlock, 1, 0, 0)
	wait := New(1, 0, MutexWait, 1, 0, 0)
	otherLock := New(1, 0, MutexAsyncLock, 2, 0, 0)

	assert.False(t, lock.Depends(unlock))
	assert.False(t, lock.Depends(wait))
	assert.True(t, lock.Depends(lock2))
	assert.False(t, lock.Depends(otherLock))
	assert.True(t, New(0, 0, MutexUnlock, 1, 0, 0).Depends(wait))
	assert.False(t, New(0, 0, MutexUnlock, 1, 0, 0).Depends(unlock))
	assert.False(t, New(0, 0, MutexUnlock, 1, 0, 0).CanBeCoEnabled(wait))
	assert.True(t, lock.CanBeCoEnabled(wait))
}

func TestJoinDependsOnTarget(t *testing.T) {
	join := New(0, 0, ActorJoin, 0, 2, 0)
	target := New(2, 0, ActorSleep, 0, 0, 0)
	other := New(1, 0, ActorSleep, 0, 0, 0)

	assert.True(t, join.Depends(target))
	assert.True(t, target.Depends(join))
	assert.False(t, join.Depends(other))
	assert.False(t, target.ReversibleRace(join, history{target, join}, 0, 1))
}

func TestReversibleRace(t *testing.T) {
	unlock := New(0, 0, MutexUnlock, 1, 0, 0)
	wait := New(1, 0, MutexWait, 1, 0, 0)
	lock := New(1, 0, MutexAsyncLock, 1, 0, 0)
	h := history{unlock, wait}
	assert.False(t, unlock.ReversibleRace(wait, h, 0, 1), "the unlock enabled the wait")
	assert.True(t, New(0, 0, MutexAsyncLock, 1, 0, 0).ReversibleRace(lock, h, 0, 1))

	bLock := New(0, 0, BarrierAsyncLock, 1, 0, 0)
	bWait := New(1, 0, BarrierWait, 1, 0, 0)
	assert.False(t, bLock.ReversibleRace(bWait, history{bLock, bWait}, 0, 1))

	w := New(0, 0, ObjectWrite, 1, 1, 0)
	r := New(1, 0, ObjectRead, 1, 1, 0)
	assert.True(t, w.ReversibleRace(r, history{w, r}, 0, 1))
}

func TestSemaphoreWaitReversibility(t *testing.T) {
	// Semaphore of capacity 1: actor 0 holds it, actor 1 waits for the unlock.
	lock0 := New(0, 0, SemAsyncLock, 1, 0, 0)
	lock1 := New(1, 0, SemAsyncLock, 1, -1, 0)
	unlock0 := New(0, 0, SemUnlock, 1, 0, 0)
	wait1 := New(1, 0, SemWait, 1, 0, 1)
	h := history{lock0, lock1, unlock0, wait1}
	assert.False(t, unlock0.ReversibleRace(wait1, h, 2, 3), "the wait could not fire without the unlock")

	// Plenty of capacity: the wait does not need the unlock.
	lock0 = New(0, 0, SemAsyncLock, 1, 4, 0)
	lock1 = New(1, 0, SemAsyncLock, 1, 3, 0)
	unlock0 = New(0, 0, SemUnlock, 1, 4, 0)
	h = history{lock0, lock1, unlock0, wait1}
	assert.True(t, unlock0.ReversibleRace(wait1, h, 2, 3))
}

func TestRecordRoundTrip(t *testing.T) {
	orig := New(4, 2, SemWait, 9, -3, 1)
	data, err := orig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, RecordSize)

	var decoded Transition
	require.NoError(t, decoded.UnmarshalBinary(data))
	if !orig.Equal(&decoded) {
		t.Errorf("Expected decoded transition to be %v. Got: %v", orig, &decoded)
	}

	data[8] = 200
	require.ErrorIs(t, decoded.UnmarshalBinary(data), ErrInvalidRecord)
}
