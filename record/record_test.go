package record

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcheck/examples/counter"
	"simcheck/examples/philosophers"
	"simcheck/remoteApp"
	"simcheck/transition"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text  string
		steps []Step
		err   bool
	}{
		{"", nil, false},
		{"0/0;1/2", []Step{{Aid: 0, Times: 0}, {Aid: 1, Times: 2}}, false},
		{" 3 ; 4/1 ", []Step{{Aid: 3, Times: 0}, {Aid: 4, Times: 1}}, false},
		{"a/0", nil, true},
		{"-1/0", nil, true},
		{"1/x", nil, true},
		{"1/-2", nil, true},
		{"1;;2", nil, true},
	}
	for i, test := range tests {
		r, err := Parse(test.text)
		if test.err {
			assert.True(t, errors.Is(err, ErrInvalidTrace), "test %d", i)
			continue
		}
		require.NoError(t, err, "test %d", i)
		assert.Equal(t, test.steps, r.Steps, "test %d", i)
	}
}

func TestStringRoundTrip(t *testing.T) {
	w := []*transition.Transition{
		transition.New(0, 0, transition.ObjectWrite, 1, 1, 0),
		transition.New(1, 1, transition.Random, 2, 1, 0),
	}
	r := FromTransitions(uuid.New(), Safety, w)
	assert.Equal(t, "0/0;1/1", r.String())
	assert.Equal(t, w, r.Transitions())

	parsed, err := Parse(r.String())
	require.NoError(t, err)
	assert.Nil(t, parsed.Transitions(), "parsed steps carry no transition")
	assert.Equal(t, r.String(), parsed.String())
}

func TestBinary(t *testing.T) {
	w := []*transition.Transition{
		transition.New(0, 0, transition.MutexAsyncLock, 1, 0, -1),
		transition.New(2, 3, transition.Random, 9, 3, 0),
	}
	r := FromTransitions(uuid.New(), Deadlock, w)
	data, err := r.MarshalBinary()
	require.NoError(t, err)

	var decoded RecordTrace
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, r.Session, decoded.Session)
	assert.Equal(t, Deadlock, decoded.Status)
	require.Len(t, decoded.Steps, 2)
	for i := range w {
		assert.Equal(t, r.Steps[i].Aid, decoded.Steps[i].Aid)
		assert.Equal(t, r.Steps[i].Times, decoded.Steps[i].Times)
		assert.True(t, w[i].Equal(decoded.Steps[i].Transition), "step %d", i)
	}

	// parsed traces have no transitions
	parsed, err := Parse("1/0")
	require.NoError(t, err)
	data, err = parsed.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, []Step{{Aid: 1}}, decoded.Steps)

	assert.Error(t, decoded.UnmarshalBinary([]byte{0xff}))
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, Success.ExitCode())
	assert.Equal(t, 1, Safety.ExitCode())
	assert.Equal(t, 3, Deadlock.ExitCode())
	assert.Equal(t, 4, ProgramCrash.ExitCode())
	assert.Equal(t, "deadlock", Deadlock.String())
	assert.Equal(t, 2, ExitStatus(42).ExitCode())
}

func replayText(t *testing.T, launcher remoteApp.Launcher, text string) (ExitStatus, error) {
	t.Helper()
	r, err := Parse(text)
	require.NoError(t, err)
	return Replay(context.Background(), launcher, r)
}

func TestReplay(t *testing.T) {
	defer leaktest.AfterTest(t)()
	buggy := remoteApp.InProcess(func() remoteApp.Application { return counter.New(true) })

	// the consumer reads between the two writes
	status, err := replayText(t, buggy, "0;1;1")
	require.NoError(t, err)
	assert.Equal(t, Safety, status)

	status, err = replayText(t, buggy, "0;0;1;1")
	require.NoError(t, err)
	assert.Equal(t, Success, status)

	dining := remoteApp.InProcess(func() remoteApp.Application { return philosophers.New(2, false) })
	status, err = replayText(t, dining, "0;0;1;1;0;1")
	require.NoError(t, err)
	assert.Equal(t, Deadlock, status)
}

func TestReplayDivergence(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app := remoteApp.InProcess(func() remoteApp.Application { return counter.New(false) })
	r := FromTransitions(uuid.New(), Success, []*transition.Transition{
		transition.New(0, 0, transition.ObjectWrite, 1, 2, 0),
	})
	_, err := Replay(context.Background(), app, r)
	assert.True(t, errors.Is(err, ErrReplayDiverged))
}
