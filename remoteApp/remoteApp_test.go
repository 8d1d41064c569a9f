package remoteApp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"simcheck/state"
	"simcheck/transition"
)

// scriptApp runs a fixed list of steps per actor.
type scriptApp struct {
	steps   map[transition.Aid][]*transition.Transition
	failOn  transition.Aid
	panicOn transition.Aid
}

func newScriptApp() *scriptApp {
	return &scriptApp{
		steps: map[transition.Aid][]*transition.Transition{
			0: {transition.New(0, 0, transition.ObjectWrite, 1, 1, 0)},
			1: {transition.New(1, 0, transition.ObjectRead, 1, 0, 0)},
		},
		failOn:  transition.NoActor,
		panicOn: transition.NoActor,
	}
}

func (a *scriptApp) Actors() []state.ActorInfo {
	aids := maps.Keys(a.steps)
	slices.Sort(aids)
	var infos []state.ActorInfo
	for _, aid := range aids {
		infos = append(infos, state.ActorInfo{Aid: aid, Enabled: true, MaxConsidered: 1, Next: a.steps[aid][0]})
	}
	return infos
}

func (a *scriptApp) Execute(aid transition.Aid, times int) (*transition.Transition, error) {
	if aid == a.panicOn {
		panic("boom")
	}
	if aid == a.failOn {
		return nil, errors.New("assertion failed")
	}
	steps, ok := a.steps[aid]
	if !ok {
		return nil, errors.Newf("no actor %d", aid)
	}
	if len(steps) == 1 {
		delete(a.steps, aid)
	} else {
		a.steps[aid] = steps[1:]
	}
	return steps[0], nil
}

func (a *scriptApp) Clone() Application {
	c := *a
	c.steps = maps.Clone(a.steps)
	return &c
}

func TestMessageCodec(t *testing.T) {
	size, err := MessageSize(MsgActorProbe)
	require.NoError(t, err)
	assert.Equal(t, 4+transition.RecordSize, size)

	data, err := Encode(&SimcallExecute{Type: MsgSimcallExecute, Aid: 3, Times: 2})
	require.NoError(t, err)
	assert.Len(t, data, 12)
	m, err := Decode(data)
	require.NoError(t, err)
	msg, ok := m.(*SimcallExecute)
	require.True(t, ok)
	assert.Equal(t, int32(3), msg.Aid)
	assert.Equal(t, int32(2), msg.Times)

	_, err = Decode(data[:8])
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = Decode([]byte{200, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

// exercise runs the usual request sequence against app.
func exercise(t *testing.T, app *RemoteApp) {
	infos, err := app.GetActorsStatus()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, transition.ObjectWrite, infos[0].Next.Type())
	assert.True(t, infos[1].Enabled)

	cp, err := app.Fork()
	require.NoError(t, err)
	assert.Equal(t, 1, app.LiveCheckpoints())

	tr, err := app.ExecuteSimcall(0, 0)
	require.NoError(t, err)
	assert.Equal(t, transition.ObjectWrite, tr.Type())
	infos, err = app.GetActorsStatus()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	require.NoError(t, app.Restore(cp))
	infos, err = app.GetActorsStatus()
	require.NoError(t, err)
	assert.Len(t, infos, 2)
	deadlock, err := app.CheckDeadlock()
	require.NoError(t, err)
	assert.False(t, deadlock)

	require.NoError(t, app.Finalize(cp))
	assert.Equal(t, 0, app.LiveCheckpoints())
	require.NoError(t, app.Shutdown())
}

func TestInProcessRoundTrip(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app, err := InProcess(func() Application { return newScriptApp() }).Launch(context.Background())
	require.NoError(t, err)
	exercise(t, app)
}

func TestAssertionFailureKeepsInstanceUsable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app, err := InProcess(func() Application {
		a := newScriptApp()
		a.failOn = 1
		return a
	}).Launch(context.Background())
	require.NoError(t, err)
	defer app.Shutdown()

	_, err = app.ExecuteSimcall(1, 0)
	assert.ErrorIs(t, err, ErrAssertionFailed)
	_, err = app.ExecuteSimcall(0, 0)
	assert.NoError(t, err)
}

func TestPanicIsReportedAsCrash(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app, err := InProcess(func() Application {
		a := newScriptApp()
		a.panicOn = 0
		return a
	}).Launch(context.Background())
	require.NoError(t, err)
	defer app.Close()

	_, err = app.ExecuteSimcall(0, 0)
	assert.ErrorIs(t, err, ErrAppCrashed)
}

func TestTimeout(t *testing.T) {
	checker, other := NewPipe()
	defer other.Close()
	app := NewRemoteApp(checker, nil)
	app.SetTimeout(10 * time.Millisecond)
	_, err := app.CheckDeadlock()
	assert.ErrorIs(t, err, ErrTimeout)
	require.NoError(t, app.Close())
}

func TestReplayDetectsDivergence(t *testing.T) {
	defer leaktest.AfterTest(t)()
	app, err := InProcess(func() Application { return newScriptApp() }).Launch(context.Background())
	require.NoError(t, err)
	defer app.Shutdown()

	err = app.Replay([]*transition.Transition{transition.New(0, 0, transition.ObjectWrite, 1, 2, 0)})
	assert.ErrorIs(t, err, ErrReplayDiverged)
	assert.Equal(t, 1, app.Replays())
}

func TestConnChannel(t *testing.T) {
	defer leaktest.AfterTest(t)()
	client, server := net.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- ServeConn(context.Background(), server, newScriptApp())
	}()
	exercise(t, NewRemoteApp(NewConnChannel(client), nil))
	assert.NoError(t, <-served)
}

func TestGRPCChannel(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(func() Application { return newScriptApp() })
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	launcher := GRPC(conn)
	app, err := launcher.Launch(ctx)
	require.NoError(t, err)
	exercise(t, app)

	// every stream is its own instance
	other, err := launcher.Launch(ctx)
	require.NoError(t, err)
	_, err = other.ExecuteSimcall(1, 0)
	require.NoError(t, err)
	infos, err := other.GetActorsStatus()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
	require.NoError(t, other.Shutdown())
}
