package remoteApp

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"simcheck/state"
	"simcheck/transition"
)

// DefaultTimeout bounds every round trip with the application.
const DefaultTimeout = 10 * time.Second

// ErrReplayDiverged is returned when replaying a transition makes the
// application run something else than what was recorded.
var ErrReplayDiverged = errors.New("remoteApp: replay diverged")

// RemoteApp is the checker side of the channel to one application instance.
// It is not safe for concurrent use.
type RemoteApp struct {
	ch          Channel
	closer      func() error
	timeout     time.Duration
	replays     int
	checkpoints int
	closed      bool
}

// NewRemoteApp returns the client of the application reached through ch.
// closer, if not nil, is called once the channel was closed.
func NewRemoteApp(ch Channel, closer func() error) *RemoteApp {
	return &RemoteApp{ch: ch, closer: closer, timeout: DefaultTimeout}
}

// SetTimeout sets the bound of every subsequent round trip.
func (r *RemoteApp) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Replays returns how many transitions were executed by Replay.
func (r *RemoteApp) Replays() int {
	return r.replays
}

// LiveCheckpoints returns how many checkpoints were forked and not finalized.
func (r *RemoteApp) LiveCheckpoints() int {
	return r.checkpoints
}

func (r *RemoteApp) send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := r.ch.Send(data); err != nil {
		return errors.Wrapf(err, "sending %v", m.MessageType())
	}
	return nil
}

func receive[M Message](r *RemoteApp, want MessageType) (M, error) {
	var zero M
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	data, err := r.ch.Receive(ctx)
	if err != nil {
		return zero, errors.Wrapf(err, "waiting for %v", want)
	}
	m, err := Decode(data)
	if err != nil {
		return zero, err
	}
	if m.MessageType() == MsgAssertionFailed {
		return zero, ErrAssertionFailed
	}
	if m.MessageType() != want {
		return zero, errors.Wrapf(ErrInvalidMessage, "got %v, want %v", m.MessageType(), want)
	}
	reply, ok := m.(M)
	if !ok {
		return zero, errors.Wrapf(ErrInvalidMessage, "unexpected payload %T for %v", m, want)
	}
	return reply, nil
}

// Fork saves the current application state into a new checkpoint.
func (r *RemoteApp) Fork() (uint32, error) {
	if err := r.send(&Simple{Type: MsgFork}); err != nil {
		return 0, err
	}
	reply, err := receive[*ForkReply](r, MsgForkReply)
	if err != nil {
		return 0, err
	}
	r.checkpoints++
	return reply.Checkpoint, nil
}

// Restore rewinds the application to checkpoint cp.
func (r *RemoteApp) Restore(cp uint32) error {
	return r.send(&Restore{Type: MsgRestore, Checkpoint: cp})
}

// Finalize releases checkpoint cp.
func (r *RemoteApp) Finalize(cp uint32) error {
	if err := r.send(&Finalize{Type: MsgFinalize, Checkpoint: cp}); err != nil {
		return err
	}
	if _, err := receive[*Simple](r, MsgFinalizeReply); err != nil {
		return err
	}
	if cp != CurrentInstance {
		r.checkpoints--
	}
	return nil
}

// ExecuteSimcall runs one step of actor aid, which was already considered
// times times at the current state, and returns what the actor did.
// ErrAssertionFailed is returned when the step failed an assertion.
func (r *RemoteApp) ExecuteSimcall(aid transition.Aid, times int) (*transition.Transition, error) {
	if err := r.send(&SimcallExecute{Type: MsgSimcallExecute, Aid: int32(aid), Times: int32(times)}); err != nil {
		return nil, err
	}
	reply, err := receive[*SimcallExecuteReply](r, MsgSimcallExecuteReply)
	if err != nil {
		return nil, err
	}
	return transition.FromRecord(reply.Transition)
}

// Replay executes w from the current application state and checks that every
// step does what was recorded.
func (r *RemoteApp) Replay(w []*transition.Transition) error {
	for i, t := range w {
		got, err := r.ExecuteSimcall(t.Aid(), t.Times())
		if err != nil {
			return errors.Wrapf(err, "replaying step %d", i)
		}
		r.replays++
		if !got.Equal(t) {
			return errors.Wrapf(ErrReplayDiverged, "step %d: got %v, want %v", i, got, t)
		}
	}
	return nil
}

// GetActorsStatus reports the actors of the application at its current state.
func (r *RemoteApp) GetActorsStatus() ([]state.ActorInfo, error) {
	if err := r.send(&Simple{Type: MsgActorsStatus}); err != nil {
		return nil, err
	}
	reply, err := receive[*ActorsStatusReply](r, MsgActorsStatusReply)
	if err != nil {
		return nil, err
	}
	infos := make([]state.ActorInfo, reply.Count)
	for i := range infos {
		rec, err := receive[*ActorRecord](r, MsgActorRecord)
		if err != nil {
			return nil, err
		}
		infos[i] = state.ActorInfo{
			Aid:           transition.Aid(rec.Aid),
			Enabled:       rec.Enabled != 0,
			MaxConsidered: int(rec.MaxConsidered),
		}
	}
	for i := range infos {
		probe, err := receive[*ActorProbe](r, MsgActorProbe)
		if err != nil {
			return nil, err
		}
		next, err := transition.FromRecord(probe.Transition)
		if err != nil {
			return nil, err
		}
		if next.Aid() != infos[i].Aid {
			return nil, errors.Wrapf(ErrInvalidMessage, "probe of actor %d in the slot of actor %d", next.Aid(), infos[i].Aid)
		}
		infos[i].Next = next
	}
	return infos, nil
}

// CheckDeadlock returns true if every remaining actor is blocked.
func (r *RemoteApp) CheckDeadlock() (bool, error) {
	if err := r.send(&Simple{Type: MsgDeadlockCheck}); err != nil {
		return false, err
	}
	reply, err := receive[*DeadlockCheckReply](r, MsgDeadlockCheckReply)
	if err != nil {
		return false, err
	}
	return reply.Deadlock != 0, nil
}

// Shutdown finalizes the application instance and closes the channel.
func (r *RemoteApp) Shutdown() error {
	if r.closed {
		return nil
	}
	err := r.Finalize(CurrentInstance)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the channel without finalizing the application.
func (r *RemoteApp) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.ch.Close()
	if r.closer != nil {
		if cerr := r.closer(); err == nil {
			err = cerr
		}
	}
	return err
}
