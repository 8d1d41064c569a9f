package remoteApp

import (
	"context"

	"github.com/cockroachdb/errors"

	"simcheck/logger"
	"simcheck/state"
	"simcheck/transition"
)

var plog = logger.GetLogger("remoteApp")

// Application is the model under test as seen from the application side of
// the protocol.
type Application interface {
	// Actors reports every actor still alive, with the transition each of
	// them would run next.
	Actors() []state.ActorInfo
	// Execute runs one step of actor aid. A returned error is reported to
	// the checker as a failed assertion.
	Execute(aid transition.Aid, times int) (*transition.Transition, error)
	// Clone returns an independent copy used as a checkpoint.
	Clone() Application
}

// AppSide answers the checker requests for one application instance.
type AppSide struct {
	ch             Channel
	current        Application
	checkpoints    map[uint32]Application
	nextCheckpoint uint32
}

// NewAppSide returns the server side of ch running app.
func NewAppSide(app Application, ch Channel) *AppSide {
	return &AppSide{
		ch:          ch,
		current:     app,
		checkpoints: make(map[uint32]Application),
	}
}

// Serve handles requests until the checker finalizes the instance or the
// channel fails. A panicking application closes the channel, which the
// checker observes as a crash.
func (a *AppSide) Serve(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("application panicked: %v", r)
			err = errors.Newf("application panicked: %v", r)
		}
		_ = a.ch.Close()
	}()
	for {
		data, err := a.ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrAppCrashed) {
				// the checker went away
				return nil
			}
			return err
		}
		m, err := Decode(data)
		if err != nil {
			return err
		}
		stop, err := a.handle(m)
		if err != nil || stop {
			return err
		}
	}
}

func (a *AppSide) handle(m Message) (bool, error) {
	switch msg := m.(type) {
	case *SimcallExecute:
		t, err := a.current.Execute(transition.Aid(msg.Aid), int(msg.Times))
		if err != nil {
			plog.Infof("actor %d failed: %v", msg.Aid, err)
			return false, a.send(&Simple{Type: MsgAssertionFailed})
		}
		return false, a.send(&SimcallExecuteReply{Type: MsgSimcallExecuteReply, Transition: t.Record()})
	case *Restore:
		cp, ok := a.checkpoints[msg.Checkpoint]
		if !ok {
			return false, errors.Newf("restoring unknown checkpoint %d", msg.Checkpoint)
		}
		a.current = cp.Clone()
		return false, nil
	case *Finalize:
		if msg.Checkpoint == CurrentInstance {
			return true, a.send(&Simple{Type: MsgFinalizeReply})
		}
		delete(a.checkpoints, msg.Checkpoint)
		return false, a.send(&Simple{Type: MsgFinalizeReply})
	case *Simple:
		switch msg.Type {
		case MsgFork:
			cp := a.nextCheckpoint
			a.nextCheckpoint++
			a.checkpoints[cp] = a.current.Clone()
			return false, a.send(&ForkReply{Type: MsgForkReply, Checkpoint: cp})
		case MsgActorsStatus:
			return false, a.sendActorsStatus()
		case MsgDeadlockCheck:
			return false, a.sendDeadlockCheck()
		}
	}
	return false, errors.Wrapf(ErrInvalidMessage, "unexpected %v request", m.MessageType())
}

func (a *AppSide) sendActorsStatus() error {
	infos := a.current.Actors()
	if err := a.send(&ActorsStatusReply{Type: MsgActorsStatusReply, Count: uint32(len(infos))}); err != nil {
		return err
	}
	for _, info := range infos {
		rec := &ActorRecord{Type: MsgActorRecord, Aid: int32(info.Aid), MaxConsidered: int32(info.MaxConsidered)}
		if info.Enabled {
			rec.Enabled = 1
		}
		if err := a.send(rec); err != nil {
			return err
		}
	}
	for _, info := range infos {
		next := info.Next
		if next == nil {
			next = transition.NewUnknown(info.Aid)
		}
		if err := a.send(&ActorProbe{Type: MsgActorProbe, Transition: next.Record()}); err != nil {
			return err
		}
	}
	return nil
}

func (a *AppSide) sendDeadlockCheck() error {
	infos := a.current.Actors()
	deadlock := len(infos) > 0
	for _, info := range infos {
		if info.Enabled {
			deadlock = false
			break
		}
	}
	reply := &DeadlockCheckReply{Type: MsgDeadlockCheckReply}
	if deadlock {
		reply.Deadlock = 1
	}
	return a.send(reply)
}

func (a *AppSide) send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return a.ch.Send(data)
}
