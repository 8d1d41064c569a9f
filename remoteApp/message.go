package remoteApp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"

	"simcheck/transition"
)

// MessageType is the tag starting every datagram exchanged with the
// application.
type MessageType uint8

const (
	MsgNone MessageType = iota
	MsgFork
	MsgForkReply
	MsgSimcallExecute
	MsgSimcallExecuteReply
	MsgActorsStatus
	MsgActorsStatusReply
	MsgActorRecord
	MsgActorProbe
	MsgDeadlockCheck
	MsgDeadlockCheckReply
	MsgRestore
	MsgFinalize
	MsgFinalizeReply
	MsgAssertionFailed
	numMessageTypes
)

var messageNames = [...]string{
	MsgNone:                "NONE",
	MsgFork:                "FORK",
	MsgForkReply:           "FORK_REPLY",
	MsgSimcallExecute:      "SIMCALL_EXECUTE",
	MsgSimcallExecuteReply: "SIMCALL_EXECUTE_REPLY",
	MsgActorsStatus:        "ACTORS_STATUS",
	MsgActorsStatusReply:   "ACTORS_STATUS_REPLY",
	MsgActorRecord:         "ACTOR_RECORD",
	MsgActorProbe:          "ACTOR_PROBE",
	MsgDeadlockCheck:       "DEADLOCK_CHECK",
	MsgDeadlockCheckReply:  "DEADLOCK_CHECK_REPLY",
	MsgRestore:             "RESTORE",
	MsgFinalize:            "FINALIZE",
	MsgFinalizeReply:       "FINALIZE_REPLY",
	MsgAssertionFailed:     "ASSERTION_FAILED",
}

func (m MessageType) String() string {
	if m < numMessageTypes {
		return messageNames[m]
	}
	return fmt.Sprintf("MessageType(%d)", uint8(m))
}

// CurrentInstance is the checkpoint index naming the running application
// instance in a FINALIZE message.
const CurrentInstance = ^uint32(0)

// Message is one fixed-size datagram.
type Message interface {
	MessageType() MessageType
}

// Simple is a message without payload: FORK, ACTORS_STATUS, DEADLOCK_CHECK,
// FINALIZE_REPLY and ASSERTION_FAILED.
type Simple struct {
	Type MessageType
	_    [3]byte
}

type ForkReply struct {
	Type       MessageType
	_          [3]byte
	Checkpoint uint32
}

type SimcallExecute struct {
	Type  MessageType
	_     [3]byte
	Aid   int32
	Times int32
}

type SimcallExecuteReply struct {
	Type       MessageType
	_          [3]byte
	Transition transition.Record
}

type ActorsStatusReply struct {
	Type  MessageType
	_     [3]byte
	Count uint32
}

type ActorRecord struct {
	Type          MessageType
	_             [3]byte
	Aid           int32
	Enabled       uint8
	_             [3]byte
	MaxConsidered int32
}

type ActorProbe struct {
	Type       MessageType
	_          [3]byte
	Transition transition.Record
}

type DeadlockCheckReply struct {
	Type     MessageType
	_        [3]byte
	Deadlock uint8
	_        [3]byte
}

type Restore struct {
	Type       MessageType
	_          [3]byte
	Checkpoint uint32
}

type Finalize struct {
	Type       MessageType
	_          [3]byte
	Checkpoint uint32
}

func (m *Simple) MessageType() MessageType              { return m.Type }
func (m *ForkReply) MessageType() MessageType           { return MsgForkReply }
func (m *SimcallExecute) MessageType() MessageType      { return MsgSimcallExecute }
func (m *SimcallExecuteReply) MessageType() MessageType { return MsgSimcallExecuteReply }
func (m *ActorsStatusReply) MessageType() MessageType   { return MsgActorsStatusReply }
func (m *ActorRecord) MessageType() MessageType         { return MsgActorRecord }
func (m *ActorProbe) MessageType() MessageType          { return MsgActorProbe }
func (m *DeadlockCheckReply) MessageType() MessageType  { return MsgDeadlockCheckReply }
func (m *Restore) MessageType() MessageType             { return MsgRestore }
func (m *Finalize) MessageType() MessageType            { return MsgFinalize }

// ErrInvalidMessage is returned when a datagram cannot be decoded.
var ErrInvalidMessage = errors.New("remoteApp: invalid message")

func newMessage(t MessageType) (Message, error) {
	switch t {
	case MsgFork, MsgActorsStatus, MsgDeadlockCheck, MsgFinalizeReply, MsgAssertionFailed:
		return &Simple{Type: t}, nil
	case MsgForkReply:
		return &ForkReply{Type: t}, nil
	case MsgSimcallExecute:
		return &SimcallExecute{Type: t}, nil
	case MsgSimcallExecuteReply:
		return &SimcallExecuteReply{Type: t}, nil
	case MsgActorsStatusReply:
		return &ActorsStatusReply{Type: t}, nil
	case MsgActorRecord:
		return &ActorRecord{Type: t}, nil
	case MsgActorProbe:
		return &ActorProbe{Type: t}, nil
	case MsgDeadlockCheckReply:
		return &DeadlockCheckReply{Type: t}, nil
	case MsgRestore:
		return &Restore{Type: t}, nil
	case MsgFinalize:
		return &Finalize{Type: t}, nil
	}
	return nil, errors.Wrapf(ErrInvalidMessage, "unknown type %d", uint8(t))
}

// MessageSize returns the size of the datagrams of type t.
func MessageSize(t MessageType) (int, error) {
	m, err := newMessage(t)
	if err != nil {
		return 0, err
	}
	return binary.Size(m), nil
}

// Encode returns the datagram holding m.
func Encode(m Message) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(m)))
	if err := binary.Write(buf, binary.LittleEndian, m); err != nil {
		return nil, errors.Wrapf(err, "encoding %v", m.MessageType())
	}
	return buf.Bytes(), nil
}

// Decode returns the message held by the datagram data.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidMessage, "empty datagram")
	}
	m, err := newMessage(MessageType(data[0]))
	if err != nil {
		return nil, err
	}
	if size := binary.Size(m); size != len(data) {
		return nil, errors.Wrapf(ErrInvalidMessage, "%v of %d bytes, want %d", MessageType(data[0]), len(data), size)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, m); err != nil {
		return nil, errors.Wrapf(err, "decoding %v", MessageType(data[0]))
	}
	return m, nil
}
