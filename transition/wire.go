package transition

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// RecordSize is the size in bytes of an encoded transition.
const RecordSize = 40

// ErrInvalidRecord is returned when decoding a record that does not hold a
// valid transition.
var ErrInvalidRecord = errors.New("transition: invalid record")

// Record is the fixed-size wire layout of a transition.
type Record struct {
	Aid    int32
	Times  int32
	Type   uint8
	_      [3]byte
	Object uint64
	Value  int64
	Aux    int64
	_      [4]byte
}

// Record returns the wire layout of t.
func (t *Transition) Record() Record {
	return Record{
		Aid:    int32(t.aid),
		Times:  int32(t.times),
		Type:   uint8(t.typ),
		Object: t.object,
		Value:  t.value,
		Aux:    t.aux,
	}
}

// FromRecord creates the transition described by r.
func FromRecord(r Record) (*Transition, error) {
	typ := Type(r.Type)
	if !typ.Valid() {
		return nil, errors.Wrapf(ErrInvalidRecord, "unknown type %d", r.Type)
	}
	if r.Aid < 0 || r.Times < 0 {
		return nil, errors.Wrapf(ErrInvalidRecord, "actor %d, times %d", r.Aid, r.Times)
	}
	return New(Aid(r.Aid), int(r.Times), typ, r.Object, r.Value, r.Aux), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (t *Transition) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := binary.Write(buf, binary.LittleEndian, t.Record()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Transition) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return errors.Wrapf(ErrInvalidRecord, "got %d bytes, want %d", len(data), RecordSize)
	}
	var r Record
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &r); err != nil {
		return err
	}
	decoded, err := FromRecord(r)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
