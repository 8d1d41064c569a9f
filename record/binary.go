package record

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"simcheck/transition"
)

const (
	traceSessionField protowire.Number = 1
	traceStatusField  protowire.Number = 2
	traceStepField    protowire.Number = 3

	stepAidField        protowire.Number = 1
	stepTimesField      protowire.Number = 2
	stepTransitionField protowire.Number = 3
)

// MarshalBinary encodes r in the protobuf wire format.
func (r RecordTrace) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, traceSessionField, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Session[:])
	b = protowire.AppendTag(b, traceStatusField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Status))
	for _, s := range r.Steps {
		var step []byte
		step = protowire.AppendTag(step, stepAidField, protowire.VarintType)
		step = protowire.AppendVarint(step, uint64(s.Aid))
		step = protowire.AppendTag(step, stepTimesField, protowire.VarintType)
		step = protowire.AppendVarint(step, uint64(s.Times))
		if s.Transition != nil {
			data, err := s.Transition.MarshalBinary()
			if err != nil {
				return nil, err
			}
			step = protowire.AppendTag(step, stepTransitionField, protowire.BytesType)
			step = protowire.AppendBytes(step, data)
		}
		b = protowire.AppendTag(b, traceStepField, protowire.BytesType)
		b = protowire.AppendBytes(b, step)
	}
	return b, nil
}

// UnmarshalBinary decodes a trace encoded by MarshalBinary. Unknown fields
// are skipped.
func (r *RecordTrace) UnmarshalBinary(b []byte) error {
	*r = RecordTrace{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]
		switch {
		case num == traceSessionField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wireError(n)
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return errors.Wrap(ErrInvalidTrace, err.Error())
			}
			r.Session = id
			b = b[n:]
		case num == traceStatusField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return wireError(n)
			}
			r.Status = ExitStatus(v)
			b = b[n:]
		case num == traceStepField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wireError(n)
			}
			step, err := unmarshalStep(v)
			if err != nil {
				return errors.Wrapf(err, "step %d", len(r.Steps))
			}
			r.Steps = append(r.Steps, step)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wireError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func unmarshalStep(b []byte) (Step, error) {
	var s Step
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, wireError(n)
		}
		b = b[n:]
		switch {
		case num == stepAidField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return s, wireError(n)
			}
			s.Aid = transition.Aid(v)
			b = b[n:]
		case num == stepTimesField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return s, wireError(n)
			}
			s.Times = int(v)
			b = b[n:]
		case num == stepTransitionField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return s, wireError(n)
			}
			t := &transition.Transition{}
			if err := t.UnmarshalBinary(v); err != nil {
				return s, err
			}
			s.Transition = t
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, wireError(n)
			}
			b = b[n:]
		}
	}
	if s.Transition != nil && (s.Transition.Aid() != s.Aid || s.Transition.Times() != s.Times) {
		return s, errors.Wrapf(ErrInvalidTrace, "transition %v recorded for %d/%d", s.Transition, s.Aid, s.Times)
	}
	return s, nil
}

func wireError(n int) error {
	return errors.Wrap(ErrInvalidTrace, protowire.ParseError(n).Error())
}
