package hostmode

import (
	"github.com/drunlade/go-hostarq/digest"
)

// AppendFrame appends a complete wire frame (sync, stuffed body, CRC) to dst.
// op is the full opcode byte including any sequence and reset bits.
func AppendFrame(dst []byte, channel, op byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrFrameTooLong
	}
	body := make([]byte, 0, headerLen+len(payload)+2)
	body = append(body, channel, op, byte(len(payload)))
	body = append(body, payload...)
	body = digest.AppendCRC(body)

	dst = append(dst, Sync, Sync)
	return appendStuffed(dst, body), nil
}

// Encoder builds outbound frames, alternating the sequence bit and keeping
// the last frame for retransmission.
type Encoder struct {
	seq     bool
	started bool
	last    []byte
}

// NewEncoder returns an encoder whose first frame carries the reset bit.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode builds the next frame for channel with the low opcode bits op.
func (e *Encoder) Encode(channel, op byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLong
	}
	opb := op & OpMask
	if !e.started {
		e.started = true
		e.seq = false
		opb |= ResetBit
	} else {
		e.seq = !e.seq
	}
	if e.seq {
		opb |= SeqBit
	}

	frame, _ := AppendFrame(nil, channel, opb, payload)
	e.last = frame
	return frame, nil
}

// Last returns the most recently encoded frame, unchanged, for a repeat.
func (e *Encoder) Last() []byte {
	return e.last
}

// Seq reports the sequence bit of the most recent frame.
func (e *Encoder) Seq() bool {
	return e.seq
}

// Reset makes the next frame carry the reset bit again, as after entering
// host mode.
func (e *Encoder) Reset() {
	e.started = false
	e.seq = false
	e.last = nil
}
