package hostmode

import (
	"github.com/drunlade/go-hostarq/digest"
)

type decodeState int

const (
	stateHunt   decodeState = iota // outside a frame
	stateSync                      // one Sync seen outside a frame
	stateBody                      // accumulating an unstuffed body
	stateEscape                    // Sync seen inside a frame
)

// Result is one outcome of feeding bytes to a Decoder: a frame, a repeat
// request from the other side, or a discarded frame with its reason.
type Result struct {
	Frame  Frame
	Repeat bool
	Err    error
}

// Decoder turns the raw byte stream from the TNC into frames. It keeps the
// partial frame between Feed calls.
type Decoder struct {
	state     decodeState
	buf       []byte
	expectSeq bool
	checkSeq  bool
}

// NewDecoder returns a decoder that is hunting for a sync marker.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, headerLen+MaxPayload+2)}
}

// Expect sets the sequence bit the next command or data frame must carry.
func (d *Decoder) Expect(seq bool) {
	d.expectSeq = seq
	d.checkSeq = true
}

// Reset drops any partial frame and the sequence expectation.
func (d *Decoder) Reset() {
	d.state = stateHunt
	d.buf = d.buf[:0]
	d.checkSeq = false
}

// Feed consumes p and returns every complete outcome it produced.
func (d *Decoder) Feed(p []byte) []Result {
	var out []Result
	for _, c := range p {
		switch d.state {
		case stateHunt:
			if c == Sync {
				d.state = stateSync
			}
		case stateSync:
			switch c {
			case Sync:
				d.start()
			case repeatMark:
				out = append(out, Result{Repeat: true})
				d.state = stateHunt
			default:
				d.state = stateHunt
			}
		case stateBody:
			if c == Sync {
				d.state = stateEscape
				continue
			}
			if r, done := d.add(c); done {
				out = append(out, r)
			}
		case stateEscape:
			switch c {
			case 0x00:
				d.state = stateBody
				if r, done := d.add(Sync); done {
					out = append(out, r)
				}
			case Sync:
				// a new frame starts; the partial one is lost
				d.start()
			case repeatMark:
				out = append(out, Result{Repeat: true})
				d.state = stateHunt
				d.buf = d.buf[:0]
			default:
				out = append(out, Result{Err: ErrStuffing})
				d.state = stateHunt
				d.buf = d.buf[:0]
			}
		}
	}
	return out
}

func (d *Decoder) start() {
	d.state = stateBody
	d.buf = d.buf[:0]
}

// add appends one unstuffed byte and reports a finished frame once the
// declared length is reached.
func (d *Decoder) add(c byte) (Result, bool) {
	d.buf = append(d.buf, c)
	if len(d.buf) < headerLen {
		return Result{}, false
	}
	want := headerLen + int(d.buf[2]) + 2
	if len(d.buf) < want {
		return Result{}, false
	}

	d.state = stateHunt
	body := d.buf
	d.buf = d.buf[:0]

	if !digest.ValidCodeword(body) {
		return Result{Err: ErrCRC}, true
	}
	f := Frame{
		Channel: body[0],
		Op:      body[1] & OpMask,
		Seq:     body[1]&SeqBit != 0,
		Reset:   body[1]&ResetBit != 0,
		Payload: append([]byte(nil), body[headerLen:want-2]...),
	}
	if d.checkSeq && (f.Channel == ChanCommand || f.Channel == ChanData) && f.Seq != d.expectSeq {
		return Result{Err: ErrSequence}, true
	}
	return Result{Frame: f}, true
}
