package arq

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"time"

	"github.com/drunlade/go-hostarq/digest"
)

// Outbound is the sending half of a transfer. The announcement line and
// the payload go to the link together; progress is derived from how much
// of that is still queued.
type Outbound struct {
	Announcement

	// Line is the announcement including its newline
	Line string

	payload []byte
	sent    int64
	done    bool
	started time.Time
}

// BeginSend prepares payload for transmission. Size and CRC describe the
// bytes on the wire, after compression when compress is set.
func BeginSend(kind Kind, name, dest string, payload []byte, compress bool) (*Outbound, error) {
	wire := payload
	if compress {
		var err error
		if wire, err = deflate(payload); err != nil {
			return nil, WrapError(ErrResource, "compress", err)
		}
	}
	o := &Outbound{
		Announcement: Announcement{
			Kind:     kind,
			Name:     name,
			Size:     int64(len(wire)),
			CRC:      digest.CRC16(wire),
			Dest:     dest,
			Compress: compress,
		},
		payload: wire,
		started: time.Now(),
	}
	o.Line = o.Announcement.String() + "\n"
	return o, nil
}

// Wire returns the announcement followed by the payload.
func (o *Outbound) Wire() []byte {
	out := make([]byte, 0, len(o.Line)+len(o.payload))
	out = append(out, o.Line...)
	return append(out, o.payload...)
}

// Total is the number of bytes Wire returns.
func (o *Outbound) Total() int {
	return len(o.Line) + len(o.payload)
}

// OnSendProgress takes the number of bytes still queued between the host
// and the air and reports whether the transfer is still sending.
func (o *Outbound) OnSendProgress(remaining int) bool {
	if o.done {
		return false
	}
	if remaining < 0 {
		remaining = 0
	}
	transmitted := int64(o.Total() - remaining)
	sent := transmitted - int64(len(o.Line))
	if sent < 0 {
		sent = 0
	}
	if sent > o.Size {
		sent = o.Size
	}
	if sent > o.sent {
		o.sent = sent
	}
	if transmitted >= int64(o.Total()) {
		o.done = true
		return false
	}
	return true
}

// Sent returns payload bytes transmitted so far.
func (o *Outbound) Sent() int64 {
	return o.sent
}

// Done reports whether every payload byte left the station.
func (o *Outbound) Done() bool {
	return o.done
}

// Inbound is the receiving half of a transfer.
type Inbound struct {
	Announcement

	buf     []byte
	limit   int64
	discard bool
	done    bool
	commit  func(payload []byte) error
	started time.Time
}

// NewInbound prepares to receive the payload described by a. limit bounds
// the inflated size of a compressed payload. commit receives the verified
// payload.
func NewInbound(a *Announcement, limit int64, commit func(payload []byte) error) *Inbound {
	return &Inbound{
		Announcement: *a,
		limit:        limit,
		commit:       commit,
		started:      time.Now(),
	}
}

// NewDiscard swallows size bytes of a rejected transfer so they are not
// parsed as commands.
func NewDiscard(size int64) *Inbound {
	return &Inbound{Announcement: Announcement{Size: size}, discard: true}
}

// Discarding reports whether the record swallows a rejected payload.
func (in *Inbound) Discarding() bool {
	return in.discard
}

// Received returns the bytes accumulated so far.
func (in *Inbound) Received() int64 {
	return int64(len(in.buf))
}

// OnReceive accumulates p and reports whether more bytes are expected.
// Bytes beyond the declared size push out the oldest ones, so a duplicated
// tail still yields the last Size bytes. On reaching the declared size the
// payload is verified, inflated and committed.
func (in *Inbound) OnReceive(p []byte) (bool, error) {
	if in.done {
		return false, nil
	}
	in.buf = append(in.buf, p...)
	if over := int64(len(in.buf)) - in.Size; over > 0 {
		in.buf = in.buf[over:]
	}
	if int64(len(in.buf)) < in.Size {
		return true, nil
	}
	in.done = true
	if in.discard {
		return false, nil
	}

	if crc := digest.CRC16(in.buf); crc != in.CRC {
		return false, NewError(ErrIntegrity, fmt.Sprintf("checksum %s, announced %s",
			digest.FormatCRC(crc), digest.FormatCRC(in.CRC)))
	}

	payload := in.buf
	if in.Compress {
		var err error
		if payload, err = inflate(in.buf, in.limit); err != nil {
			return false, err
		}
	}
	if in.commit != nil {
		if err := in.commit(payload); err != nil {
			return false, err
		}
	}
	return false, nil
}

func deflate(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(p []byte, limit int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, WrapError(ErrIntegrity, "decompress", err)
	}
	defer r.Close()

	var out bytes.Buffer
	src := io.Reader(r)
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	if _, err := out.ReadFrom(src); err != nil {
		return nil, WrapError(ErrIntegrity, "decompress", err)
	}
	if limit > 0 && int64(out.Len()) > limit {
		return nil, NewError(ErrResource, "decompressed payload exceeds size limit")
	}
	return out.Bytes(), nil
}
