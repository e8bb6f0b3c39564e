// Package hostmode implements the CRC host-mode link between a station and
// its TNC.
//
// Host mode replaces the TNC's plain command line with small polled frames:
//
//	0xAA 0xAA  channel  opcode|seq  len  payload...  crc_lo crc_hi
//
// Everything after the two sync bytes is byte-stuffed: each 0xAA is
// followed by an inserted 0x00, so 0xAA 0xAA only ever marks a frame start.
// The CRC is CRC-16/X.25 over channel..payload. Every host frame is answered
// by exactly one TNC frame carrying the same sequence bit.
package hostmode

import (
	"fmt"
)

// Sync is the frame start byte; two of them open every frame.
const Sync = 0xAA

// repeatMark follows Sync to ask the other side to resend its last frame.
const repeatMark = 0x55

// RepeatRequest is the 2-byte pattern asking for a retransmission.
var RepeatRequest = []byte{Sync, repeatMark}

// Channels
const (
	ChanLog     = 0x1F // TNC debug log text
	ChanCommand = 0x20 // commands and asynchronous status
	ChanData    = 0x21 // connected-mode and FEC payload
	ChanPoll    = 0xFF // general poll
)

// Host to TNC opcodes
const (
	HostData    = 0x00
	HostCommand = 0x01
)

// TNC to host opcodes
const (
	OpOK      = 0x00 // success, no text
	OpOKMsg   = 0x01 // success with text
	OpFailMsg = 0x02 // failure with text
	OpData    = 0x07 // raw data
)

// Opcode byte bits
const (
	SeqBit   = 0x80
	ResetBit = 0x40
	OpMask   = 0x3F
)

// MaxPayload is the largest payload a single frame carries.
const MaxPayload = 255

// headerLen covers channel, opcode and length bytes.
const headerLen = 3

// Frame is one decoded host-mode frame.
type Frame struct {
	Channel byte
	Op      byte
	Seq     bool
	Reset   bool
	Payload []byte
}

// Text returns the payload as a string with any trailing NULs removed.
func (f Frame) Text() string {
	p := f.Payload
	for len(p) > 0 && p[len(p)-1] == 0 {
		p = p[:len(p)-1]
	}
	return string(p)
}

func (f Frame) String() string {
	return fmt.Sprintf("%s/%s seq=%t len=%d", ChannelName(f.Channel), OpName(f.Op), f.Seq, len(f.Payload))
}

// ChannelName returns a short name for a channel id.
func ChannelName(ch byte) string {
	switch ch {
	case ChanLog:
		return "log"
	case ChanCommand:
		return "cmd"
	case ChanData:
		return "data"
	case ChanPoll:
		return "poll"
	default:
		return fmt.Sprintf("ch%02x", ch)
	}
}

// OpName returns a short name for a TNC opcode.
func OpName(op byte) string {
	switch op {
	case OpOK:
		return "ok"
	case OpOKMsg:
		return "okmsg"
	case OpFailMsg:
		return "fail"
	case OpData:
		return "data"
	default:
		return fmt.Sprintf("op%02x", op)
	}
}

// Logger is the printf-style logger used by the link.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// formatFrameLog renders a frame for logging, truncating long payloads.
func formatFrameLog(direction string, f Frame) string {
	msg := fmt.Sprintf("%s %s", direction, f)
	if len(f.Payload) == 0 {
		return msg
	}
	if len(f.Payload) > 64 {
		return msg + fmt.Sprintf(", payload=%q...[truncated]", f.Payload[:64])
	}
	return msg + fmt.Sprintf(", payload=%q", f.Payload)
}
