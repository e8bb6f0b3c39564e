package arq

import (
	"fmt"
	"strings"

	"github.com/drunlade/go-hostarq/digest"
)

// Unproto frame types
const (
	FrameMessage  = 'M'
	FrameQuery    = 'Q'
	FrameResponse = 'R'
	FrameUnproto  = 'U'
	FrameAck      = 'A'
	FrameNak      = 'N'
	FrameBeacon   = 'B'
)

const unprotoVersion = "01"

// UnprotoFrame is one FEC broadcast frame:
//
//	|T01|FROM|TO|CCCC|body   message, query, response, unproto text
//	|A01|FROM|TO|            ack
//	|N01|FROM|TO|            nak
//	|B01|FROM|GRID|text      beacon
type UnprotoFrame struct {
	Type byte
	From string
	To   string
	Grid string
	CRC  uint16
	Body string
}

// NewUnproto builds a checksummed frame of type t.
func NewUnproto(t byte, from, to, body string) *UnprotoFrame {
	return &UnprotoFrame{
		Type: t,
		From: strings.ToUpper(from),
		To:   strings.ToUpper(to),
		CRC:  digest.CRC16([]byte(body)),
		Body: body,
	}
}

func hasBody(t byte) bool {
	switch t {
	case FrameMessage, FrameQuery, FrameResponse, FrameUnproto:
		return true
	}
	return false
}

// Encode renders the frame for FEC transmission.
func (f *UnprotoFrame) Encode() []byte {
	head := fmt.Sprintf("|%c%s|%s|", f.Type, unprotoVersion, f.From)
	switch {
	case f.Type == FrameBeacon:
		return []byte(head + f.Grid + "|" + f.Body)
	case hasBody(f.Type):
		return []byte(head + f.To + "|" + digest.FormatCRC(f.CRC) + "|" + f.Body)
	default:
		return []byte(head + f.To + "|")
	}
}

// CheckCRC reports whether the body matches the frame checksum. Frames
// without a body always pass.
func (f *UnprotoFrame) CheckCRC() bool {
	if !hasBody(f.Type) {
		return true
	}
	return digest.CRC16([]byte(f.Body)) == f.CRC
}

// ParseUnproto decodes a received FEC frame.
func ParseUnproto(p []byte) (*UnprotoFrame, error) {
	s := strings.TrimRight(string(p), "\x00\r\n")
	if len(s) < 5 || s[0] != '|' || s[2:4] != unprotoVersion || s[4] != '|' {
		return nil, NewError(ErrSyntax, "not an unproto frame")
	}
	f := &UnprotoFrame{Type: s[1]}
	rest := s[5:]

	switch {
	case hasBody(f.Type):
		parts := strings.SplitN(rest, "|", 4)
		if len(parts) != 4 {
			return nil, NewError(ErrSyntax, "truncated unproto frame")
		}
		crc, err := digest.ParseCRC(parts[2])
		if err != nil {
			return nil, WrapError(ErrSyntax, "unproto checksum", err)
		}
		f.From, f.To, f.CRC, f.Body = parts[0], parts[1], crc, parts[3]
	case f.Type == FrameAck || f.Type == FrameNak:
		parts := strings.SplitN(rest, "|", 3)
		if len(parts) < 2 {
			return nil, NewError(ErrSyntax, "truncated ack frame")
		}
		f.From, f.To = parts[0], parts[1]
	case f.Type == FrameBeacon:
		parts := strings.SplitN(rest, "|", 3)
		if len(parts) < 2 {
			return nil, NewError(ErrSyntax, "truncated beacon")
		}
		f.From, f.Grid = parts[0], parts[1]
		if len(parts) == 3 {
			f.Body = parts[2]
		}
	default:
		return nil, NewError(ErrSyntax, fmt.Sprintf("unknown unproto type %q", f.Type))
	}

	if f.From == "" {
		return nil, NewError(ErrSyntax, "unproto frame without sender")
	}
	f.From = strings.ToUpper(f.From)
	f.To = strings.ToUpper(f.To)
	return f, nil
}

// unprotoEvent maps a frame type to its receive event.
func unprotoEvent(t byte) Event {
	switch t {
	case FrameMessage:
		return EvRcvMsg
	case FrameQuery:
		return EvRcvQuery
	case FrameResponse:
		return EvRcvResp
	case FrameUnproto:
		return EvRcvUnproto
	case FrameAck:
		return EvRcvAck
	case FrameNak:
		return EvRcvNak
	case FrameBeacon:
		return EvRcvBeacon
	default:
		return EvRcvBadFrame
	}
}
