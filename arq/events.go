package arq

import (
	"fmt"
	"strings"
)

// Event is one input to the state machine.
type Event int

const (
	EvNone Event = iota

	// timer
	EvTick

	// operator
	EvOpSendMsg
	EvOpSendQuery
	EvOpSendUnproto
	EvOpSendBeacon
	EvOpPing
	EvOpConnect
	EvOpDisconnect
	EvOpCancel
	EvOpFileSend
	EvOpFileGet
	EvOpFlistGet
	EvOpMsgSend
	EvOpMsgGet
	EvOpMsgList
	EvOpAuth

	// TNC status
	EvTNCAttached
	EvTNCDetached
	EvBuffer
	EvBusy
	EvNewState
	EvConnected
	EvDisconnected
	EvPending
	EvCancelPending
	EvRejectedBW
	EvRejectedBusy
	EvPingAck
	EvPingReceived
	EvTarget
	EvFault

	// payload from the TNC
	EvData
	EvFECData
	EvARQData

	// unproto frames
	EvRcvMsg
	EvRcvAck
	EvRcvNak
	EvRcvQuery
	EvRcvResp
	EvRcvBeacon
	EvRcvUnproto
	EvRcvBadFrame

	// ARQ commands from the peer
	EvArqFPUT
	EvArqFGET
	EvArqFLPUT
	EvArqFLGET
	EvArqMPUT
	EvArqMGET
	EvArqMLIST
	EvArqAUTH
	EvArqA1
	EvArqA2
	EvArqA3
	EvArqOK
	EvArqError
	EvArqEAuth
	EvArqUnknown

	// outcomes
	EvXferDone
	EvXferError
	EvAuthOK
	EvAuthError
	EvAckTimeout
	EvTimeout
	EvLinkError

	numEvents
)

var eventNames = [numEvents]string{
	EvNone:          "NONE",
	EvTick:          "TICK",
	EvOpSendMsg:     "OP_SEND_MSG",
	EvOpSendQuery:   "OP_SEND_QUERY",
	EvOpSendUnproto: "OP_SEND_UNPROTO",
	EvOpSendBeacon:  "OP_SEND_BEACON",
	EvOpPing:        "OP_PING",
	EvOpConnect:     "OP_CONNECT",
	EvOpDisconnect:  "OP_DISCONNECT",
	EvOpCancel:      "OP_CANCEL",
	EvOpFileSend:    "OP_FILE_SEND",
	EvOpFileGet:     "OP_FILE_GET",
	EvOpFlistGet:    "OP_FLIST_GET",
	EvOpMsgSend:     "OP_MSG_SEND",
	EvOpMsgGet:      "OP_MSG_GET",
	EvOpMsgList:     "OP_MSG_LIST",
	EvOpAuth:        "OP_AUTH",
	EvTNCAttached:   "TNC_ATTACHED",
	EvTNCDetached:   "TNC_DETACHED",
	EvBuffer:        "BUFFER",
	EvBusy:          "BUSY",
	EvNewState:      "NEWSTATE",
	EvConnected:     "CONNECTED",
	EvDisconnected:  "DISCONNECTED",
	EvPending:       "PENDING",
	EvCancelPending: "CANCELPENDING",
	EvRejectedBW:    "REJECTEDBW",
	EvRejectedBusy:  "REJECTEDBUSY",
	EvPingAck:       "PINGACK",
	EvPingReceived:  "PING",
	EvTarget:        "TARGET",
	EvFault:         "FAULT",
	EvData:          "DATA",
	EvFECData:       "FEC_DATA",
	EvARQData:       "ARQ_DATA",
	EvRcvMsg:        "RCV_MSG",
	EvRcvAck:        "RCV_ACK",
	EvRcvNak:        "RCV_NAK",
	EvRcvQuery:      "RCV_QUERY",
	EvRcvResp:       "RCV_RESP",
	EvRcvBeacon:     "RCV_BEACON",
	EvRcvUnproto:    "RCV_UNPROTO",
	EvRcvBadFrame:   "RCV_BAD_FRAME",
	EvArqFPUT:       "ARQ_FPUT",
	EvArqFGET:       "ARQ_FGET",
	EvArqFLPUT:      "ARQ_FLPUT",
	EvArqFLGET:      "ARQ_FLGET",
	EvArqMPUT:       "ARQ_MPUT",
	EvArqMGET:       "ARQ_MGET",
	EvArqMLIST:      "ARQ_MLIST",
	EvArqAUTH:       "ARQ_AUTH",
	EvArqA1:         "ARQ_A1",
	EvArqA2:         "ARQ_A2",
	EvArqA3:         "ARQ_A3",
	EvArqOK:         "ARQ_OK",
	EvArqError:      "ARQ_ERROR",
	EvArqEAuth:      "ARQ_EAUTH",
	EvArqUnknown:    "ARQ_UNKNOWN",
	EvXferDone:      "XFER_DONE",
	EvXferError:     "XFER_ERROR",
	EvAuthOK:        "AUTH_OK",
	EvAuthError:     "AUTH_ERROR",
	EvAckTimeout:    "ACK_TIMEOUT",
	EvTimeout:       "TIMEOUT",
	EvLinkError:     "LINK_ERROR",
}

func (e Event) String() string {
	if e < 0 || e >= numEvents {
		return "UNKNOWN"
	}
	return eventNames[e]
}

// Events returns every event, in declaration order.
func Events() []Event {
	out := make([]Event, 0, numEvents)
	for e := EvNone; e < numEvents; e++ {
		out = append(out, e)
	}
	return out
}

// Param carries the arguments of an event. Each event uses the fields that
// make sense for it and leaves the rest zero.
type Param struct {
	Text     string
	Data     []byte
	Call     string
	Dest     string
	N        int
	Compress bool
	Cmd      *Command
	Frame    *UnprotoFrame
}

// String summarizes p for transition records.
func (p Param) String() string {
	var parts []string
	if p.Call != "" {
		parts = append(parts, "call="+p.Call)
	}
	if p.Text != "" {
		t := p.Text
		if len(t) > 40 {
			t = t[:40] + "..."
		}
		parts = append(parts, fmt.Sprintf("text=%q", t))
	}
	if p.Dest != "" {
		parts = append(parts, "dest="+p.Dest)
	}
	if len(p.Data) > 0 {
		parts = append(parts, fmt.Sprintf("data=%d", len(p.Data)))
	}
	if p.N != 0 {
		parts = append(parts, fmt.Sprintf("n=%d", p.N))
	}
	if p.Compress {
		parts = append(parts, "z")
	}
	return strings.Join(parts, " ")
}
