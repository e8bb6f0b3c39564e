package arq

// State is the single active state of a Session.
type State int

const (
	StateIdle State = iota

	// buffer-wait: data handed to the TNC, waiting for its buffer to drain
	StateSendUnprotoBufWait
	StateSendBeaconBufWait
	StateSendMsgBufWait
	StateSendQueryBufWait
	StateSendRespBufWait
	StateSendAckNakBufWait

	// ack-wait: waiting for the remote station's reply
	StateRcvMsgAckWait
	StateRcvQueryRespWait

	// ping
	StatePingAckWait
	StatePilotPingAckWait

	// ARQ connection
	StateArqOutConnectWait
	StateArqInPending
	StateArqConnected
	StateArqDisconnectWait

	// ARQ authentication
	StateArqAuthRcvA1Wait
	StateArqAuthRcvA2Wait
	StateArqAuthRcvA3Wait

	// ARQ file transfer
	StateArqFileRcvWait
	StateArqFileRcv
	StateArqFileSend
	StateArqFileSendWaitOK

	// ARQ listing transfer
	StateArqFlistRcvWait
	StateArqFlistRcv
	StateArqFlistSend
	StateArqFlistSendWaitOK

	// ARQ message transfer
	StateArqMsgRcvWait
	StateArqMsgRcv
	StateArqMsgSend
	StateArqMsgSendWaitOK

	numStates
)

var stateNames = [numStates]string{
	StateIdle:               "IDLE",
	StateSendUnprotoBufWait: "SEND_UN_BUF_WAIT",
	StateSendBeaconBufWait:  "SEND_BCN_BUF_WAIT",
	StateSendMsgBufWait:     "SEND_MSG_BUF_WAIT",
	StateSendQueryBufWait:   "SEND_QRY_BUF_WAIT",
	StateSendRespBufWait:    "SEND_RESP_BUF_WAIT",
	StateSendAckNakBufWait:  "SEND_ACKNAK_BUF_WAIT",
	StateRcvMsgAckWait:      "RCV_ACK_WAIT",
	StateRcvQueryRespWait:   "RCV_RESP_WAIT",
	StatePingAckWait:        "PING_ACK_WAIT",
	StatePilotPingAckWait:   "PILOT_PING_ACK_WAIT",
	StateArqOutConnectWait:  "ARQ_OUT_CONNECT_WAIT",
	StateArqInPending:       "ARQ_IN_PENDING",
	StateArqConnected:       "ARQ_CONNECTED",
	StateArqDisconnectWait:  "ARQ_DISCONNECT_WAIT",
	StateArqAuthRcvA1Wait:   "ARQ_AUTH_RCV_A1_WAIT",
	StateArqAuthRcvA2Wait:   "ARQ_AUTH_RCV_A2_WAIT",
	StateArqAuthRcvA3Wait:   "ARQ_AUTH_RCV_A3_WAIT",
	StateArqFileRcvWait:     "ARQ_FILE_RCV_WAIT",
	StateArqFileRcv:         "ARQ_FILE_RCV",
	StateArqFileSend:        "ARQ_FILE_SEND",
	StateArqFileSendWaitOK:  "ARQ_FILE_SEND_WAIT_OK",
	StateArqFlistRcvWait:    "ARQ_FLIST_RCV_WAIT",
	StateArqFlistRcv:        "ARQ_FLIST_RCV",
	StateArqFlistSend:       "ARQ_FLIST_SEND",
	StateArqFlistSendWaitOK: "ARQ_FLIST_SEND_WAIT_OK",
	StateArqMsgRcvWait:      "ARQ_MSG_RCV_WAIT",
	StateArqMsgRcv:          "ARQ_MSG_RCV",
	StateArqMsgSend:         "ARQ_MSG_SEND",
	StateArqMsgSendWaitOK:   "ARQ_MSG_SEND_WAIT_OK",
}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// IsARQ reports whether s belongs to the connected (ARQ) family.
func (s State) IsARQ() bool {
	return s >= StateArqOutConnectWait && s < numStates
}

// IsConnected reports whether a link to the remote station is up in s.
func (s State) IsConnected() bool {
	return s >= StateArqConnected && s < numStates
}

// States returns every state, in declaration order.
func States() []State {
	out := make([]State, 0, numStates)
	for s := StateIdle; s < numStates; s++ {
		out = append(out, s)
	}
	return out
}
