package arq

import (
	"fmt"
	"strings"
	"time"
)

const qst = "QST"

func (s *Session) handleIdle(ev Event, p Param) bool {
	switch ev {
	case EvOpSendMsg:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "send message")
			return true
		}
		f := NewUnproto(FrameMessage, s.cfg.MyCall, p.Call, p.Text)
		s.lastSent = f
		s.sendRepeats, s.naks = 0, 0
		s.unsent, s.heldSince = false, time.Time{}
		if s.cfg.PilotPings > 0 {
			s.pilot = f
			if s.tncCommand(fmt.Sprintf("%s %s %d", tncPing, f.To, s.cfg.PilotPings)) != nil {
				s.pilot = nil
				return true
			}
			s.enter(StatePilotPingAckWait, pingTimeout(s.cfg.PingTimeout, s.cfg.PilotPings))
			return true
		}
		s.sendFEC(f, StateSendMsgBufWait)
	case EvOpSendQuery:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "send query")
			return true
		}
		f := NewUnproto(FrameQuery, s.cfg.MyCall, p.Call, p.Text)
		s.lastSent = f
		s.sendFEC(f, StateSendQueryBufWait)
	case EvOpSendUnproto:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "send unproto")
			return true
		}
		to := p.Call
		if to == "" {
			to = qst
		}
		s.sendFEC(NewUnproto(FrameUnproto, s.cfg.MyCall, to, p.Text), StateSendUnprotoBufWait)
	case EvOpSendBeacon:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "send beacon")
			return true
		}
		s.sendBeacon()
	case EvOpPing:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "ping")
			return true
		}
		n := p.N
		if n <= 0 {
			n = 5
		}
		if s.tncCommand(fmt.Sprintf("%s %s %d", tncPing, p.Call, n)) == nil {
			s.enter(StatePingAckWait, pingTimeout(s.cfg.PingTimeout, n))
		}
	case EvOpConnect:
		if err := s.canTransmit(); err != nil {
			s.fail(err, "connect")
			return true
		}
		s.conn = &Conn{Remote: p.Call, Outgoing: true}
		s.connectTry = 0
		s.dial()
	case EvPending:
		s.conn = &Conn{}
		s.enter(StateArqInPending, s.cfg.ConnectTimeout)
	case EvConnected:
		s.connected(p)
	case EvRcvMsg:
		s.receiveMessage(p.Frame)
	case EvRcvQuery:
		s.answerQuery(p.Frame)
	case EvRcvUnproto:
		f := p.Frame
		if f.To == s.cfg.MyCall || f.To == qst {
			s.callbacks.OnStatus(fmt.Sprintf("%s>%s: %s", f.From, f.To, f.Body))
		}
		s.callbacks.OnHeard(f.From, "unproto to "+f.To)
	case EvRcvBeacon:
		s.callbacks.OnHeard(p.Frame.From, strings.TrimSpace(p.Frame.Grid+" "+p.Frame.Body))
	case EvRcvAck, EvRcvNak, EvRcvResp:
		s.callbacks.OnHeard(p.Frame.From, fmt.Sprintf("%c to %s", p.Frame.Type, p.Frame.To))
	case EvRcvBadFrame:
		s.logger.Debug("unproto: %s", p.Text)
	case EvPingReceived:
		s.callbacks.OnHeard(p.Call, fmt.Sprintf("ping to %s snr %s quality %d", p.Dest, p.Text, p.N))
	case EvTick:
		if s.cfg.BeaconInterval > 0 && !s.nextBeacon.IsZero() && !s.now().Before(s.nextBeacon) {
			if s.canTransmit() == nil {
				s.sendBeacon()
			}
		}
	case EvFault:
		s.callbacks.OnStatus("TNC fault: " + p.Text)
	default:
		return false
	}
	return true
}

// sendFEC hands an unproto frame to the TNC and waits for it to drain.
func (s *Session) sendFEC(f *UnprotoFrame, next State) {
	if s.sendData(f.Encode()) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	if s.tncCommand(tncFECSend) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.enter(next, s.cfg.TxTimeout)
}

func (s *Session) sendBeacon() {
	f := &UnprotoFrame{Type: FrameBeacon, From: s.cfg.MyCall, Grid: s.cfg.GridSquare, Body: s.cfg.BeaconText}
	if s.cfg.BeaconInterval > 0 {
		s.nextBeacon = s.now().Add(s.cfg.BeaconInterval)
	}
	s.sendFEC(f, StateSendBeaconBufWait)
}

func (s *Session) receiveMessage(f *UnprotoFrame) {
	if f.To != s.cfg.MyCall {
		s.callbacks.OnHeard(f.From, "message to "+f.To)
		return
	}
	if !f.CheckCRC() {
		s.fail(NewError(ErrIntegrity, "message from "+f.From+" failed checksum"), "receive message")
		s.sendFEC(NewUnproto(FrameNak, s.cfg.MyCall, f.From, ""), StateSendAckNakBufWait)
		return
	}
	m := MailMessage{From: f.From, To: f.To, Time: s.now(), Body: f.Body}
	id, err := s.mailbox.Append(BoxIn, m)
	if err != nil {
		s.fail(err, "store message")
		s.sendFEC(NewUnproto(FrameNak, s.cfg.MyCall, f.From, ""), StateSendAckNakBufWait)
		return
	}
	m.ID = id
	s.callbacks.OnMessage(m)
	s.sendFEC(NewUnproto(FrameAck, s.cfg.MyCall, f.From, ""), StateSendAckNakBufWait)
}

func (s *Session) answerQuery(f *UnprotoFrame) {
	if f.To != s.cfg.MyCall {
		s.callbacks.OnHeard(f.From, "query to "+f.To)
		return
	}
	if !f.CheckCRC() {
		s.fail(NewError(ErrIntegrity, "query from "+f.From+" failed checksum"), "answer query")
		return
	}
	s.callbacks.OnStatus(fmt.Sprintf("query from %s: %s", f.From, f.Body))
	s.sendFEC(NewUnproto(FrameResponse, s.cfg.MyCall, f.From, s.queryAnswer(f.Body)), StateSendRespBufWait)
}

// queryAnswer builds the response to version, time, info and flist queries.
func (s *Session) queryAnswer(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return "ERROR empty query"
	}
	switch strings.ToLower(fields[0]) {
	case "version":
		return s.cfg.Version
	case "time":
		return s.now().UTC().Format("2006-01-02 15:04:05 UTC")
	case "info":
		return strings.TrimSpace(fmt.Sprintf("%s %s %s", s.cfg.MyCall, s.cfg.GridSquare, s.cfg.BeaconText))
	case "flist":
		dir := ""
		if len(fields) > 1 {
			dir = fields[1]
		}
		if s.shares.Protected(dir) {
			return "ERROR access denied"
		}
		listing, err := s.shares.Listing(dir)
		if err != nil {
			return "ERROR " + errText(err)
		}
		if int64(len(listing)) > s.cfg.MaxMessageSize {
			listing = listing[:s.cfg.MaxMessageSize]
		}
		return string(listing)
	default:
		return "ERROR unknown query " + fields[0]
	}
}

// errText is the short form of an error sent to a peer.
func errText(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}

func (s *Session) handleBufWait(ev Event, p Param) bool {
	switch ev {
	case EvBuffer:
		if s.remaining() > 0 {
			return true
		}
		switch s.State() {
		case StateSendMsgBufWait:
			s.enter(StateRcvMsgAckWait, s.cfg.AckTimeout)
		case StateSendQueryBufWait:
			s.enter(StateRcvQueryRespWait, s.cfg.AckTimeout)
		default:
			s.disarm()
			s.setState(StateIdle)
		}
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "TNC buffer did not drain"), s.State().String())
		s.tncCommand(tncAbort)
		s.toIdle("transmit timeout")
	case EvFault:
		s.fail(NewError(ErrTransport, "TNC fault: "+p.Text), s.State().String())
		s.toIdle("TNC fault")
	default:
		return false
	}
	return true
}

func (s *Session) handleMsgAckWait(ev Event, p Param) bool {
	switch ev {
	case EvRcvAck:
		if !s.fromTarget(p.Frame) {
			return true
		}
		s.callbacks.OnStatus("message acknowledged by " + p.Frame.From)
		if s.lastSent != nil {
			m := MailMessage{From: s.lastSent.From, To: s.lastSent.To, Time: s.now(), Body: s.lastSent.Body}
			if _, err := s.mailbox.Append(BoxSent, m); err != nil {
				s.logger.Error("store sent message: %v", err)
			}
		}
		s.toIdle("message acknowledged")
	case EvRcvNak:
		if !s.fromTarget(p.Frame) {
			return true
		}
		s.naks++
		s.callbacks.OnStatus("message rejected by " + p.Frame.From)
		s.retransmit()
	case EvTimeout:
		s.retransmit()
	case EvAckTimeout:
		to := ""
		if s.lastSent != nil {
			to = s.lastSent.To
		}
		s.fail(NewError(ErrTimeout, fmt.Sprintf("no ack from %s after %d repeats", to, s.sendRepeats)), "send message")
		s.toIdle("ack timeout")
	default:
		return false
	}
	return true
}

func (s *Session) fromTarget(f *UnprotoFrame) bool {
	return s.lastSent != nil && f.From == s.lastSent.To && f.To == s.cfg.MyCall
}

// retransmit repeats the last message while repeats remain, downshifting
// the FEC mode before the final attempt.
func (s *Session) retransmit() {
	if s.lastSent == nil || (!s.unsent && s.sendRepeats >= s.cfg.SendRepeats) {
		s.Dispatch(EvAckTimeout, Param{})
		return
	}
	if s.holdForChannel() {
		return
	}
	if s.unsent {
		s.unsent = false
	} else {
		s.sendRepeats++
		if s.cfg.Downshift && s.sendRepeats == s.cfg.SendRepeats {
			if mode, ok := s.downshift().NextFEC(s.fecMode); ok {
				s.logger.Info("downshift FEC %s -> %s", s.fecMode, mode)
				s.fecMode = mode
				s.tncCommand(tncFECMode + " " + mode)
			}
		}
		s.callbacks.OnStatus(fmt.Sprintf("repeat %d/%d to %s", s.sendRepeats, s.cfg.SendRepeats, s.lastSent.To))
	}
	s.setState(StateIdle)
	s.sendFEC(s.lastSent, StateSendMsgBufWait)
}

// holdForChannel keeps a pending message in the ack wait while the
// channel is busy and reports whether it did. A channel that stays busy
// past TxTimeout abandons the message.
func (s *Session) holdForChannel() bool {
	err := s.channelClear()
	if err == nil {
		s.heldSince = time.Time{}
		return false
	}
	now := s.now()
	if s.heldSince.IsZero() {
		s.heldSince = now
	}
	if now.Sub(s.heldSince) >= s.cfg.TxTimeout {
		s.fail(WrapError(ErrBusy, "message to "+s.lastSent.To+" not sent", err), "send message")
		s.toIdle("channel busy")
		return true
	}
	s.logger.Debug("holding message to %s: %v", s.lastSent.To, err)
	s.enter(StateRcvMsgAckWait, s.busyRetry())
	return true
}

func (s *Session) busyRetry() time.Duration {
	if s.cfg.BusyRetryInterval > 0 {
		return s.cfg.BusyRetryInterval
	}
	return time.Second
}

func (s *Session) handleQueryRespWait(ev Event, p Param) bool {
	switch ev {
	case EvRcvResp:
		if !s.fromTarget(p.Frame) {
			return true
		}
		if !p.Frame.CheckCRC() {
			s.fail(NewError(ErrIntegrity, "response from "+p.Frame.From+" failed checksum"), "query")
		} else {
			s.callbacks.OnResponse(p.Frame.From, p.Frame.Body)
		}
		s.toIdle("response received")
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "no response to query"), "query")
		s.toIdle("query timeout")
	default:
		return false
	}
	return true
}

func (s *Session) handlePingWait(ev Event, p Param) bool {
	pilot := s.State() == StatePilotPingAckWait
	switch ev {
	case EvPingAck:
		s.callbacks.OnStatus(fmt.Sprintf("PINGACK snr %s quality %d", p.Text, p.N))
		if !pilot {
			s.disarm()
			s.setState(StateIdle)
			return true
		}
		f := s.pilot
		s.pilot = nil
		if p.N < s.cfg.PilotPingThreshold || f == nil {
			s.fail(NewError(ErrTransport, fmt.Sprintf("pilot ping quality %d below %d", p.N, s.cfg.PilotPingThreshold)), "send message")
			s.toIdle("pilot ping quality")
			return true
		}
		s.lastSent = f
		s.unsent = true
		s.retransmit()
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "no PINGACK"), "ping")
		s.tncCommand(tncAbort)
		s.toIdle("ping timeout")
	default:
		return false
	}
	return true
}

// pingTimeout is how long a ping of n repeats may take.
func pingTimeout(base time.Duration, n int) time.Duration {
	if n <= 1 {
		return base
	}
	return base + time.Duration(n-1)*2*time.Second
}
