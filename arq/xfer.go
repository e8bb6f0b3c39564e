package arq

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// startSend queues announcement and payload and enters a send state.
func (s *Session) startSend(kind Kind, name, dest string, payload []byte, compress bool, next State) bool {
	o, err := BeginSend(kind, name, dest, payload, compress)
	if err != nil {
		s.fail(err, "send "+kind.String())
		return false
	}
	s.out = o
	if s.sendData(o.Wire()) != nil {
		s.Dispatch(EvLinkError, Param{})
		return false
	}
	s.progress.Start(name, o.Size)
	s.callbacks.OnTransferStart(name, o.Size, false)
	s.enter(next, s.cfg.ArqTimeout)
	return true
}

// startReceive creates the inbound record for an accepted announcement.
func (s *Session) startReceive(a *Announcement, limit int64, commit func([]byte) error, next State) {
	s.in = NewInbound(a, limit, commit)
	s.progress.Start(a.Name, a.Size)
	s.callbacks.OnTransferStart(a.Name, a.Size, true)
	s.enter(next, s.cfg.ArqTimeout)
	if a.Size == 0 {
		s.feedInbound(nil)
	}
}

// reject refuses an announcement and swallows its payload.
func (s *Session) reject(a *Announcement, err error) {
	s.fail(err, "receive "+a.Kind.String())
	s.sendLine(CmdERROR + " " + errText(err))
	if a.Size > 0 {
		s.in = NewDiscard(a.Size)
	}
}

// requestPath is the resource a request names; it is the path of the
// digest exchange it may trigger.
func requestPath(c *Command) string {
	switch c.Name {
	case CmdFPUT:
		return c.Dest
	case CmdFGET, CmdFLGET, CmdAUTH:
		return c.Arg(0)
	}
	return ""
}

func requestMethod(c *Command) string {
	return strings.TrimPrefix(c.Name, "/")
}

// acceptFile handles /FPUT. requested is set when the file answers our own
// /FGET, which writes into the local directory chosen by the operator.
func (s *Session) acceptFile(cmd *Command, requested bool) {
	a, err := ParseAnnouncement(cmd)
	if err != nil {
		s.fail(err, "receive file")
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	if a.Size > s.cfg.MaxFileSize {
		s.reject(a, NewError(ErrResource, fmt.Sprintf("File too large (%d > %d)", a.Size, s.cfg.MaxFileSize)))
		return
	}
	dest := a.Dest
	if requested && s.conn != nil {
		dest = s.conn.dest
	}
	target, err := s.shares.ResolveDest(dest, a.Name)
	if err != nil {
		s.reject(a, err)
		return
	}
	if !requested && s.shares.Protected(dest) && !s.conn.Authenticated {
		s.reject(a, NewError(ErrAuth, "Authentication required"))
		return
	}
	name := a.Name
	s.startReceive(a, s.cfg.MaxFileSize, func(payload []byte) error {
		if err := writeFileAtomic(target, payload, 0644); err != nil {
			return WrapError(ErrResource, "Cannot write "+name, err)
		}
		s.callbacks.OnStatus(fmt.Sprintf("received file %s (%d bytes)", name, len(payload)))
		return nil
	}, StateArqFileRcv)
}

// acceptListing handles /FLPUT.
func (s *Session) acceptListing(cmd *Command) {
	a, err := ParseAnnouncement(cmd)
	if err != nil {
		s.fail(err, "receive listing")
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	if a.Size > s.cfg.MaxFileSize {
		s.reject(a, NewError(ErrResource, "Listing too large"))
		return
	}
	name := a.Name
	s.startReceive(a, s.cfg.MaxFileSize, func(payload []byte) error {
		s.callbacks.OnListing(name, payload)
		return nil
	}, StateArqFlistRcv)
}

// acceptMessage handles /MPUT. Messages for other stations are queued in
// the outbox for pickup.
func (s *Session) acceptMessage(cmd *Command) {
	a, err := ParseAnnouncement(cmd)
	if err != nil {
		s.fail(err, "receive message")
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	if a.Size > s.cfg.MaxMessageSize {
		s.reject(a, NewError(ErrResource, "Message too large"))
		return
	}
	remote := ""
	if s.conn != nil {
		remote = s.conn.Remote
	}
	to := a.Name
	s.startReceive(a, s.cfg.MaxMessageSize, func(payload []byte) error {
		m, err := ParseMailMessage(payload)
		if err != nil {
			m = MailMessage{Body: string(payload)}
		}
		if m.From == "" {
			m.From = remote
		}
		if m.To == "" {
			m.To = to
		}
		if m.Time.IsZero() {
			m.Time = s.now()
		}
		box := BoxIn
		if !strings.EqualFold(to, s.cfg.MyCall) {
			box = BoxOut
		}
		id, err := s.mailbox.Append(box, m)
		if err != nil {
			return WrapError(ErrResource, "Cannot store message", err)
		}
		m.ID = id
		if box == BoxIn {
			s.callbacks.OnMessage(m)
		} else {
			s.callbacks.OnStatus(fmt.Sprintf("queued message from %s for %s", m.From, m.To))
		}
		return nil
	}, StateArqMsgRcv)
}

// serveFPUT handles an upload from the remote station.
func (s *Session) serveFPUT(cmd *Command) {
	s.acceptFile(cmd, false)
}

// serveFGET answers a download request.
func (s *Session) serveFGET(cmd *Command) {
	name := cmd.Arg(0)
	target, dir, err := s.shares.Resolve(name)
	if err != nil {
		s.fail(err, "serve "+CmdFGET)
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	if s.shares.Protected(dir) && !s.conn.Authenticated {
		s.beginChallenge(cmd, true)
		return
	}
	fi, err := os.Stat(target)
	if err != nil || !fi.Mode().IsRegular() {
		s.sendLine(CmdERROR + " File not found")
		return
	}
	if fi.Size() > s.cfg.MaxFileSize {
		s.sendLine(CmdERROR + " File too large")
		return
	}
	data, err := os.ReadFile(target)
	if err != nil {
		s.fail(WrapError(ErrResource, "read "+name, err), "serve "+CmdFGET)
		s.sendLine(CmdERROR + " Cannot read file")
		return
	}
	s.startSend(KindFile, path.Base(name), cmd.Dest, data, cmd.Compress, StateArqFileSend)
}

// serveFLGET answers a directory listing request.
func (s *Session) serveFLGET(cmd *Command) {
	dir := cmd.Arg(0)
	if _, err := s.shares.ResolveDir(dir); err != nil {
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	if s.shares.Protected(dir) && !s.conn.Authenticated {
		s.beginChallenge(cmd, true)
		return
	}
	listing, err := s.shares.Listing(dir)
	if err != nil {
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	s.startSend(KindListing, dir, "", listing, cmd.Compress, StateArqFlistSend)
}

// serveMLIST answers with the headers of messages queued for the caller.
func (s *Session) serveMLIST() {
	msgs, err := s.mailbox.List(BoxOut, s.conn.Remote)
	if err != nil {
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	var b strings.Builder
	for _, m := range msgs {
		if full, err := s.mailbox.Read(BoxOut, m.ID); err == nil {
			m = full
		}
		b.WriteString(m.Header())
		b.WriteByte('\n')
	}
	s.startSend(KindListing, "", "", []byte(b.String()), false, StateArqFlistSend)
}

// serveMGET starts sending queued messages for the caller one at a time.
func (s *Session) serveMGET(cmd *Command) {
	msgs, err := s.mailbox.List(BoxOut, s.conn.Remote)
	if err != nil {
		s.sendLine(CmdERROR + " " + errText(err))
		return
	}
	var n int
	if cmd.Arg(0) != "" {
		fmt.Sscan(cmd.Arg(0), &n)
	}
	if n > 0 && n < len(msgs) {
		msgs = msgs[:n]
	}
	mg := &mgetServe{compress: cmd.Compress}
	for _, m := range msgs {
		mg.ids = append(mg.ids, m.ID)
	}
	s.conn.mget = mg
	s.sendNextMessage()
}

func (s *Session) sendNextMessage() {
	mg := s.conn.mget
	for len(mg.ids) > 0 {
		id := mg.ids[0]
		mg.ids = mg.ids[1:]
		m, err := s.mailbox.Read(BoxOut, id)
		if err != nil {
			s.logger.Error("read queued message %s: %v", id, err)
			continue
		}
		mg.current = id
		s.startSend(KindMessage, m.To, "", m.Marshal(), mg.compress, StateArqMsgSend)
		return
	}
	s.conn.mget = nil
	s.sendLine(fmt.Sprintf("%s %d", CmdOK, mg.sent))
	s.disarm()
	s.setState(StateArqConnected)
}

// putFile uploads a local file.
func (s *Session) putFile(p Param) {
	target, _, err := s.shares.Resolve(p.Text)
	if err != nil {
		s.fail(err, "send file")
		return
	}
	data, err := os.ReadFile(target)
	if err != nil {
		s.fail(WrapError(ErrResource, "read "+p.Text, err), "send file")
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		s.fail(NewError(ErrResource, fmt.Sprintf("%s exceeds %d bytes", p.Text, s.cfg.MaxFileSize)), "send file")
		return
	}
	s.conn.request = &Command{Name: CmdFPUT, Dest: p.Dest}
	s.startSend(KindFile, path.Base(p.Text), p.Dest, data, p.Compress, StateArqFileSend)
}

// putMessage sends a message over the connection.
func (s *Session) putMessage(p Param) {
	to := p.Call
	if to == "" {
		to = s.conn.Remote
	}
	if to == "" {
		s.fail(NewError(ErrSyntax, "message without addressee"), "send message")
		return
	}
	m := MailMessage{From: s.cfg.MyCall, To: to, Time: s.now(), Body: p.Text}
	payload := m.Marshal()
	if int64(len(payload)) > s.cfg.MaxMessageSize {
		s.fail(NewError(ErrResource, "message too large"), "send message")
		return
	}
	s.conn.request = &Command{Name: CmdMPUT}
	if s.startSend(KindMessage, to, "", payload, p.Compress, StateArqMsgSend) {
		s.conn.outMsg = &m
	}
}

func waitOK(st State) State {
	switch st {
	case StateArqFileSend:
		return StateArqFileSendWaitOK
	case StateArqFlistSend:
		return StateArqFlistSendWaitOK
	case StateArqMsgSend:
		return StateArqMsgSendWaitOK
	}
	return st
}

func (s *Session) handleSend(ev Event, p Param) bool {
	switch ev {
	case EvBuffer:
		if s.out == nil {
			return true
		}
		before := s.out.Sent()
		still := s.out.OnSendProgress(s.remaining())
		s.progress.Update(s.out.Sent())
		if s.out.Sent() > before {
			s.refresh()
		}
		if !still {
			s.enter(waitOK(s.State()), s.cfg.ArqTimeout)
		}
	case EvArqOK:
		s.sendComplete()
	case EvArqError, EvArqEAuth:
		s.sendRefused(p)
	case EvTimeout:
		s.sendTimeout()
	default:
		return false
	}
	return true
}

func (s *Session) handleSendWaitOK(ev Event, p Param) bool {
	switch ev {
	case EvArqOK:
		s.sendComplete()
	case EvArqError, EvArqEAuth:
		s.sendRefused(p)
	case EvTimeout:
		s.sendTimeout()
	default:
		return false
	}
	return true
}

func (s *Session) sendComplete() {
	out := s.out
	s.out = nil
	if out != nil {
		s.callbacks.OnTransferComplete(out.Name, out.Size, false, s.progress.Complete())
	}
	st := s.State()
	if st == StateArqMsgSend || st == StateArqMsgSendWaitOK {
		if mg := s.conn.mget; mg != nil {
			if m, err := s.mailbox.Read(BoxOut, mg.current); err == nil {
				if _, err := s.mailbox.Append(BoxSent, m); err != nil {
					s.logger.Error("store sent message: %v", err)
				}
				s.mailbox.Delete(BoxOut, mg.current)
			}
			mg.sent++
			s.sendNextMessage()
			return
		}
		if m := s.conn.outMsg; m != nil {
			if _, err := s.mailbox.Append(BoxSent, *m); err != nil {
				s.logger.Error("store sent message: %v", err)
			}
			s.conn.outMsg = nil
		}
	}
	if out != nil {
		s.callbacks.OnStatus(fmt.Sprintf("%s %s delivered", out.Kind, out.Name))
	}
	s.disarm()
	s.setState(StateArqConnected)
}

func (s *Session) sendRefused(p Param) {
	text := ""
	if p.Cmd != nil {
		text = strings.TrimSpace(p.Cmd.Name + " " + p.Cmd.Text)
	}
	errType := ErrResource
	if p.Cmd != nil && p.Cmd.Name == CmdEAUTH {
		errType = ErrAuth
	}
	s.fail(NewError(errType, "remote refused transfer: "+text), "send")
	s.out = nil
	s.conn.mget = nil
	s.conn.outMsg = nil
	s.disarm()
	s.setState(StateArqConnected)
}

func (s *Session) sendTimeout() {
	s.fail(NewError(ErrTimeout, "no confirmation from "+s.conn.Remote), "send")
	s.out = nil
	s.conn.mget = nil
	s.conn.outMsg = nil
	s.setState(StateArqConnected)
}

func (s *Session) handleRcvWait(ev Event, p Param) bool {
	st := s.State()
	switch ev {
	case EvArqFPUT, EvArqFLPUT, EvArqMPUT:
		switch {
		case ev == EvArqFPUT && st == StateArqFileRcvWait:
			s.acceptFile(p.Cmd, true)
		case ev == EvArqFLPUT && st == StateArqFlistRcvWait:
			s.acceptListing(p.Cmd)
		case ev == EvArqMPUT && st == StateArqMsgRcvWait:
			s.acceptMessage(p.Cmd)
		default:
			if a, err := ParseAnnouncement(p.Cmd); err == nil {
				s.reject(a, NewError(ErrSyntax, "Unexpected "+p.Cmd.Name))
			}
		}
	case EvArqOK:
		if st == StateArqMsgRcvWait {
			n := s.conn.received
			s.conn.mgetActive = false
			s.callbacks.OnStatus(fmt.Sprintf("%d messages received", n))
		} else {
			s.callbacks.OnStatus("remote: " + strings.TrimSpace(CmdOK+" "+p.Cmd.Text))
		}
		s.disarm()
		s.setState(StateArqConnected)
	case EvArqError:
		s.conn.mgetActive = false
		s.fail(NewError(ErrResource, "remote: "+p.Cmd.Text), "request")
		s.disarm()
		s.setState(StateArqConnected)
	case EvArqEAuth:
		s.conn.mgetActive = false
		s.Dispatch(EvAuthError, Param{Text: "remote refused authentication"})
	case EvArqA1:
		s.answerChallenge(p.Cmd, st)
	case EvTimeout:
		s.conn.mgetActive = false
		s.fail(NewError(ErrTimeout, "no answer to "+s.lastRequest()), "request")
		s.setState(StateArqConnected)
	default:
		return false
	}
	return true
}

// leftover swallows what is still owed of an abandoned inbound transfer.
func leftover(in *Inbound) *Inbound {
	if in == nil || in.Discarding() {
		return in
	}
	if n := in.Size - in.Received(); n > 0 {
		return NewDiscard(n)
	}
	return nil
}

func (s *Session) lastRequest() string {
	if s.conn == nil || s.conn.request == nil {
		return "request"
	}
	return s.conn.request.Name
}

func (s *Session) handleRcv(ev Event, p Param) bool {
	st := s.State()
	switch ev {
	case EvXferDone:
		s.sendLine(CmdOK)
		if st == StateArqMsgRcv && s.conn.mgetActive {
			s.conn.received++
			s.enter(StateArqMsgRcvWait, s.cfg.ArqTimeout)
			return true
		}
		s.disarm()
		s.setState(StateArqConnected)
	case EvXferError:
		s.sendLine(CmdERROR + " " + p.Text)
		s.conn.mgetActive = false
		s.disarm()
		s.setState(StateArqConnected)
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "transfer stalled"), "receive")
		s.in = leftover(s.in)
		s.conn.mgetActive = false
		s.setState(StateArqConnected)
	default:
		return false
	}
	return true
}
