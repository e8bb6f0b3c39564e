package arq

import (
	"bytes"
	"fmt"
	"strings"
)

// dial issues ARQCALL for the current connection.
func (s *Session) dial() {
	repeats := s.cfg.ConnectRepeats
	if repeats <= 0 {
		repeats = 1
	}
	if s.tncCommand(fmt.Sprintf("%s %s %d", tncARQCall, s.conn.Remote, repeats)) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.callbacks.OnStatus(fmt.Sprintf("calling %s at %s", s.conn.Remote, s.arqBW))
	s.enter(StateArqOutConnectWait, s.cfg.ConnectTimeout)
}

// connected starts a connected session with the station in p.Call.
func (s *Session) connected(p Param) {
	if s.conn == nil {
		s.conn = &Conn{}
	}
	if p.Call != "" {
		s.conn.Remote = p.Call
	}
	s.lineBuf = nil
	s.in, s.out = nil, nil
	s.disarm()
	s.setState(StateArqConnected)
	s.publishConn()
	s.callbacks.OnStatus(fmt.Sprintf("connected to %s %s", s.conn.Remote, p.Text))
}

func (s *Session) handleOutConnect(ev Event, p Param) bool {
	switch ev {
	case EvConnected:
		s.connected(p)
	case EvRejectedBW:
		mode, ok := s.downshift().NextARQ(s.arqBW)
		if !ok || s.connectTry >= s.cfg.ConnectRepeats {
			s.fail(NewError(ErrTransport, "call rejected by "+s.conn.Remote+": bandwidth"), "connect")
			s.toIdle("connect rejected")
			return true
		}
		s.connectTry++
		s.logger.Info("downshift ARQ bandwidth %s -> %s", s.arqBW, mode)
		s.arqBW = mode
		if s.tncCommand(tncARQBW+" "+mode) != nil {
			s.Dispatch(EvLinkError, Param{})
			return true
		}
		s.dial()
	case EvRejectedBusy:
		s.fail(NewError(ErrBusy, "call rejected by "+s.conn.Remote+": busy"), "connect")
		s.toIdle("connect rejected")
	case EvTarget:
		s.logger.Debug("target %s", p.Call)
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "no answer from "+s.conn.Remote), "connect")
		s.tncCommand(tncAbort)
		s.toIdle("connect timeout")
	default:
		return false
	}
	return true
}

func (s *Session) handleInPending(ev Event, p Param) bool {
	switch ev {
	case EvConnected:
		s.connected(p)
	case EvTarget:
		s.callbacks.OnStatus("incoming call for " + p.Call)
	case EvCancelPending:
		s.toIdle("pending connection cancelled")
	case EvTimeout:
		s.toIdle("pending connection timed out")
	default:
		return false
	}
	return true
}

func (s *Session) handleDisconnectWait(ev Event, _ Param) bool {
	switch ev {
	case EvTimeout:
		s.fail(NewError(ErrTimeout, "disconnect not confirmed"), "disconnect")
		s.tncCommand(tncAbort)
		s.toIdle("disconnect timeout")
	default:
		return false
	}
	return true
}

// disconnect starts an orderly disconnect from any connected state.
func (s *Session) disconnect() {
	s.status.setDisconnecting(true)
	s.in, s.out = nil, nil
	if s.tncCommand(tncDisconnect) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.enter(StateArqDisconnectWait, s.cfg.DisconnectTimeout)
}

func (s *Session) handleConnected(ev Event, p Param) bool {
	switch ev {
	case EvArqFPUT:
		s.serveFPUT(p.Cmd)
	case EvArqFGET:
		s.serveFGET(p.Cmd)
	case EvArqFLGET:
		s.serveFLGET(p.Cmd)
	case EvArqFLPUT:
		s.acceptListing(p.Cmd)
	case EvArqMPUT:
		s.acceptMessage(p.Cmd)
	case EvArqMGET:
		s.serveMGET(p.Cmd)
	case EvArqMLIST:
		s.serveMLIST()
	case EvArqAUTH:
		s.beginChallenge(p.Cmd, false)
	case EvArqA1:
		s.answerChallenge(p.Cmd, StateArqConnected)
	case EvArqA2, EvArqA3:
		s.sendLine(CmdEAUTH)
		s.fail(NewError(ErrAuth, p.Cmd.Name+" outside an authentication exchange"), "auth")
	case EvArqOK:
		s.callbacks.OnStatus("remote: " + strings.TrimSpace(CmdOK+" "+p.Cmd.Text))
	case EvArqError:
		s.callbacks.OnStatus("remote: " + CmdERROR + " " + p.Cmd.Text)
	case EvArqEAuth:
		s.callbacks.OnStatus("remote refused authentication")
	case EvOpDisconnect:
		s.disconnect()
	case EvOpFileSend:
		s.putFile(p)
	case EvOpFileGet:
		if p.Text == "" {
			s.fail(NewError(ErrSyntax, "no file name"), "get file")
			return true
		}
		s.request(&Command{Name: CmdFGET, Compress: p.Compress, Args: []string{p.Text}, Dest: p.Dest}, StateArqFileRcvWait)
		if s.conn != nil {
			s.conn.dest = p.Dest
		}
	case EvOpFlistGet:
		c := &Command{Name: CmdFLGET, Compress: p.Compress}
		if p.Text != "" {
			c.Args = []string{p.Text}
		}
		s.request(c, StateArqFlistRcvWait)
	case EvOpMsgSend:
		s.putMessage(p)
	case EvOpMsgGet:
		c := &Command{Name: CmdMGET, Compress: p.Compress}
		if p.N > 0 {
			c.Args = []string{fmt.Sprint(p.N)}
		}
		s.conn.mgetActive = true
		s.conn.received = 0
		s.request(c, StateArqMsgRcvWait)
	case EvOpMsgList:
		s.request(&Command{Name: CmdMLIST}, StateArqFlistRcvWait)
	case EvOpAuth:
		c := &Command{Name: CmdAUTH}
		if p.Text != "" {
			c.Args = []string{p.Text}
		}
		s.request(c, StateArqAuthRcvA1Wait)
	case EvBuffer, EvNewState, EvBusy:
	default:
		return false
	}
	return true
}

// request sends a client command and waits for the answer in next.
func (s *Session) request(c *Command, next State) {
	c.Line = c.render()
	if s.conn != nil {
		s.conn.request = c
	}
	if s.sendLine(c.Line) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.enter(next, s.cfg.ArqTimeout)
}

// render builds the wire form of a locally issued command.
func (c *Command) render() string {
	parts := []string{c.Name}
	if c.Compress {
		parts = append(parts, compressFlag)
	}
	parts = append(parts, c.Args...)
	if c.Dest != "" {
		parts = append(parts, destMarker, c.Dest)
	}
	return strings.Join(parts, " ")
}

// arqData consumes one frame of connected-mode data. Lines are commands;
// bytes that follow an announcement belong to its transfer.
func (s *Session) arqData(data []byte) {
	for len(data) > 0 {
		if s.in != nil {
			s.feedInbound(data)
			return
		}
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			s.lineBuf = append(s.lineBuf, data...)
			if len(s.lineBuf) > maxLineLen {
				s.lineBuf = nil
				s.sendLine(CmdERROR + " Line too long")
				s.fail(NewError(ErrSyntax, "command line too long"), "arq")
			}
			return
		}
		line := string(append(s.lineBuf, data[:i]...))
		s.lineBuf = nil
		data = data[i+1:]
		s.commandLine(line)
	}
}

// commandLine parses one received line and dispatches it.
func (s *Session) commandLine(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	s.logger.Debug("%s", formatWireLog("arq <", []byte(line)))
	cmd, err := ParseCommand(line)
	switch {
	case cmd == nil:
		remote := ""
		if s.conn != nil {
			remote = s.conn.Remote
		}
		s.callbacks.OnStatus(remote + ": " + line)
	case err != nil && commandEvent(cmd.Name) == EvArqUnknown:
		s.Dispatch(EvArqUnknown, Param{Cmd: cmd, Text: line})
	case err != nil:
		s.fail(err, "arq")
		s.sendLine(CmdERROR + " " + errText(err))
		if a := partialAnnouncement(cmd); a > 0 {
			s.in = NewDiscard(a)
		}
	default:
		s.Dispatch(commandEvent(cmd.Name), Param{Cmd: cmd, Text: line})
	}
}

// partialAnnouncement recovers the declared size of a malformed
// announcement so its payload can still be swallowed.
func partialAnnouncement(cmd *Command) int64 {
	switch cmd.Name {
	case CmdFPUT, CmdFLPUT, CmdMPUT:
	default:
		return 0
	}
	if a, err := ParseAnnouncement(cmd); err == nil {
		return a.Size
	}
	return 0
}

// feedInbound hands transfer bytes to the active inbound record.
func (s *Session) feedInbound(data []byte) {
	in := s.in
	still, err := in.OnReceive(data)
	if !in.Discarding() {
		s.progress.Update(in.Received())
	}
	if still {
		s.refresh()
		return
	}
	s.in = nil
	if in.Discarding() {
		s.logger.Debug("discarded %d bytes of rejected transfer", in.Size)
		return
	}
	if err != nil {
		s.fail(err, "receive "+in.Kind.String())
		s.Dispatch(EvXferError, Param{Text: errText(err)})
		return
	}
	s.callbacks.OnTransferComplete(in.Name, in.Size, true, s.progress.Complete())
	s.Dispatch(EvXferDone, Param{Text: in.Name, N: int(in.Size)})
}
