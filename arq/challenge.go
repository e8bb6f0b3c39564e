package arq

import (
	"fmt"
)

// beginChallenge sends /A1 for the request cmd. With replay set the
// request is served once the exchange succeeds.
func (s *Session) beginChallenge(cmd *Command, replay bool) {
	ch, err := BeginChallenge(s.creds, s.conn.Remote, s.cfg.MyCall, requestMethod(cmd), requestPath(cmd))
	if err != nil {
		s.sendLine(CmdEAUTH)
		s.Dispatch(EvAuthError, Param{Text: errText(err)})
		return
	}
	s.conn.challenge = ch
	s.conn.pending = nil
	if replay {
		s.conn.pending = cmd
	}
	if s.sendLine(CmdA1+" "+ch.Nonce) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.enter(StateArqAuthRcvA2Wait, s.cfg.ArqTimeout)
}

// handleServerAuth waits for the client response to our nonce.
func (s *Session) handleServerAuth(ev Event, p Param) bool {
	switch ev {
	case EvArqA2:
		ch := s.conn.challenge
		if ch == nil {
			return false
		}
		a3, err := ch.VerifyA2(p.Cmd.Arg(0), p.Cmd.Arg(1))
		if err != nil {
			s.sendLine(CmdEAUTH)
			s.Dispatch(EvAuthError, Param{Text: errText(err)})
			return true
		}
		s.sendLine(CmdA3 + " " + a3)
		s.authenticated()
		s.disarm()
		s.setState(StateArqConnected)
		s.Dispatch(EvAuthOK, Param{Text: ch.Path})

		pending := s.conn.pending
		s.conn.pending = nil
		if pending != nil {
			s.logger.Debug("replaying %s", pending.Line)
			s.Dispatch(commandEvent(pending.Name), Param{Cmd: pending, Text: pending.Line})
		}
	case EvArqEAuth, EvArqError:
		s.Dispatch(EvAuthError, Param{Text: "client abandoned authentication"})
	case EvArqFPUT, EvArqFGET, EvArqFLPUT, EvArqFLGET, EvArqMPUT, EvArqMGET, EvArqMLIST, EvArqAUTH, EvArqA3:
		s.sendLine(CmdEAUTH)
		s.Dispatch(EvAuthError, Param{Text: "expected " + CmdA2 + ", got " + p.Cmd.Name})
	case EvTimeout:
		s.conn.challenge, s.conn.pending = nil, nil
		s.fail(NewError(ErrTimeout, "no "+CmdA2+" from "+s.conn.Remote), "auth")
		s.setState(StateArqConnected)
	default:
		return false
	}
	return true
}

// answerChallenge answers /A1 received while in resume.
func (s *Session) answerChallenge(cmd *Command, resume State) {
	method, path := authMethod, ""
	if req := s.conn.request; req != nil {
		method, path = requestMethod(req), requestPath(req)
	}
	ch, a2, err := AnswerChallenge(s.creds, s.conn.Remote, s.cfg.MyCall, method, path, cmd.Arg(0))
	if err != nil {
		s.sendLine(CmdEAUTH)
		s.Dispatch(EvAuthError, Param{Text: errText(err)})
		return
	}
	s.conn.challenge = ch
	s.conn.resume = resume
	if s.sendLine(CmdA2+" "+a2+" "+ch.CNonce) != nil {
		s.Dispatch(EvLinkError, Param{})
		return
	}
	s.enter(StateArqAuthRcvA3Wait, s.cfg.ArqTimeout)
}

// handleClientAuth covers the client side: waiting for /A1 after an
// explicit /AUTH, and for /A3 after our response.
func (s *Session) handleClientAuth(ev Event, p Param) bool {
	st := s.State()
	switch {
	case ev == EvArqA1 && st == StateArqAuthRcvA1Wait:
		s.answerChallenge(p.Cmd, StateArqConnected)
	case ev == EvArqA3 && st == StateArqAuthRcvA3Wait:
		ch := s.conn.challenge
		if ch == nil {
			return false
		}
		if err := ch.VerifyA3(p.Cmd.Arg(0)); err != nil {
			s.sendLine(CmdEAUTH)
			s.Dispatch(EvAuthError, Param{Text: errText(err)})
			return true
		}
		s.authenticated()
		resume := s.conn.resume
		if resume == StateArqConnected || !resume.IsConnected() {
			s.disarm()
			s.setState(StateArqConnected)
		} else {
			s.enter(resume, s.cfg.ArqTimeout)
		}
		s.Dispatch(EvAuthOK, Param{Text: ch.Path})
	case ev == EvArqOK && st == StateArqAuthRcvA1Wait:
		s.callbacks.OnStatus("remote: " + CmdOK + " " + p.Cmd.Text)
		s.disarm()
		s.setState(StateArqConnected)
	case ev == EvArqEAuth:
		s.Dispatch(EvAuthError, Param{Text: "remote refused authentication"})
	case ev == EvArqError:
		s.conn.challenge = nil
		s.fail(NewError(ErrAuth, "remote: "+p.Cmd.Text), "auth")
		s.disarm()
		s.setState(StateArqConnected)
	case ev == EvTimeout:
		s.conn.challenge = nil
		s.fail(NewError(ErrTimeout, "authentication timed out"), "auth")
		s.setState(StateArqConnected)
	default:
		return false
	}
	return true
}

func (s *Session) authenticated() {
	s.conn.Authenticated = true
	s.conn.challenge = nil
	s.publishConn()
}

// authOutcome handles the result events of an exchange in any connected
// state. A failure returns to connected, unauthenticated.
func (s *Session) authOutcome(ev Event, p Param) {
	switch ev {
	case EvAuthOK:
		s.callbacks.OnStatus(fmt.Sprintf("authenticated with %s", s.conn.Remote))
	case EvAuthError:
		s.conn.challenge, s.conn.pending = nil, nil
		s.conn.Authenticated = false
		s.publishConn()
		s.fail(NewError(ErrAuth, p.Text), "auth")
		s.disarm()
		s.setState(StateArqConnected)
	}
}
