package hostmode

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// bringupState is one step of switching the TNC into host mode.
type bringupState int

const (
	bringProbe    bringupState = iota // wait for the command prompt
	bringExitHost                     // leave a host mode left over from a previous run
	bringProtocol                     // set the protocol mode
	bringEnter                        // enter host mode
	bringVerify                       // first framed exchange
)

func (s bringupState) String() string {
	switch s {
	case bringProbe:
		return "probe"
	case bringExitHost:
		return "exit-host"
	case bringProtocol:
		return "protocol"
	case bringEnter:
		return "enter"
	case bringVerify:
		return "verify"
	default:
		return "unknown"
	}
}

const (
	promptToken  = "cmd:"
	enterHostCmd = "JHOST4"
	exitHostCmd  = "JHOST0"
	protocolCmd  = "PROTOCOLMODE"
)

// Attach drives the TNC from its command line into host mode. Each step
// waits at most StepTimeout and is retried up to Retries times; running out
// of retries yields ErrNotAttached.
func (l *Link) Attach(ctx context.Context) error {
	if err := l.port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		return err
	}
	state := bringProbe
	tries := 0
	verifyTries := 0
	exitTried := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.logger.Debug("hostmode: bring-up %s (try %d)", state, tries+1)

		switch state {
		case bringProbe:
			if err := l.write([]byte("\r")); err != nil {
				return err
			}
			if l.waitText(ctx, promptToken, l.cfg.StepTimeout) {
				state, tries = bringProtocol, 0
				continue
			}
			tries++
			if !exitTried {
				// no prompt: the TNC may still be in host mode
				state = bringExitHost
				continue
			}
			if tries > l.cfg.Retries {
				return fmt.Errorf("%w: no command prompt", ErrNotAttached)
			}

		case bringExitHost:
			exitTried = true
			l.exitHostRaw()
			state = bringProbe

		case bringProtocol:
			cmd := fmt.Sprintf("%s %s\r", protocolCmd, l.cfg.Protocol)
			if err := l.write([]byte(cmd)); err != nil {
				return err
			}
			if l.waitText(ctx, promptToken, l.cfg.StepTimeout) {
				state, tries = bringEnter, 0
				continue
			}
			tries++
			if tries > l.cfg.Retries {
				return fmt.Errorf("%w: %s not accepted", ErrNotAttached, protocolCmd)
			}

		case bringEnter:
			if err := l.write([]byte(enterHostCmd + "\r")); err != nil {
				return err
			}
			l.drain(l.cfg.ReadTimeout)
			l.enc.Reset()
			l.dec.Reset()
			state = bringVerify

		case bringVerify:
			resp, err := l.exchange(ctx, generalPoll)
			if err != nil {
				verifyTries++
				if verifyTries > l.cfg.Retries {
					return fmt.Errorf("%w: %v", ErrNotAttached, err)
				}
				// fall back to the command line and enter again
				state = bringExitHost
				exitTried = true
				continue
			}
			l.setAttached(true)
			l.logger.Info("hostmode: attached")
			l.handler(Event{Kind: EventAttached})
			l.deliver(generalPoll, resp)
			return nil
		}
	}
}

// Detach leaves host mode with a framed exit command. It is best effort:
// the TNC may already be gone.
func (l *Link) Detach() {
	if !l.Attached() {
		return
	}
	l.setAttached(false)
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FrameTimeout*2)
	defer cancel()
	if _, err := l.exchange(ctx, outFrame{channel: ChanCommand, op: HostCommand, payload: []byte(exitHostCmd)}); err != nil {
		l.logger.Error("hostmode: exit host mode: %v", err)
	}
	l.logger.Info("hostmode: detached")
	l.handler(Event{Kind: EventDetached, Text: "host mode exited"})
}

// exitHostRaw writes a framed exit command with a fresh sequence and does
// not wait for an answer.
func (l *Link) exitHostRaw() {
	l.enc.Reset()
	raw, _ := l.enc.Encode(ChanCommand, HostCommand, []byte(exitHostCmd))
	if err := l.write(raw); err != nil {
		return
	}
	l.drain(l.cfg.StepTimeout / 4)
	l.enc.Reset()
}

// waitText reads plain text until token shows up or timeout passes.
func (l *Link) waitText(ctx context.Context, token string, timeout time.Duration) bool {
	l.text = l.text[:0]
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		n, err := l.read()
		if err != nil {
			return false
		}
		if n == 0 {
			continue
		}
		l.text = append(l.text, l.rbuf[:n]...)
		if bytes.Contains(l.text, []byte(token)) {
			return true
		}
		if len(l.text) > 1024 {
			l.text = append(l.text[:0], l.text[len(l.text)-len(token):]...)
		}
	}
	return false
}

// drain discards pending input, waiting at most d.
func (l *Link) drain(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		n, err := l.read()
		if err != nil || n == 0 {
			return
		}
	}
}
