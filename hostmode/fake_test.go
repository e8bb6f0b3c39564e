package hostmode

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// fakeTNC is a scripted TNC behind a Port. It answers the bring-up text
// dialogue and then every host frame with exactly one frame.
type fakeTNC struct {
	mu       sync.Mutex
	out      bytes.Buffer
	hostMode bool
	text     []byte
	dec      *Decoder

	silent      bool // never answer frames
	noPrompt    bool // never print the command prompt
	repeatFirst bool // ask for a repeat of the first data frame

	statuses []string
	data     [][]byte

	lines    []string // command-line input
	commands []string // framed commands
	received []byte   // framed data
	raw      [][]byte // every write in host mode
	closed   bool
}

func newFakeTNC() *fakeTNC {
	return &fakeTNC{dec: NewDecoder()}
}

func (f *fakeTNC) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.out.Len() == 0 {
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer f.mu.Unlock()
	return f.out.Read(p)
}

func (f *fakeTNC) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hostMode {
		for _, c := range p {
			if c != '\r' {
				f.text = append(f.text, c)
				continue
			}
			line := string(f.text)
			f.text = f.text[:0]
			f.lines = append(f.lines, line)
			if line == enterHostCmd {
				f.hostMode = true
				f.dec.Reset()
				continue
			}
			if !f.noPrompt {
				f.out.WriteString(line + "\r\ncmd: ")
			}
		}
		return len(p), nil
	}

	f.raw = append(f.raw, append([]byte(nil), p...))
	for _, r := range f.dec.Feed(p) {
		if r.Err != nil || r.Repeat {
			continue
		}
		f.answer(r.Frame)
	}
	return len(p), nil
}

func (f *fakeTNC) answer(fr Frame) {
	if f.silent {
		return
	}
	reply := func(ch, op byte, payload []byte) {
		if fr.Seq {
			op |= SeqBit
		}
		raw, _ := AppendFrame(nil, ch, op, payload)
		f.out.Write(raw)
	}

	switch {
	case fr.Channel == ChanPoll:
		var chans []byte
		if len(f.statuses) > 0 {
			chans = append(chans, ChanCommand)
		}
		if len(f.data) > 0 {
			chans = append(chans, ChanData)
		}
		reply(ChanPoll, OpOKMsg, chans)
	case fr.Op == HostCommand && fr.Text() == "G":
		if fr.Channel == ChanCommand && len(f.statuses) > 0 {
			s := f.statuses[0]
			f.statuses = f.statuses[1:]
			reply(ChanCommand, OpOKMsg, []byte(s))
			return
		}
		if fr.Channel == ChanData && len(f.data) > 0 {
			d := f.data[0]
			f.data = f.data[1:]
			reply(ChanData, OpData, d)
			return
		}
		reply(fr.Channel, OpOK, nil)
	case fr.Channel == ChanCommand:
		f.commands = append(f.commands, fr.Text())
		if strings.HasPrefix(fr.Text(), "BOGUS") {
			reply(ChanCommand, OpFailMsg, []byte("unknown command"))
			return
		}
		reply(ChanCommand, OpOK, nil)
		if fr.Text() == exitHostCmd {
			f.hostMode = false
		}
	case fr.Channel == ChanData:
		if f.repeatFirst {
			f.repeatFirst = false
			f.out.Write(RepeatRequest)
			return
		}
		f.received = append(f.received, fr.Payload...)
		reply(ChanData, OpOK, nil)
	}
}

func (f *fakeTNC) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTNC) SetReadTimeout(time.Duration) error { return nil }

func (f *fakeTNC) snapshot(fn func(f *fakeTNC)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func testLinkConfig() *LinkConfig {
	return &LinkConfig{
		Protocol:     "ARQ",
		StepTimeout:  200 * time.Millisecond,
		FrameTimeout: 100 * time.Millisecond,
		Retries:      1,
		Reattach:     0,
		PollInterval: 5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
	}
}

// eventLog collects link events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) handle(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) find(kind EventKind, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.Kind == kind && (text == "" || ev.Text == text || string(ev.Data) == text) {
			return true
		}
	}
	return false
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
