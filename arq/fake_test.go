package arq

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drunlade/go-hostarq/hostmode"
)

// fakeLink records what the session hands to the TNC.
type fakeLink struct {
	mu       sync.Mutex
	commands []string
	data     [][]byte
	queued   int
	err      error
}

func (l *fakeLink) Command(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.commands = append(l.commands, cmd)
	return nil
}

func (l *fakeLink) Data(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.data = append(l.data, append([]byte(nil), p...))
	return nil
}

func (l *fakeLink) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

func (l *fakeLink) hasCommand(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (l *fakeLink) countCommand(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// lines returns every ARQ line sent, in order.
func (l *fakeLink) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, d := range l.data {
		for _, line := range strings.Split(string(d), "\n") {
			if strings.HasPrefix(line, "/") {
				out = append(out, line)
			}
		}
	}
	return out
}

func (l *fakeLink) lastData() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.data) == 0 {
		return nil
	}
	return l.data[len(l.data)-1]
}

// takeData removes and returns everything sent so far.
func (l *fakeLink) takeData() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.data
	l.data = nil
	return out
}

func (l *fakeLink) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands, l.data = nil, nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recorder collects callback output.
type recorder struct {
	mu          sync.Mutex
	status      []string
	errors      []error
	messages    []MailMessage
	responses   []string
	listings    map[string][]byte
	heard       []string
	transitions []Transition
}

func (r *recorder) callbacks() *Callbacks {
	r.listings = make(map[string][]byte)
	return &Callbacks{
		OnStatus: func(msg string) {
			r.mu.Lock()
			r.status = append(r.status, msg)
			r.mu.Unlock()
		},
		OnError: func(err error, _ string) {
			r.mu.Lock()
			r.errors = append(r.errors, err)
			r.mu.Unlock()
		},
		OnMessage: func(m MailMessage) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		OnResponse: func(from, body string) {
			r.mu.Lock()
			r.responses = append(r.responses, from+": "+body)
			r.mu.Unlock()
		},
		OnListing: func(name string, listing []byte) {
			r.mu.Lock()
			r.listings[name] = listing
			r.mu.Unlock()
		},
		OnHeard: func(call, info string) {
			r.mu.Lock()
			r.heard = append(r.heard, call+" "+info)
			r.mu.Unlock()
		},
		OnTransition: func(t Transition) {
			r.mu.Lock()
			r.transitions = append(r.transitions, t)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) hasError(pred func(error) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, err := range r.errors {
		if pred(err) {
			return true
		}
	}
	return false
}

// station bundles a session with its fakes.
type station struct {
	*Session
	link  *fakeLink
	clock *fakeClock
	rec   *recorder
	mail  *MemMailbox
}

func testConfig(call string) *Config {
	cfg := DefaultConfig()
	cfg.MyCall = call
	cfg.GridSquare = "FN42"
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func newStation(t *testing.T, cfg *Config, opts ...Option) *station {
	t.Helper()
	st := &station{
		link:  &fakeLink{},
		clock: &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)},
		rec:   &recorder{},
		mail:  NewMemMailbox(),
	}
	all := []Option{
		WithConfig(cfg),
		WithClock(st.clock.Now),
		WithCallbacks(st.rec.callbacks()),
		WithMailbox(st.mail),
	}
	st.Session = NewSession(st.link, append(all, opts...)...)
	return st
}

// tnc feeds a TNC status line through the link handler and dispatches
// whatever it queued.
func (st *station) tnc(line string) {
	st.HandleLink(hostmode.Event{Kind: hostmode.EventStatus, Text: line})
	st.drain()
}

// attach brings the session up as if host mode had just been entered.
func (st *station) attach() {
	st.HandleLink(hostmode.Event{Kind: hostmode.EventAttached})
	st.drain()
	st.link.reset()
}

// arq delivers connected-mode bytes from the remote station.
func (st *station) arq(data string) {
	st.HandleLink(hostmode.Event{Kind: hostmode.EventData, Data: append([]byte(dataARQ), data...)})
	st.drain()
}

// fec delivers an unproto frame.
func (st *station) fec(f *UnprotoFrame) {
	st.HandleLink(hostmode.Event{Kind: hostmode.EventData, Data: append([]byte(dataFEC), f.Encode()...)})
	st.drain()
}

func (st *station) drain() {
	for {
		select {
		case q := <-st.events:
			st.Dispatch(q.ev, q.p)
		default:
			return
		}
	}
}

// tick advances the clock by d and runs the timeout check.
func (st *station) tick(d time.Duration) {
	st.clock.Advance(d)
	st.Dispatch(EvTick, Param{})
}

// connect walks an idle session into the connected state with remote.
func (st *station) connect(t *testing.T, remote string) {
	t.Helper()
	st.tnc("PENDING")
	st.tnc("CONNECTED " + remote + " 500")
	if got := st.State(); got != StateArqConnected {
		t.Fatalf("state = %s, want %s", got, StateArqConnected)
	}
	st.link.reset()
}

// pump carries connected-mode data between two stations until both are
// quiet.
func pump(t *testing.T, a, b *station) {
	t.Helper()
	for i := 0; i < 50; i++ {
		moved := false
		for _, d := range a.link.takeData() {
			b.arq(string(d))
			moved = true
		}
		for _, d := range b.link.takeData() {
			a.arq(string(d))
			moved = true
		}
		if !moved {
			return
		}
	}
	t.Fatal("stations never went quiet")
}

func wantState(t *testing.T, st *station, want State) {
	t.Helper()
	if got := st.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}
