package hostmode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// LinkConfig holds link worker configuration.
type LinkConfig struct {
	// Protocol is the value of PROTOCOLMODE set during bring-up.
	Protocol string

	// StepTimeout bounds each bring-up step.
	StepTimeout time.Duration

	// FrameTimeout bounds the wait for the TNC's answer to one frame.
	FrameTimeout time.Duration

	// Retries bounds bring-up step retries and frame retransmissions.
	Retries int

	// Reattach bounds how often Run re-enters host mode after the link
	// stops answering.
	Reattach int

	// PollInterval is the spacing of general polls while idle.
	PollInterval time.Duration

	// ReadTimeout is the bounded wait of a single port read.
	ReadTimeout time.Duration
}

// DefaultLinkConfig returns a default configuration.
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		Protocol:     "ARQ",
		StepTimeout:  3 * time.Second,
		FrameTimeout: 2 * time.Second,
		Retries:      3,
		Reattach:     2,
		PollInterval: 100 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
	}
}

// EventKind categorizes what the link delivers upward.
type EventKind int

const (
	EventStatus   EventKind = iota // status or command reply text
	EventFailure                   // command failure text
	EventData                      // payload bytes from the data channel
	EventLog                       // TNC log text
	EventAttached                  // host mode entered
	EventDetached                  // host mode left or lost
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventFailure:
		return "failure"
	case EventData:
		return "data"
	case EventLog:
		return "log"
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Event is one upward notification from the link.
type Event struct {
	Kind EventKind
	Text string
	Data []byte
	Err  error
}

type outFrame struct {
	channel byte
	op      byte
	payload []byte
}

var generalPoll = outFrame{channel: ChanPoll, op: HostCommand, payload: []byte("G")}

// Link owns the port to the TNC. Run executes bring-up and then the polled
// frame exchange; Command and Data may be called from any goroutine.
type Link struct {
	port    Port
	cfg     *LinkConfig
	logger  Logger
	handler func(Event)

	// owned by the Run goroutine
	enc  *Encoder
	dec  *Decoder
	rbuf []byte
	text []byte

	mu       sync.Mutex
	queue    []outFrame
	queued   int
	attached bool
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithLinkConfig sets the link configuration.
func WithLinkConfig(cfg *LinkConfig) LinkOption {
	return func(l *Link) {
		l.cfg = cfg
	}
}

// WithLinkLogger sets a logger for frame tracing.
func WithLinkLogger(logger Logger) LinkOption {
	return func(l *Link) {
		l.logger = logger
	}
}

// NewLink creates a link over port. handler receives every upward event on
// the Run goroutine and must not block for long.
func NewLink(port Port, handler func(Event), opts ...LinkOption) *Link {
	l := &Link{
		port:    port,
		cfg:     DefaultLinkConfig(),
		logger:  noopLogger{},
		handler: handler,
		enc:     NewEncoder(),
		dec:     NewDecoder(),
		rbuf:    make([]byte, 512),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.handler == nil {
		l.handler = func(Event) {}
	}
	return l
}

// Attached reports whether host mode is up.
func (l *Link) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attached
}

// Command queues a TNC command such as "ABORT" or "ARQCALL W1AW 5".
func (l *Link) Command(cmd string) error {
	if len(cmd) > MaxPayload {
		return ErrFrameTooLong
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.attached {
		return ErrNotAttached
	}
	l.queue = append(l.queue, outFrame{channel: ChanCommand, op: HostCommand, payload: []byte(cmd)})
	return nil
}

// Data queues payload bytes for the data channel, split into frames.
func (l *Link) Data(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.attached {
		return ErrNotAttached
	}
	for len(p) > 0 {
		n := len(p)
		if n > MaxPayload {
			n = MaxPayload
		}
		chunk := append([]byte(nil), p[:n]...)
		l.queue = append(l.queue, outFrame{channel: ChanData, op: HostData, payload: chunk})
		l.queued += n
		p = p[n:]
	}
	return nil
}

// Queued returns the data bytes not yet handed to the TNC.
func (l *Link) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

// Run brings host mode up and serves the link until ctx is done. A link
// that stops answering is re-attached up to Reattach times.
func (l *Link) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if err := l.Attach(ctx); err != nil {
			l.handler(Event{Kind: EventDetached, Text: ErrNotAttached.Error(), Err: err})
			return err
		}
		err := l.serve(ctx)
		if ctx.Err() != nil {
			l.Detach()
			return ctx.Err()
		}
		l.setAttached(false)
		l.handler(Event{Kind: EventDetached, Text: err.Error(), Err: err})
		if attempt >= l.cfg.Reattach {
			return err
		}
		l.logger.Info("hostmode: link lost (%v), re-attaching", err)
	}
}

func (l *Link) setAttached(v bool) {
	l.mu.Lock()
	l.attached = v
	if !v {
		l.queue = nil
		l.queued = 0
	}
	l.mu.Unlock()
}

func (l *Link) next() (outFrame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return outFrame{}, false
	}
	f := l.queue[0]
	l.queue = l.queue[1:]
	return f, true
}

func (l *Link) pushFront(frames ...outFrame) {
	l.mu.Lock()
	l.queue = append(append([]outFrame(nil), frames...), l.queue...)
	l.mu.Unlock()
}

func (l *Link) sent(f outFrame) {
	if f.channel != ChanData {
		return
	}
	l.mu.Lock()
	l.queued -= len(f.payload)
	if l.queued < 0 {
		l.queued = 0
	}
	l.mu.Unlock()
}

// serve runs the stop-and-wait exchange: queued frames first, a general
// poll whenever the queue is empty and the poll interval has passed.
func (l *Link) serve(ctx context.Context) error {
	var lastPoll time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := l.next()
		if !ok {
			if wait := l.cfg.PollInterval - time.Since(lastPoll); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			f = generalPoll
			lastPoll = time.Now()
		}
		resp, err := l.exchange(ctx, f)
		if err != nil {
			return err
		}
		l.sent(f)
		l.deliver(f, resp)
	}
}

// exchange sends one frame and waits for its answer, honoring repeat
// requests in both directions and retransmitting on silence.
func (l *Link) exchange(ctx context.Context, f outFrame) (Frame, error) {
	raw, err := l.enc.Encode(f.channel, f.op, f.payload)
	if err != nil {
		return Frame{}, err
	}
	l.dec.Expect(l.enc.Seq())
	l.logger.Debug("%s", formatFrameLog("TX", Frame{Channel: f.channel, Op: f.op, Seq: l.enc.Seq(), Payload: f.payload}))
	if err := l.write(raw); err != nil {
		return Frame{}, err
	}

	tries := 0
	deadline := time.Now().Add(l.cfg.FrameTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		n, err := l.read()
		if err != nil {
			return Frame{}, err
		}
		for _, r := range l.dec.Feed(l.rbuf[:n]) {
			switch {
			case r.Repeat:
				l.logger.Debug("hostmode: repeat requested")
				if err := l.write(l.enc.Last()); err != nil {
					return Frame{}, err
				}
			case errors.Is(r.Err, ErrCRC), errors.Is(r.Err, ErrStuffing):
				l.logger.Debug("hostmode: %v, requesting repeat", r.Err)
				if err := l.write(RepeatRequest); err != nil {
					return Frame{}, err
				}
			case r.Err != nil:
				l.logger.Debug("hostmode: discarded frame: %v", r.Err)
			default:
				l.logger.Debug("%s", formatFrameLog("RX", r.Frame))
				return r.Frame, nil
			}
		}
		if time.Now().After(deadline) {
			tries++
			if tries > l.cfg.Retries {
				return Frame{}, ErrNoResponse
			}
			l.logger.Debug("hostmode: no answer, retransmitting (%d/%d)", tries, l.cfg.Retries)
			if err := l.write(l.enc.Last()); err != nil {
				return Frame{}, err
			}
			deadline = time.Now().Add(l.cfg.FrameTimeout)
		}
	}
}

func (l *Link) write(p []byte) error {
	if _, err := l.port.Write(p); err != nil {
		l.logger.Error("hostmode: write: %v", err)
		return err
	}
	return nil
}

func (l *Link) read() (int, error) {
	n, err := l.port.Read(l.rbuf)
	if err != nil {
		l.logger.Error("hostmode: read: %v", err)
		return n, err
	}
	return n, nil
}

// deliver routes a TNC answer upward by channel and opcode.
func (l *Link) deliver(req outFrame, resp Frame) {
	if req.channel == ChanPoll {
		if resp.Op != OpOKMsg {
			return
		}
		var polls []outFrame
		for _, ch := range resp.Payload {
			if ch == 0 || ch == ChanPoll {
				continue
			}
			polls = append(polls, outFrame{channel: ch, op: HostCommand, payload: []byte("G")})
		}
		l.pushFront(polls...)
		return
	}

	switch resp.Op {
	case OpOK:
	case OpOKMsg:
		kind := EventStatus
		if resp.Channel == ChanLog {
			kind = EventLog
		}
		for _, line := range splitLines(resp.Text()) {
			l.handler(Event{Kind: kind, Text: line})
		}
	case OpFailMsg:
		l.handler(Event{Kind: EventFailure, Text: resp.Text()})
	case OpData:
		l.handler(Event{Kind: EventData, Data: resp.Payload})
	default:
		l.logger.Debug("hostmode: unhandled opcode %s on %s", OpName(resp.Op), ChannelName(resp.Channel))
	}
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
