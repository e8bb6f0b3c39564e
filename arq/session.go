package arq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Link is the outbound half of the TNC link as the session sees it.
// *hostmode.Link satisfies it.
type Link interface {
	Command(cmd string) error
	Data(p []byte) error
	Queued() int
}

// Conn is the context of an ARQ connection. It exists from connection
// setup until the session returns to idle.
type Conn struct {
	Remote        string
	Outgoing      bool
	Authenticated bool

	challenge *Challenge
	pending   *Command // server: replayed once authenticated
	request   *Command // client: last request, the subject of /A1
	resume    State    // client: state to return to after /A3
	dest      string   // client: local directory for a requested file

	mget       *mgetServe   // server side of /MGET
	mgetActive bool         // client side of /MGET
	received   int          // messages received during /MGET
	outMsg     *MailMessage // message being sent, filed as sent on /OK
}

type mgetServe struct {
	ids      []string
	current  string
	sent     int
	compress bool
}

type queued struct {
	ev Event
	p  Param
}

// Session is the protocol engine of one attached TNC. All protocol state is
// owned by the goroutine that calls Dispatch; Post may be used from any
// goroutine.
type Session struct {
	cfg       *Config
	link      Link
	callbacks *Callbacks
	logger    Logger
	now       Clock
	mailbox   Mailbox
	creds     Credentials
	shares    *Shares
	progress  *ProgressTracker
	status    TNCStatus

	events chan queued
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	state      State
	connRemote string
	connAuth   bool

	deadline    time.Time
	timeout     time.Duration
	sendRepeats int
	naks        int
	lastSent    *UnprotoFrame
	pilot       *UnprotoFrame
	unsent      bool
	heldSince   time.Time
	fecMode     string
	arqBW       string
	connectTry  int
	conn        *Conn
	in          *Inbound
	out         *Outbound
	lineBuf     []byte
	nextBeacon  time.Time
}

// NewSession creates a session bound to link.
func NewSession(link Link, opts ...Option) *Session {
	s := &Session{
		cfg:       DefaultConfig(),
		link:      link,
		callbacks: mergeCallbacks(nil),
		logger:    NoopLogger{},
		now:       time.Now,
		events:    make(chan queued, 1024),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailbox == nil {
		s.mailbox = NewMemMailbox()
	}
	if s.shares == nil {
		s.shares = NewShares(s.cfg, s.logger)
	}
	s.cfg.MyCall = strings.ToUpper(s.cfg.MyCall)
	s.fecMode = s.cfg.FECMode
	s.arqBW = s.cfg.ARQBandwidth
	s.progress = NewProgressTracker(s.callbacks.OnProgress, s.cfg.ProgressInterval, s.now)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Status returns the last TNC status.
func (s *Session) Status() TNCSnapshot {
	return s.status.Snapshot()
}

// Connection returns the remote call and authentication flag of the
// current ARQ connection. remote is empty when not connected.
func (s *Session) Connection() (remote string, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connRemote, s.connAuth
}

// publishConn copies the connection summary for readers on other
// goroutines.
func (s *Session) publishConn() {
	var remote string
	var auth bool
	if s.conn != nil {
		remote, auth = s.conn.Remote, s.conn.Authenticated
	}
	s.mu.Lock()
	s.connRemote, s.connAuth = remote, auth
	s.mu.Unlock()
}

// Post queues an event for the dispatcher. It blocks while the queue is
// full and fails once Run has returned.
func (s *Session) Post(ev Event, p Param) error {
	select {
	case <-s.done:
		return NewError(ErrCancelled, "session stopped")
	default:
	}
	select {
	case s.events <- queued{ev, p}:
		return nil
	case <-s.done:
		return NewError(ErrCancelled, "session stopped")
	}
}

// Run dispatches queued events and timer ticks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-s.events:
			s.Dispatch(q.ev, q.p)
		case <-ticker.C:
			s.Dispatch(EvTick, Param{})
		}
	}
}

// Dispatch routes one event to the handler of the current state and
// records the transition if the state changed. Pairs a state does not
// handle are ignored, except operator requests, which are reported to
// OnError as busy so the operator learns the request was dropped.
// Handlers may dispatch derived events.
func (s *Session) Dispatch(ev Event, p Param) {
	from := s.State()
	if from.IsARQ() && s.conn == nil {
		s.conn = &Conn{Remote: s.status.Snapshot().Remote}
	}

	handled := s.prelude(&ev, &p)
	if !handled && missingParam(ev, p) {
		s.logger.Debug("%s without payload ignored", ev)
		handled = true
	}
	if !handled {
		handled = s.handler(from)(ev, p)
	}
	if !handled && isOperator(ev) {
		err := NewError(ErrBusy, fmt.Sprintf("%s not possible in state %s", ev, from))
		s.logger.Info("%v", err)
		s.callbacks.OnError(err, "operator")
	}

	if to := s.State(); to != from {
		t := Transition{Event: ev, Param: p.String(), From: from, To: to, Timestamp: s.now()}
		s.logger.Debug("%s: %s -> %s %s", ev, from, to, t.Param)
		s.callbacks.OnTransition(t)
	}
}

// missingParam reports an event that arrived without the frame or
// command its handlers read.
func missingParam(ev Event, p Param) bool {
	switch {
	case ev >= EvRcvMsg && ev <= EvRcvUnproto:
		return p.Frame == nil
	case ev >= EvArqFPUT && ev <= EvArqUnknown:
		return p.Cmd == nil
	}
	return false
}

func isOperator(ev Event) bool {
	return ev >= EvOpSendMsg && ev <= EvOpAuth
}

// prelude applies the rules shared by every state. It may rewrite the
// event and reports whether it fully handled it.
func (s *Session) prelude(ev *Event, p *Param) bool {
	st := s.State()
	switch *ev {
	case EvTick:
		if !s.deadline.IsZero() && !s.now().Before(s.deadline) {
			s.deadline = time.Time{}
			*ev = EvTimeout
		}
		return false
	case EvTNCAttached:
		s.configureTNC()
		if st != StateIdle {
			s.toIdle("TNC re-attached")
		}
		return true
	case EvTNCDetached:
		s.callbacks.OnStatus("TNC not attached")
		if st != StateIdle {
			s.toIdle("TNC detached")
		}
		return true
	case EvLinkError:
		s.toIdle("link error")
		return true
	case EvDisconnected:
		if st.IsARQ() {
			if s.in != nil && !s.in.Discarding() {
				s.callbacks.OnError(NewError(ErrTransport, "disconnected during transfer"), "arq")
			}
			s.callbacks.OnStatus("disconnected")
			s.toIdle("disconnected")
			return true
		}
		return false
	case EvOpCancel:
		if st == StateIdle {
			return true
		}
		s.tncCommand(tncAbort)
		s.callbacks.OnError(NewError(ErrCancelled, "cancelled by operator in "+st.String()), "operator")
		s.toIdle("cancelled")
		return true
	case EvAuthOK, EvAuthError:
		if st.IsConnected() {
			s.authOutcome(*ev, *p)
			return true
		}
		return false
	case EvData:
		tag, body := splitData(p.Data)
		switch tag {
		case dataARQ:
			*ev, p.Data = EvARQData, body
		case dataFEC:
			*ev, p.Data = EvFECData, body
		case dataIDF:
			s.heardID(string(body))
			return true
		default:
			s.logger.Debug("tnc: dropping %s data %s", tag, formatWireLog("<", body))
			return true
		}
	}

	switch *ev {
	case EvARQData:
		if st.IsConnected() {
			s.arqData(p.Data)
		} else {
			s.logger.Debug("arq data outside a connection: %s", formatWireLog("<", p.Data))
		}
		return true
	case EvFECData:
		s.logger.Debug("%s", formatWireLog("fec <", p.Data))
		f, err := ParseUnproto(p.Data)
		if err != nil {
			*ev, p.Text = EvRcvBadFrame, err.Error()
		} else {
			*ev, p.Frame, p.Call, p.Text = unprotoEvent(f.Type), f, f.From, f.Body
		}
		return false
	case EvArqUnknown:
		if st.IsConnected() {
			s.sendLine(CmdERROR + " Unknown command")
			return true
		}
	}
	return false
}

// handler selects the event handler of a state.
func (s *Session) handler(st State) func(Event, Param) bool {
	switch st {
	case StateIdle:
		return s.handleIdle
	case StateSendUnprotoBufWait, StateSendBeaconBufWait, StateSendMsgBufWait,
		StateSendQueryBufWait, StateSendRespBufWait, StateSendAckNakBufWait:
		return s.handleBufWait
	case StateRcvMsgAckWait:
		return s.handleMsgAckWait
	case StateRcvQueryRespWait:
		return s.handleQueryRespWait
	case StatePingAckWait, StatePilotPingAckWait:
		return s.handlePingWait
	case StateArqOutConnectWait:
		return s.handleOutConnect
	case StateArqInPending:
		return s.handleInPending
	case StateArqConnected:
		return s.handleConnected
	case StateArqDisconnectWait:
		return s.handleDisconnectWait
	case StateArqAuthRcvA1Wait, StateArqAuthRcvA3Wait:
		return s.handleClientAuth
	case StateArqAuthRcvA2Wait:
		return s.handleServerAuth
	case StateArqFileSend, StateArqFlistSend, StateArqMsgSend:
		return s.handleSend
	case StateArqFileSendWaitOK, StateArqFlistSendWaitOK, StateArqMsgSendWaitOK:
		return s.handleSendWaitOK
	case StateArqFileRcvWait, StateArqFlistRcvWait, StateArqMsgRcvWait:
		return s.handleRcvWait
	case StateArqFileRcv, StateArqFlistRcv, StateArqMsgRcv:
		return s.handleRcv
	default:
		return func(Event, Param) bool { return false }
	}
}

// arm starts the deadline of a waiting state.
func (s *Session) arm(d time.Duration) {
	s.timeout = d
	s.deadline = s.now().Add(d)
}

// refresh restarts the running deadline after progress.
func (s *Session) refresh() {
	if !s.deadline.IsZero() && s.timeout > 0 {
		s.deadline = s.now().Add(s.timeout)
	}
}

func (s *Session) disarm() {
	s.timeout = 0
	s.deadline = time.Time{}
}

// enter switches to a waiting state and arms its deadline.
func (s *Session) enter(st State, d time.Duration) {
	s.setState(st)
	s.arm(d)
}

// canTransmit reports whether the channel is free for a new transmission.
func (s *Session) canTransmit() error {
	if s.State() != StateIdle {
		return NewError(ErrBusy, "session busy in "+s.State().String())
	}
	return s.channelClear()
}

// channelClear reports why the transmitter may not be keyed right now.
func (s *Session) channelClear() error {
	st := s.status.Snapshot()
	switch {
	case !st.Attached:
		return NewError(ErrTransport, "TNC not attached")
	case st.Busy:
		return NewError(ErrBusy, "channel busy")
	case st.Disconnecting:
		return NewError(ErrBusy, "disconnect in progress")
	}
	return nil
}

// remaining is what is still queued between the session and the air.
func (s *Session) remaining() int {
	n := s.status.Snapshot().Buffer
	if s.link != nil {
		n += s.link.Queued()
	}
	return n
}

// toIdle tears down every per-exchange record and restores the default
// TNC modes.
func (s *Session) toIdle(reason string) {
	s.logger.Info("idle: %s", reason)
	s.in, s.out, s.conn = nil, nil, nil
	s.publishConn()
	s.lineBuf = nil
	s.pilot = nil
	s.unsent, s.heldSince = false, time.Time{}
	s.disarm()
	s.status.setDisconnecting(false)
	if s.fecMode != s.cfg.FECMode {
		s.fecMode = s.cfg.FECMode
		s.tncCommand(tncFECMode + " " + s.fecMode)
	}
	if s.arqBW != s.cfg.ARQBandwidth {
		s.arqBW = s.cfg.ARQBandwidth
		s.tncCommand(tncARQBW + " " + s.arqBW)
	}
	s.setState(StateIdle)
}

// fail reports err to the operator and the log.
func (s *Session) fail(err error, context string) {
	s.logger.Error("%s: %v", context, err)
	s.callbacks.OnError(err, context)
}

func (s *Session) tncCommand(cmd string) error {
	if s.link == nil {
		return NewError(ErrTransport, "no link")
	}
	s.logger.Debug("tnc > %s", cmd)
	if err := s.link.Command(cmd); err != nil {
		s.fail(WrapError(ErrTransport, "command "+cmd, err), "link")
		return err
	}
	return nil
}

func (s *Session) sendData(p []byte) error {
	if s.link == nil {
		return NewError(ErrTransport, "no link")
	}
	s.logger.Debug("%s", formatWireLog(">", p))
	if err := s.link.Data(p); err != nil {
		s.fail(WrapError(ErrTransport, "data", err), "link")
		return err
	}
	return nil
}

// sendLine sends one ARQ command line.
func (s *Session) sendLine(line string) error {
	return s.sendData([]byte(line + "\n"))
}

// configureTNC issues the station settings after host mode is entered.
func (s *Session) configureTNC() {
	s.callbacks.OnStatus("TNC attached")
	s.fecMode = s.cfg.FECMode
	s.arqBW = s.cfg.ARQBandwidth
	cmds := []string{"VERSION"}
	if s.cfg.MyCall != "" {
		cmds = append(cmds, tncMyCall+" "+s.cfg.MyCall)
	}
	if s.cfg.GridSquare != "" {
		cmds = append(cmds, tncGrid+" "+s.cfg.GridSquare)
	}
	cmds = append(cmds, tncARQBW+" "+s.arqBW, tncFECMode+" "+s.fecMode, tncListen)
	for _, c := range cmds {
		if s.tncCommand(c) != nil {
			return
		}
	}
	if s.cfg.BeaconInterval > 0 {
		s.nextBeacon = s.now().Add(s.cfg.BeaconInterval)
	}
}

func (s *Session) downshift() *DownshiftTable {
	return LookupDownshift(s.status.Snapshot().Version)
}

func (s *Session) heardID(text string) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "ID:"))
	f := strings.Fields(text)
	if len(f) == 0 {
		return
	}
	s.callbacks.OnHeard(strings.ToUpper(strings.TrimSuffix(f[0], ":")), text)
}

// Operator API. Each call queues an event; results arrive through
// Callbacks.

// SendMessage sends an acknowledged unproto message.
func (s *Session) SendMessage(to, text string) error {
	return s.Post(EvOpSendMsg, Param{Call: strings.ToUpper(to), Text: text})
}

// SendQuery sends a query and waits for the response.
func (s *Session) SendQuery(to, query string) error {
	return s.Post(EvOpSendQuery, Param{Call: strings.ToUpper(to), Text: query})
}

// SendUnproto broadcasts unacknowledged text. An empty to means QST.
func (s *Session) SendUnproto(to, text string) error {
	return s.Post(EvOpSendUnproto, Param{Call: strings.ToUpper(to), Text: text})
}

// SendBeacon transmits a beacon now.
func (s *Session) SendBeacon() error {
	return s.Post(EvOpSendBeacon, Param{})
}

// Ping pings call n times.
func (s *Session) Ping(call string, n int) error {
	return s.Post(EvOpPing, Param{Call: strings.ToUpper(call), N: n})
}

// Connect opens an ARQ connection.
func (s *Session) Connect(call string) error {
	return s.Post(EvOpConnect, Param{Call: strings.ToUpper(call)})
}

// Disconnect closes the ARQ connection.
func (s *Session) Disconnect() error {
	return s.Post(EvOpDisconnect, Param{})
}

// Cancel aborts whatever the session is doing.
func (s *Session) Cancel() error {
	return s.Post(EvOpCancel, Param{})
}

// SendFile uploads name from the shared root to dest on the remote station.
func (s *Session) SendFile(name, dest string, compress bool) error {
	return s.Post(EvOpFileSend, Param{Text: name, Dest: dest, Compress: compress})
}

// GetFile downloads name from the remote station into local dir dest.
func (s *Session) GetFile(name, dest string, compress bool) error {
	return s.Post(EvOpFileGet, Param{Text: name, Dest: dest, Compress: compress})
}

// GetListing requests the listing of a remote directory.
func (s *Session) GetListing(dir string, compress bool) error {
	return s.Post(EvOpFlistGet, Param{Text: dir, Compress: compress})
}

// PutMessage sends a message to the connected station, or through it to
// another station when to is set.
func (s *Session) PutMessage(to, text string, compress bool) error {
	return s.Post(EvOpMsgSend, Param{Call: strings.ToUpper(to), Text: text, Compress: compress})
}

// GetMessages fetches up to n queued messages; 0 fetches all.
func (s *Session) GetMessages(n int, compress bool) error {
	return s.Post(EvOpMsgGet, Param{N: n, Compress: compress})
}

// ListMessages requests the headers of queued messages.
func (s *Session) ListMessages() error {
	return s.Post(EvOpMsgList, Param{})
}

// Authenticate runs an explicit challenge-response for path.
func (s *Session) Authenticate(path string) error {
	return s.Post(EvOpAuth, Param{Text: path})
}
