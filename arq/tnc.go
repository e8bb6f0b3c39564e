package arq

import (
	"strconv"
	"strings"
	"sync"

	"github.com/drunlade/go-hostarq/hostmode"
)

// Tags that open every data channel payload from the TNC
const (
	dataARQ = "ARQ"
	dataFEC = "FEC"
	dataIDF = "IDF"
	dataERR = "ERR"
)

// TNCStatus mirrors what the TNC last reported. It is written by the link
// worker and read by the dispatcher and the UI.
type TNCStatus struct {
	mu sync.Mutex

	attached      bool
	busy          bool
	ptt           bool
	disconnecting bool
	buffer        int
	state         string
	version       string
	remote        string
	bandwidth     string
	fault         string
}

// TNCSnapshot is a consistent copy of TNCStatus.
type TNCSnapshot struct {
	Attached      bool   `json:"attached"`
	Busy          bool   `json:"busy"`
	PTT           bool   `json:"ptt"`
	Disconnecting bool   `json:"disconnecting"`
	Buffer        int    `json:"buffer"`
	State         string `json:"state"`
	Version       string `json:"version"`
	Remote        string `json:"remote"`
	Bandwidth     string `json:"bandwidth"`
	Fault         string `json:"fault"`
}

// Snapshot returns a copy of the current status.
func (t *TNCStatus) Snapshot() TNCSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TNCSnapshot{
		Attached:      t.attached,
		Busy:          t.busy,
		PTT:           t.ptt,
		Disconnecting: t.disconnecting,
		Buffer:        t.buffer,
		State:         t.state,
		Version:       t.version,
		Remote:        t.remote,
		Bandwidth:     t.bandwidth,
		Fault:         t.fault,
	}
}

func (t *TNCStatus) update(fn func(t *TNCStatus)) {
	t.mu.Lock()
	fn(t)
	t.mu.Unlock()
}

func (t *TNCStatus) setDisconnecting(v bool) {
	t.update(func(t *TNCStatus) { t.disconnecting = v })
}

// HandleLink translates link notifications into session events. It is the
// handler given to hostmode.NewLink and runs on the link worker.
func (s *Session) HandleLink(ev hostmode.Event) {
	switch ev.Kind {
	case hostmode.EventAttached:
		s.status.update(func(t *TNCStatus) {
			t.attached = true
			t.busy = false
			t.buffer = 0
			t.fault = ""
		})
		s.Post(EvTNCAttached, Param{})
	case hostmode.EventDetached:
		s.status.update(func(t *TNCStatus) {
			t.attached = false
			t.disconnecting = false
			t.remote = ""
		})
		p := Param{}
		if ev.Err != nil {
			p.Text = ev.Err.Error()
		}
		s.Post(EvTNCDetached, p)
	case hostmode.EventStatus:
		s.statusLine(ev.Text)
	case hostmode.EventFailure:
		s.logger.Error("tnc: %s", ev.Text)
		s.Post(EvFault, Param{Text: ev.Text})
	case hostmode.EventLog:
		s.logger.Debug("tnc log: %s", ev.Text)
	case hostmode.EventData:
		data := make([]byte, len(ev.Data))
		copy(data, ev.Data)
		s.Post(EvData, Param{Data: data})
	}
}

// statusLine parses one asynchronous status line from the TNC.
func (s *Session) statusLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	key := strings.ToUpper(fields[0])
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch key {
	case "BUFFER":
		n, err := strconv.Atoi(arg(1))
		if err != nil {
			s.logger.Debug("tnc: bad BUFFER %q", line)
			return
		}
		s.status.update(func(t *TNCStatus) { t.buffer = n })
		s.Post(EvBuffer, Param{N: n})
	case "BUSY":
		busy := strings.EqualFold(arg(1), "TRUE")
		s.status.update(func(t *TNCStatus) { t.busy = busy })
		s.Post(EvBusy, Param{Text: arg(1)})
	case "PTT":
		ptt := strings.EqualFold(arg(1), "TRUE")
		s.status.update(func(t *TNCStatus) { t.ptt = ptt })
	case "NEWSTATE":
		st := arg(1)
		s.status.update(func(t *TNCStatus) {
			t.state = st
			if st == "DISC" {
				t.disconnecting = false
			}
		})
		s.Post(EvNewState, Param{Text: st})
	case "CONNECTED":
		call, bw := strings.ToUpper(arg(1)), arg(2)
		s.status.update(func(t *TNCStatus) {
			t.remote = call
			t.bandwidth = bw
		})
		s.Post(EvConnected, Param{Call: call, Text: bw})
	case "DISCONNECTED":
		s.status.update(func(t *TNCStatus) {
			t.remote = ""
			t.disconnecting = false
		})
		s.Post(EvDisconnected, Param{})
	case "PENDING":
		s.Post(EvPending, Param{})
	case "CANCELPENDING":
		s.Post(EvCancelPending, Param{})
	case "REJECTEDBW":
		s.Post(EvRejectedBW, Param{Call: strings.ToUpper(arg(1))})
	case "REJECTEDBUSY":
		s.Post(EvRejectedBusy, Param{Call: strings.ToUpper(arg(1))})
	case "PINGACK":
		q, _ := strconv.Atoi(arg(2))
		s.Post(EvPingAck, Param{Text: arg(1), N: q})
	case "PING":
		from, to, _ := strings.Cut(arg(1), ">")
		q, _ := strconv.Atoi(arg(3))
		s.Post(EvPingReceived, Param{Call: strings.ToUpper(from), Dest: strings.ToUpper(to), Text: arg(2), N: q})
	case "TARGET":
		s.Post(EvTarget, Param{Call: strings.ToUpper(arg(1))})
	case "FAULT":
		s.status.update(func(t *TNCStatus) { t.fault = rest })
		s.Post(EvFault, Param{Text: rest})
	case "VERSION":
		s.status.update(func(t *TNCStatus) { t.version = rest })
	case "PINGREPLY":
		s.logger.Debug("tnc: %s", line)
	default:
		// echoes of commands we issued
		s.logger.Debug("tnc: %s", line)
	}
}

// splitData separates the tag of a data channel payload from its body.
func splitData(p []byte) (string, []byte) {
	if len(p) < 3 {
		return "", p
	}
	return string(p[:3]), p[3:]
}
