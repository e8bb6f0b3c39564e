package arq

import (
	"strings"
	"testing"

	"github.com/drunlade/go-hostarq/hostmode"
)

func TestStatusLines(t *testing.T) {
	st := newStation(t, testConfig("N0CALL"))
	st.attach()

	for _, line := range []string{
		"BUSY TRUE",
		"PTT TRUE",
		"BUFFER 42",
		"VERSION ardopc 1.0.4.1",
		"NEWSTATE ISS",
		"FAULT not from state",
		"BUFFER lots",
	} {
		st.tnc(line)
	}

	got := st.Status()
	want := TNCSnapshot{
		Attached: true,
		Busy:     true,
		PTT:      true,
		Buffer:   42,
		State:    "ISS",
		Version:  "ardopc 1.0.4.1",
		Fault:    "not from state",
	}
	if got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
}

func TestHeardStations(t *testing.T) {
	st := newStation(t, testConfig("N0CALL"))
	st.attach()

	st.HandleLink(hostmode.Event{Kind: hostmode.EventData, Data: []byte("IDFID: k1abc [FN42]:")})
	st.drain()
	st.tnc("PING W1XYZ>N0CALL 12 88")
	st.fec(&UnprotoFrame{Type: FrameBeacon, From: "K2DEF", Grid: "FN31", Body: "qrv"})

	want := []string{"K1ABC ", "W1XYZ ping to N0CALL snr 12 quality 88", "K2DEF FN31 qrv"}
	if len(st.rec.heard) != len(want) {
		t.Fatalf("heard = %q", st.rec.heard)
	}
	for i, w := range want {
		if !strings.HasPrefix(st.rec.heard[i], w) {
			t.Errorf("heard[%d] = %q, want prefix %q", i, st.rec.heard[i], w)
		}
	}
}

func TestDataOutsideConnection(t *testing.T) {
	st := newStation(t, testConfig("N0CALL"))
	st.attach()

	st.arq("/FGET a.txt\n")
	st.HandleLink(hostmode.Event{Kind: hostmode.EventData, Data: []byte("ERRsomething odd")})
	st.drain()
	st.HandleLink(hostmode.Event{Kind: hostmode.EventData, Data: []byte("FEC|Z01|garbage")})
	st.drain()

	wantState(t, st, StateIdle)
	if len(st.link.data) != 0 || len(st.rec.errors) != 0 {
		t.Errorf("data = %q errors = %v", st.link.data, st.rec.errors)
	}
}
