package hostmode

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestStuffUnstuffInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	payloads := [][]byte{
		{},
		{Sync},
		{Sync, Sync},
		{0x00, Sync, 0x00},
		bytes.Repeat([]byte{Sync}, 300),
	}
	for i := 0; i < 200; i++ {
		p := make([]byte, rng.Intn(300))
		for j := range p {
			if rng.Intn(4) == 0 {
				p[j] = Sync
			} else {
				p[j] = byte(rng.Intn(256))
			}
		}
		payloads = append(payloads, p)
	}

	for _, p := range payloads {
		stuffed := Stuff(p)
		if bytes.Contains(stuffed, []byte{Sync, Sync}) {
			t.Fatalf("stuffed output contains a sync marker: % x", stuffed)
		}
		got, err := Unstuff(stuffed)
		if err != nil {
			t.Fatalf("Unstuff: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("Unstuff(Stuff(p)) = % x, want % x", got, p)
		}
	}
}

func TestUnstuffRejectsBareSync(t *testing.T) {
	for _, in := range [][]byte{{Sync}, {0x01, Sync, 0x02}} {
		if _, err := Unstuff(in); !errors.Is(err, ErrStuffing) {
			t.Errorf("Unstuff(% x) error = %v, want ErrStuffing", in, err)
		}
	}
}

func TestEncoderSequence(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder()

	var seqs []bool
	for i := 0; i < 4; i++ {
		raw, err := enc.Encode(ChanCommand, HostCommand, []byte("BUFFER"))
		if err != nil {
			t.Fatal(err)
		}
		res := dec.Feed(raw)
		if len(res) != 1 || res[0].Err != nil {
			t.Fatalf("frame %d: results %+v", i, res)
		}
		f := res[0].Frame
		if f.Reset != (i == 0) {
			t.Errorf("frame %d: reset=%t", i, f.Reset)
		}
		if f.Seq != enc.Seq() {
			t.Errorf("frame %d: seq=%t, encoder says %t", i, f.Seq, enc.Seq())
		}
		seqs = append(seqs, f.Seq)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] == seqs[i-1] {
			t.Errorf("sequence did not alternate: %v", seqs)
		}
	}

	enc.Reset()
	raw, _ := enc.Encode(ChanCommand, HostCommand, nil)
	if res := dec.Feed(raw); len(res) != 1 || !res[0].Frame.Reset {
		t.Errorf("frame after Reset lacks reset bit: %+v", res)
	}
}

func TestEncoderRejectsLongPayload(t *testing.T) {
	enc := NewEncoder()
	if _, err := enc.Encode(ChanData, HostData, make([]byte, MaxPayload+1)); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("error = %v, want ErrFrameTooLong", err)
	}
	if enc.Last() != nil {
		t.Error("rejected frame was cached")
	}
}

func TestDecodeFrameWithStuffedBytes(t *testing.T) {
	payload := []byte{Sync, 0x00, Sync, Sync, 'x'}
	raw, err := AppendFrame(nil, ChanData, OpData, payload)
	if err != nil {
		t.Fatal(err)
	}
	res := NewDecoder().Feed(raw)
	if len(res) != 1 || res[0].Err != nil {
		t.Fatalf("results %+v", res)
	}
	if f := res[0].Frame; f.Channel != ChanData || f.Op != OpData || !bytes.Equal(f.Payload, payload) {
		t.Errorf("decoded %v payload % x", f, f.Payload)
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	raw, _ := AppendFrame(nil, ChanCommand, OpOKMsg, []byte("BUFFER 0"))
	dec := NewDecoder()
	var got []Result
	for _, c := range raw {
		got = append(got, dec.Feed([]byte{c})...)
	}
	if len(got) != 1 || got[0].Frame.Text() != "BUFFER 0" {
		t.Errorf("results %+v", got)
	}
}

func TestDecoderResynchronizes(t *testing.T) {
	first, _ := AppendFrame(nil, ChanCommand, OpOKMsg, []byte("lost frame"))
	second, _ := AppendFrame(nil, ChanCommand, OpOKMsg, []byte("kept"))

	stream := append([]byte("noise"), first[:6]...)
	stream = append(stream, second...)
	res := NewDecoder().Feed(stream)
	if len(res) != 1 || res[0].Err != nil || res[0].Frame.Text() != "kept" {
		t.Errorf("results %+v", res)
	}
}

func TestDecoderCRCError(t *testing.T) {
	raw, _ := AppendFrame(nil, ChanData, OpData, []byte("payload"))
	raw[6] ^= 0x01
	res := NewDecoder().Feed(raw)
	if len(res) != 1 || !errors.Is(res[0].Err, ErrCRC) {
		t.Errorf("results %+v, want ErrCRC", res)
	}
}

func TestDecoderSequenceMismatch(t *testing.T) {
	dec := NewDecoder()
	dec.Expect(true)

	raw, _ := AppendFrame(nil, ChanData, OpData, []byte("stale"))
	res := dec.Feed(raw)
	if len(res) != 1 || !errors.Is(res[0].Err, ErrSequence) {
		t.Fatalf("results %+v, want ErrSequence", res)
	}

	raw, _ = AppendFrame(nil, ChanData, OpData|SeqBit, []byte("fresh"))
	res = dec.Feed(raw)
	if len(res) != 1 || res[0].Err != nil || string(res[0].Frame.Payload) != "fresh" {
		t.Errorf("results %+v", res)
	}

	// poll answers are not sequence checked
	raw, _ = AppendFrame(nil, ChanPoll, OpOKMsg, nil)
	if res := dec.Feed(raw); len(res) != 1 || res[0].Err != nil {
		t.Errorf("poll answer rejected: %+v", res)
	}
}

func TestDecoderRepeatRequest(t *testing.T) {
	res := NewDecoder().Feed(RepeatRequest)
	if len(res) != 1 || !res[0].Repeat {
		t.Errorf("results %+v, want repeat", res)
	}
}

func TestAttach(t *testing.T) {
	tnc := newFakeTNC()
	var log eventLog
	l := NewLink(tnc, log.handle, WithLinkConfig(testLinkConfig()))

	if err := l.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !l.Attached() || !log.find(EventAttached, "") {
		t.Error("link not attached")
	}
	tnc.snapshot(func(f *fakeTNC) {
		if !f.hostMode {
			t.Error("fake TNC not in host mode")
		}
		found := false
		for _, line := range f.lines {
			if line == "PROTOCOLMODE ARQ" {
				found = true
			}
		}
		if !found {
			t.Errorf("protocol mode never set, lines %q", f.lines)
		}
	})
}

func TestAttachGivesUp(t *testing.T) {
	tnc := newFakeTNC()
	tnc.noPrompt = true
	l := NewLink(tnc, nil, WithLinkConfig(testLinkConfig()))

	err := l.Attach(context.Background())
	if !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Attach error = %v, want ErrNotAttached", err)
	}
	if l.Attached() {
		t.Error("link reports attached")
	}
}

func TestCommandRequiresAttach(t *testing.T) {
	l := NewLink(newFakeTNC(), nil)
	if err := l.Command("ABORT"); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Command error = %v, want ErrNotAttached", err)
	}
	if err := l.Data([]byte("x")); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Data error = %v, want ErrNotAttached", err)
	}
}

func TestLinkRun(t *testing.T) {
	tnc := newFakeTNC()
	tnc.statuses = []string{"BUSY FALSE"}
	tnc.data = [][]byte{[]byte("/OK done\n")}
	var log eventLog
	l := NewLink(tnc, log.handle, WithLinkConfig(testLinkConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	if !waitUntil(2*time.Second, l.Attached) {
		t.Fatal("link never attached")
	}
	if err := l.Command("ABORT"); err != nil {
		t.Fatal(err)
	}
	if err := l.Command("BOGUS"); err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("d"), 600)
	if err := l.Data(payload); err != nil {
		t.Fatal(err)
	}

	ok := waitUntil(2*time.Second, func() bool {
		return log.find(EventStatus, "BUSY FALSE") &&
			log.find(EventData, "/OK done\n") &&
			log.find(EventFailure, "unknown command") &&
			l.Queued() == 0
	})
	if !ok {
		t.Fatalf("events missing: %+v", log.events)
	}
	tnc.snapshot(func(f *fakeTNC) {
		if !bytes.Equal(f.received, payload) {
			t.Errorf("TNC received %d data bytes, want %d", len(f.received), len(payload))
		}
		if len(f.commands) < 2 || f.commands[0] != "ABORT" {
			t.Errorf("TNC commands %q", f.commands)
		}
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	tnc.snapshot(func(f *fakeTNC) {
		if f.hostMode {
			t.Error("host mode not exited on shutdown")
		}
	})
}

func TestLinkHonorsRepeatRequest(t *testing.T) {
	tnc := newFakeTNC()
	tnc.repeatFirst = true
	l := NewLink(tnc, nil, WithLinkConfig(testLinkConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	if !waitUntil(2*time.Second, l.Attached) {
		t.Fatal("link never attached")
	}
	l.Data([]byte("repeat me"))

	ok := waitUntil(2*time.Second, func() bool {
		got := false
		tnc.snapshot(func(f *fakeTNC) { got = string(f.received) == "repeat me" })
		return got
	})
	if !ok {
		t.Fatal("data never delivered")
	}
	tnc.snapshot(func(f *fakeTNC) {
		var copies int
		var want []byte
		for _, w := range f.raw {
			if bytes.Contains(w, []byte("repeat me")) {
				if want == nil {
					want = w
				}
				if bytes.Equal(w, want) {
					copies++
				}
			}
		}
		if copies != 2 {
			t.Errorf("data frame written %d times unchanged, want 2", copies)
		}
	})
}

func TestLinkDetachesWhenSilent(t *testing.T) {
	tnc := newFakeTNC()
	var log eventLog
	l := NewLink(tnc, log.handle, WithLinkConfig(testLinkConfig()))
	if err := l.Attach(context.Background()); err != nil {
		t.Fatal(err)
	}
	tnc.snapshot(func(f *fakeTNC) { f.silent = true })

	err := l.serve(context.Background())
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("serve error = %v, want ErrNoResponse", err)
	}
}
