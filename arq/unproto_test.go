package arq

import (
	"testing"
)

func TestUnprotoEncode(t *testing.T) {
	tests := []struct {
		f    *UnprotoFrame
		want string
	}{
		{NewUnproto(FrameMessage, "n0call", "k1abc", "123456789"), "|M01|N0CALL|K1ABC|906E|123456789"},
		{NewUnproto(FrameAck, "K1ABC", "N0CALL", ""), "|A01|K1ABC|N0CALL|"},
		{NewUnproto(FrameNak, "K1ABC", "N0CALL", ""), "|N01|K1ABC|N0CALL|"},
		{&UnprotoFrame{Type: FrameBeacon, From: "N0CALL", Grid: "FN42", Body: "hello"}, "|B01|N0CALL|FN42|hello"},
	}
	for _, tt := range tests {
		if got := string(tt.f.Encode()); got != tt.want {
			t.Errorf("Encode() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseUnproto(t *testing.T) {
	f, err := ParseUnproto([]byte("|Q01|k1abc|N0CALL|" + "D5C3" + "|version\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FrameQuery || f.From != "K1ABC" || f.To != "N0CALL" || f.Body != "version" {
		t.Errorf("parsed %+v", f)
	}

	orig := NewUnproto(FrameMessage, "N0CALL", "K1ABC", "a|b|c")
	got, err := ParseUnproto(orig.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if *got != *orig {
		t.Errorf("got %+v, want %+v", *got, *orig)
	}
	if !got.CheckCRC() {
		t.Error("CheckCRC failed on intact frame")
	}
	got.Body = "a|b|d"
	if got.CheckCRC() {
		t.Error("CheckCRC passed on altered body")
	}

	b, err := ParseUnproto([]byte("|B01|N0CALL|FN42|"))
	if err != nil {
		t.Fatal(err)
	}
	if b.Grid != "FN42" || b.Body != "" || !b.CheckCRC() {
		t.Errorf("beacon %+v", b)
	}
}

func TestParseUnprotoErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"hello",
		"|M02|A|B|0000|x",
		"|M01|A|B|x",
		"|M01|A|B|00G0|x",
		"|X01|A|B|",
		"|A01|A",
		"|A01||B|",
	} {
		if _, err := ParseUnproto([]byte(s)); !IsSyntax(err) {
			t.Errorf("ParseUnproto(%q) err = %v, want syntax error", s, err)
		}
	}
}

func TestUnprotoEvent(t *testing.T) {
	for typ, want := range map[byte]Event{
		FrameMessage:  EvRcvMsg,
		FrameQuery:    EvRcvQuery,
		FrameResponse: EvRcvResp,
		FrameUnproto:  EvRcvUnproto,
		FrameAck:      EvRcvAck,
		FrameNak:      EvRcvNak,
		FrameBeacon:   EvRcvBeacon,
		'Z':           EvRcvBadFrame,
	} {
		if got := unprotoEvent(typ); got != want {
			t.Errorf("unprotoEvent(%q) = %s, want %s", typ, got, want)
		}
	}
}
