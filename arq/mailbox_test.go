package arq

import (
	"testing"
	"time"
)

func TestMailMessageMarshal(t *testing.T) {
	m := MailMessage{
		From: "K1ABC",
		To:   "N0CALL",
		Time: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Body: "line one\n\nline three\n",
	}
	want := "From: K1ABC\nTo: N0CALL\nDate: 2026/03/04 05:06:07 UTC\n\nline one\n\nline three\n"
	if got := string(m.Marshal()); got != want {
		t.Fatalf("Marshal() = %q, want %q", got, want)
	}
	got, err := ParseMailMessage(m.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.From != m.From || got.To != m.To || !got.Time.Equal(m.Time) || got.Body != m.Body {
		t.Errorf("ParseMailMessage = %+v, want %+v", got, m)
	}
}

func TestParseMailMessageErrors(t *testing.T) {
	for _, s := range []string{
		"From: K1ABC\nTo: N0CALL",
		"no header here\n\nbody",
	} {
		if _, err := ParseMailMessage([]byte(s)); !IsSyntax(err) {
			t.Errorf("ParseMailMessage(%q) err = %v, want syntax error", s, err)
		}
	}
}

func testMailbox(t *testing.T, mb Mailbox) {
	t.Helper()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	id1, err := mb.Append(BoxOut, MailMessage{From: "N0CALL", To: "K1ABC", Time: at, Body: "first"})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := mb.Append(BoxOut, MailMessage{From: "N0CALL", To: "W1XYZ", Time: at, Body: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatalf("duplicate id %q", id1)
	}

	all, err := mb.List(BoxOut, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List = %d messages, want 2", len(all))
	}
	for _, m := range all {
		if m.Body != "" {
			t.Errorf("List returned body %q", m.Body)
		}
	}

	mine, err := mb.List(BoxOut, "k1abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != id1 {
		t.Fatalf("List for K1ABC = %+v", mine)
	}

	m, err := mb.Read(BoxOut, id1)
	if err != nil {
		t.Fatal(err)
	}
	if m.Body != "first" || m.To != "K1ABC" {
		t.Errorf("Read = %+v", m)
	}

	if err := mb.Delete(BoxOut, id1); err != nil {
		t.Fatal(err)
	}
	if _, err := mb.Read(BoxOut, id1); !IsResource(err) {
		t.Errorf("Read after Delete err = %v", err)
	}
	if err := mb.Delete(BoxOut, id1); err == nil {
		t.Error("second Delete succeeded")
	}
	if in, _ := mb.List(BoxIn, ""); len(in) != 0 {
		t.Errorf("inbox holds %d messages", len(in))
	}
}

func TestMemMailbox(t *testing.T) {
	testMailbox(t, NewMemMailbox())
}

func TestDirMailbox(t *testing.T) {
	mb, err := NewDirMailbox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testMailbox(t, mb)

	if _, err := mb.Read(BoxIn, "../out/x"); !IsResource(err) {
		t.Errorf("Read with path id err = %v", err)
	}
	if _, err := mb.Append("drafts", MailMessage{}); !IsResource(err) {
		t.Errorf("Append to unknown box err = %v", err)
	}
}
