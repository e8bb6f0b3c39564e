package arq

import (
	"testing"

	"github.com/drunlade/go-hostarq/digest"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		name     string
		compress bool
		args     []string
		dest     string
	}{
		{"/FPUT notes.txt 120 1A2B", CmdFPUT, false, []string{"notes.txt", "120", "1A2B"}, ""},
		{"/FPUT -z notes.txt 120 1A2B > inbox", CmdFPUT, true, []string{"notes.txt", "120", "1A2B"}, "inbox"},
		{"/FGET docs/plan.txt >local", CmdFGET, false, []string{"docs/plan.txt"}, "local"},
		{"/FLGET", CmdFLGET, false, nil, ""},
		{"/FLGET -z docs", CmdFLGET, true, []string{"docs"}, ""},
		{"/FLPUT 10 0000", CmdFLPUT, false, []string{"10", "0000"}, ""},
		{"/MPUT -z K1ABC 44 BEEF\r", CmdMPUT, true, []string{"K1ABC", "44", "BEEF"}, ""},
		{"/MGET 3", CmdMGET, false, []string{"3"}, ""},
		{"/MLIST", CmdMLIST, false, nil, ""},
		{"/A2 resp cnonce", CmdA2, false, []string{"resp", "cnonce"}, ""},
		{"/EAUTH", CmdEAUTH, false, nil, ""},
	}
	for _, tt := range tests {
		cmd, err := ParseCommand(tt.line)
		if err != nil {
			t.Errorf("ParseCommand(%q): %v", tt.line, err)
			continue
		}
		if cmd.Name != tt.name || cmd.Compress != tt.compress || cmd.Dest != tt.dest {
			t.Errorf("ParseCommand(%q) = %s z=%v dest=%q, want %s z=%v dest=%q",
				tt.line, cmd.Name, cmd.Compress, cmd.Dest, tt.name, tt.compress, tt.dest)
		}
		if len(cmd.Args) != len(tt.args) {
			t.Errorf("ParseCommand(%q) args = %q, want %q", tt.line, cmd.Args, tt.args)
			continue
		}
		for i := range tt.args {
			if cmd.Args[i] != tt.args[i] {
				t.Errorf("ParseCommand(%q) args = %q, want %q", tt.line, cmd.Args, tt.args)
				break
			}
		}
	}
}

func TestParseCommandText(t *testing.T) {
	cmd, err := ParseCommand("/ERROR File  not found")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Text != "File  not found" {
		t.Errorf("Text = %q", cmd.Text)
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"hello there",
		"/FPUT name 12",
		"/FGET",
		"/FGET a b",
		"/FGET a > ",
		"/MGET many",
		"/MLIST extra",
		"/A1",
	} {
		if _, err := ParseCommand(line); err == nil {
			t.Errorf("ParseCommand(%q) succeeded, want error", line)
		} else if !IsSyntax(err) {
			t.Errorf("ParseCommand(%q) error %v is not a syntax error", line, err)
		}
	}

	cmd, err := ParseCommand("/BOGUS x")
	if err == nil || cmd == nil || commandEvent(cmd.Name) != EvArqUnknown {
		t.Errorf("unknown command: cmd=%v err=%v", cmd, err)
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	for _, a := range []*Announcement{
		{Kind: KindFile, Name: "a.txt", Size: 12, CRC: 0x906E},
		{Kind: KindFile, Name: "a.txt", Size: 12, CRC: 0x0001, Dest: "in", Compress: true},
		{Kind: KindListing, Size: 0, CRC: 0xFFFF},
		{Kind: KindListing, Name: "docs", Size: 99, CRC: 0x1234},
		{Kind: KindMessage, Name: "K1ABC", Size: 5, CRC: 0xABCD, Compress: true},
	} {
		cmd, err := ParseCommand(a.String())
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", a.String(), err)
		}
		got, err := ParseAnnouncement(cmd)
		if err != nil {
			t.Fatalf("ParseAnnouncement(%q): %v", a.String(), err)
		}
		if *got != *a {
			t.Errorf("round trip of %q = %+v, want %+v", a.String(), *got, *a)
		}
	}
}

func TestAnnouncementRejectsBadFields(t *testing.T) {
	for _, line := range []string{
		"/FPUT a.txt -1 0000",
		"/FPUT a.txt ten 0000",
		"/FPUT a.txt 10 12345",
		"/FPUT a.txt 10 XYZW",
		"/MPUT K1ABC 10 12",
	} {
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", line, err)
		}
		if _, err := ParseAnnouncement(cmd); !IsSyntax(err) {
			t.Errorf("ParseAnnouncement(%q) error = %v, want syntax error", line, err)
		}
	}
}

func TestAnnouncementCRCFormat(t *testing.T) {
	a := &Announcement{Kind: KindFile, Name: "x", Size: 9, CRC: digest.CRC16([]byte("123456789"))}
	if got, want := a.String(), "/FPUT x 9 906E"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
