package arq

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/drunlade/go-hostarq/digest"
)

// Command is one parsed ARQ command line.
type Command struct {
	Name     string
	Compress bool
	Args     []string
	Dest     string

	// Text is everything after the keyword, for /OK and /ERROR
	Text string

	// Line is the raw line without its terminator
	Line string
}

type argRange struct{ min, max int }

var commandArgs = map[string]argRange{
	CmdFPUT:  {3, 3},
	CmdFGET:  {1, 1},
	CmdFLPUT: {2, 3},
	CmdFLGET: {0, 1},
	CmdMPUT:  {3, 3},
	CmdMGET:  {0, 1},
	CmdMLIST: {0, 0},
	CmdAUTH:  {0, 1},
	CmdA1:    {1, 1},
	CmdA2:    {2, 2},
	CmdA3:    {1, 1},
	CmdOK:    {0, -1},
	CmdERROR: {0, -1},
	CmdEAUTH: {0, 0},
}

func compressible(name string) bool {
	switch name {
	case CmdFPUT, CmdFGET, CmdFLPUT, CmdFLGET, CmdMPUT, CmdMGET:
		return true
	}
	return false
}

// ParseCommand parses a command line. An unknown keyword returns the
// command together with a syntax error so the caller can still answer it.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > maxLineLen {
		return nil, NewError(ErrSyntax, "command line too long")
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, NewError(ErrSyntax, "not a command")
	}

	cmd := &Command{Name: fields[0], Line: line}
	cmd.Text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd.Name))

	want, known := commandArgs[cmd.Name]
	if !known {
		return cmd, NewError(ErrSyntax, "unknown command "+cmd.Name)
	}
	if want.max < 0 {
		cmd.Args = fields[1:]
		return cmd, nil
	}

	rest := fields[1:]
	if len(rest) > 0 && rest[0] == compressFlag && compressible(cmd.Name) {
		cmd.Compress = true
		rest = rest[1:]
	}

	if cmd.Name == CmdFPUT || cmd.Name == CmdFGET {
		for i, f := range rest {
			if f == destMarker {
				if i != len(rest)-2 {
					return cmd, NewError(ErrSyntax, "bad destination in "+cmd.Name)
				}
				cmd.Dest = rest[i+1]
				rest = rest[:i]
				break
			}
			if strings.HasPrefix(f, destMarker) {
				if i != len(rest)-1 {
					return cmd, NewError(ErrSyntax, "bad destination in "+cmd.Name)
				}
				cmd.Dest = f[len(destMarker):]
				rest = rest[:i]
				break
			}
		}
	}

	if len(rest) < want.min || len(rest) > want.max {
		return cmd, NewError(ErrSyntax, fmt.Sprintf("%s: wrong number of arguments", cmd.Name))
	}
	cmd.Args = rest

	if cmd.Name == CmdMGET && len(rest) == 1 {
		if n, err := strconv.Atoi(rest[0]); err != nil || n < 0 {
			return cmd, NewError(ErrSyntax, "/MGET: bad count")
		}
	}
	return cmd, nil
}

// Arg returns argument i or "".
func (c *Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

func (c *Command) String() string {
	return c.Line
}

// commandEvent maps a command keyword to its state machine event.
func commandEvent(name string) Event {
	switch name {
	case CmdFPUT:
		return EvArqFPUT
	case CmdFGET:
		return EvArqFGET
	case CmdFLPUT:
		return EvArqFLPUT
	case CmdFLGET:
		return EvArqFLGET
	case CmdMPUT:
		return EvArqMPUT
	case CmdMGET:
		return EvArqMGET
	case CmdMLIST:
		return EvArqMLIST
	case CmdAUTH:
		return EvArqAUTH
	case CmdA1:
		return EvArqA1
	case CmdA2:
		return EvArqA2
	case CmdA3:
		return EvArqA3
	case CmdOK:
		return EvArqOK
	case CmdERROR:
		return EvArqError
	case CmdEAUTH:
		return EvArqEAuth
	default:
		return EvArqUnknown
	}
}

// Kind is the payload category of a transfer.
type Kind int

const (
	KindFile Kind = iota
	KindListing
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindListing:
		return "listing"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Announcement is the header line that precedes a transfer payload.
type Announcement struct {
	Kind     Kind
	Name     string
	Size     int64
	CRC      uint16
	Dest     string
	Compress bool
}

// ParseAnnouncement extracts the transfer header from /FPUT, /FLPUT or /MPUT.
func ParseAnnouncement(cmd *Command) (*Announcement, error) {
	a := &Announcement{Compress: cmd.Compress, Dest: cmd.Dest}
	var sizeArg, crcArg string
	switch cmd.Name {
	case CmdFPUT:
		a.Kind = KindFile
		a.Name, sizeArg, crcArg = cmd.Arg(0), cmd.Arg(1), cmd.Arg(2)
	case CmdFLPUT:
		a.Kind = KindListing
		if len(cmd.Args) == 3 {
			a.Name = cmd.Arg(0)
			sizeArg, crcArg = cmd.Arg(1), cmd.Arg(2)
		} else {
			sizeArg, crcArg = cmd.Arg(0), cmd.Arg(1)
		}
	case CmdMPUT:
		a.Kind = KindMessage
		a.Name, sizeArg, crcArg = strings.ToUpper(cmd.Arg(0)), cmd.Arg(1), cmd.Arg(2)
	default:
		return nil, NewError(ErrSyntax, cmd.Name+" is not an announcement")
	}

	size, err := strconv.ParseInt(sizeArg, 10, 64)
	if err != nil || size < 0 {
		return nil, NewError(ErrSyntax, fmt.Sprintf("%s: bad size %q", cmd.Name, sizeArg))
	}
	a.Size = size

	crc, err := digest.ParseCRC(crcArg)
	if err != nil {
		return nil, WrapError(ErrSyntax, cmd.Name+": bad checksum", err)
	}
	a.CRC = crc
	return a, nil
}

// String renders the announcement as a command line without terminator.
func (a *Announcement) String() string {
	var b strings.Builder
	switch a.Kind {
	case KindFile:
		b.WriteString(CmdFPUT)
	case KindListing:
		b.WriteString(CmdFLPUT)
	case KindMessage:
		b.WriteString(CmdMPUT)
	}
	if a.Compress {
		b.WriteString(" " + compressFlag)
	}
	if a.Name != "" {
		b.WriteString(" " + a.Name)
	}
	fmt.Fprintf(&b, " %d %s", a.Size, digest.FormatCRC(a.CRC))
	if a.Kind == KindFile && a.Dest != "" {
		b.WriteString(" " + destMarker + " " + a.Dest)
	}
	return b.String()
}
