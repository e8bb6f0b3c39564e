package arq

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mailbox boxes
const (
	BoxIn   = "in"
	BoxOut  = "out"
	BoxSent = "sent"
)

const mailDateLayout = "2006/01/02 15:04:05 UTC"

// MailMessage is one stored message.
type MailMessage struct {
	ID   string
	From string
	To   string
	Time time.Time
	Body string
}

// Marshal renders m as a header block, a blank line and the body. This is
// both the /MPUT payload and the on-disk form.
func (m MailMessage) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\n", m.From)
	fmt.Fprintf(&b, "To: %s\n", m.To)
	fmt.Fprintf(&b, "Date: %s\n\n", m.Time.UTC().Format(mailDateLayout))
	b.WriteString(m.Body)
	return b.Bytes()
}

// Header returns the one-line summary used in message listings.
func (m MailMessage) Header() string {
	return fmt.Sprintf("%s %s %s %s %d", m.ID, m.From, m.To, m.Time.UTC().Format("2006-01-02 15:04"), len(m.Body))
}

// ParseMailMessage reverses Marshal. Missing headers are left empty.
func ParseMailMessage(p []byte) (MailMessage, error) {
	var m MailMessage
	r := bufio.NewReader(bytes.NewReader(p))
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if err != nil && line == "" {
				return m, NewError(ErrSyntax, "message without body separator")
			}
			break
		}
		key, val, ok := strings.Cut(trimmed, ":")
		if !ok {
			return m, NewError(ErrSyntax, "bad message header "+trimmed)
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(key) {
		case "from":
			m.From = strings.ToUpper(val)
		case "to":
			m.To = strings.ToUpper(val)
		case "date":
			if t, err := time.Parse(mailDateLayout, val); err == nil {
				m.Time = t
			}
		}
		if err != nil {
			return m, NewError(ErrSyntax, "message without body separator")
		}
	}
	var body bytes.Buffer
	body.ReadFrom(r)
	m.Body = body.String()
	return m, nil
}

// Mailbox stores messages in named boxes. List returns headers only; Read
// returns the full message.
type Mailbox interface {
	Append(box string, m MailMessage) (string, error)
	List(box, to string) ([]MailMessage, error)
	Read(box, id string) (MailMessage, error)
	Delete(box, id string) error
}

// MemMailbox keeps messages in memory.
type MemMailbox struct {
	mu    sync.Mutex
	boxes map[string][]MailMessage
	seq   int
}

// NewMemMailbox creates an empty in-memory mailbox.
func NewMemMailbox() *MemMailbox {
	return &MemMailbox{boxes: make(map[string][]MailMessage)}
}

func (mb *MemMailbox) Append(box string, m MailMessage) (string, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.seq++
	m.ID = fmt.Sprintf("%06d", mb.seq)
	mb.boxes[box] = append(mb.boxes[box], m)
	return m.ID, nil
}

func (mb *MemMailbox) List(box, to string) ([]MailMessage, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []MailMessage
	for _, m := range mb.boxes[box] {
		if to == "" || strings.EqualFold(m.To, to) {
			h := m
			h.Body = ""
			out = append(out, h)
		}
	}
	return out, nil
}

func (mb *MemMailbox) Read(box, id string) (MailMessage, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, m := range mb.boxes[box] {
		if m.ID == id {
			return m, nil
		}
	}
	return MailMessage{}, NewError(ErrResource, "no message "+id)
}

func (mb *MemMailbox) Delete(box, id string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	msgs := mb.boxes[box]
	for i, m := range msgs {
		if m.ID == id {
			mb.boxes[box] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return NewError(ErrResource, "no message "+id)
}

// DirMailbox stores one file per message under root/<box>/.
type DirMailbox struct {
	root string
	mu   sync.Mutex
}

// NewDirMailbox creates the box directories under root.
func NewDirMailbox(root string) (*DirMailbox, error) {
	for _, box := range []string{BoxIn, BoxOut, BoxSent} {
		if err := os.MkdirAll(filepath.Join(root, box), 0755); err != nil {
			return nil, WrapError(ErrResource, "create mailbox", err)
		}
	}
	return &DirMailbox{root: root}, nil
}

func (mb *DirMailbox) boxDir(box string) (string, error) {
	switch box {
	case BoxIn, BoxOut, BoxSent:
		return filepath.Join(mb.root, box), nil
	}
	return "", NewError(ErrResource, "no mailbox "+box)
}

func (mb *DirMailbox) msgPath(box, id string) (string, error) {
	dir, err := mb.boxDir(box)
	if err != nil {
		return "", err
	}
	if id == "" || strings.ContainsAny(id, "/\\") || strings.HasPrefix(id, ".") {
		return "", NewError(ErrResource, "bad message id")
	}
	return filepath.Join(dir, id), nil
}

func (mb *DirMailbox) Append(box string, m MailMessage) (string, error) {
	dir, err := mb.boxDir(box)
	if err != nil {
		return "", err
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	stamp := m.Time.UTC().Format("20060102-150405")
	for n := 0; ; n++ {
		id := fmt.Sprintf("%s-%03d", stamp, n)
		p := filepath.Join(dir, id)
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := writeFileAtomic(p, m.Marshal(), 0644); err != nil {
			return "", WrapError(ErrResource, "store message", err)
		}
		return id, nil
	}
}

func (mb *DirMailbox) List(box, to string) ([]MailMessage, error) {
	dir, err := mb.boxDir(box)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, WrapError(ErrResource, "read mailbox", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []MailMessage
	for _, id := range names {
		m, err := mb.Read(box, id)
		if err != nil {
			continue
		}
		if to != "" && !strings.EqualFold(m.To, to) {
			continue
		}
		m.Body = ""
		out = append(out, m)
	}
	return out, nil
}

func (mb *DirMailbox) Read(box, id string) (MailMessage, error) {
	p, err := mb.msgPath(box, id)
	if err != nil {
		return MailMessage{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return MailMessage{}, WrapError(ErrResource, "read message", err)
	}
	m, err := ParseMailMessage(data)
	if err != nil {
		return MailMessage{}, err
	}
	m.ID = id
	return m, nil
}

func (mb *DirMailbox) Delete(box, id string) error {
	p, err := mb.msgPath(box, id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return WrapError(ErrResource, "delete message", err)
	}
	return nil
}
