package hostmode

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port is the duplex byte path to the TNC. Read returns (0, nil) when the
// read timeout passes without data, the way a serial port does.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// OpenSerial opens a serial TNC at 8N1.
func OpenSerial(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// tcpPort adapts a TCP connection to Port.
type tcpPort struct {
	conn    net.Conn
	mu      sync.Mutex
	timeout time.Duration
}

// DialTCP connects to a TNC that exposes its host port over TCP.
func DialTCP(addr string, timeout time.Duration) (Port, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &tcpPort{conn: conn, timeout: 100 * time.Millisecond}, nil
}

func (p *tcpPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()
	if timeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	n, err := p.conn.Read(b)
	var ne net.Error
	if err != nil && errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	return n, err
}

func (p *tcpPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

func (p *tcpPort) Close() error {
	return p.conn.Close()
}

func (p *tcpPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}
