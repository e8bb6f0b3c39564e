package arq

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger interface for session logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// FileLogger writes timestamped log lines to a file or any writer
type FileLogger struct {
	w      io.Writer
	closer io.Closer
	debug  bool
	mu     sync.Mutex
}

// NewFileLogger creates a logger that appends to a file
func NewFileLogger(path string, debug bool) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{w: file, closer: file, debug: debug}, nil
}

// NewWriterLogger creates a logger on an already open writer such as
// os.Stderr. Close does not close w.
func NewWriterLogger(w io.Writer, debug bool) *FileLogger {
	return &FileLogger{w: w, debug: debug}
}

func (l *FileLogger) log(level, format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.w, "[%s] %s: %s\n", timestamp, level, msg)
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	if l != nil && l.debug {
		l.log("DEBUG", format, args...)
	}
}

func (l *FileLogger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *FileLogger) Error(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *FileLogger) Close() error {
	if l != nil && l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// formatWireLog formats an ARQ line or payload for logging with truncation
func formatWireLog(direction string, data []byte) string {
	if len(data) > 96 {
		return fmt.Sprintf("%s %d bytes: %q...[truncated]", direction, len(data), data[:96])
	}
	return fmt.Sprintf("%s %d bytes: %q", direction, len(data), data)
}
