package arq

import (
	"errors"
	"fmt"
)

// Error represents a session or transfer failure.
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Err is the underlying cause, if any
	Err error
}

// ErrorType categorizes session errors.
type ErrorType int

const (
	// ErrSyntax indicates a malformed command or missing token
	ErrSyntax ErrorType = iota

	// ErrIntegrity indicates a CRC, digest or decompression mismatch
	ErrIntegrity

	// ErrResource indicates a size limit, path or store rejection
	ErrResource

	// ErrTimeout indicates a wait state expired
	ErrTimeout

	// ErrTransport indicates the link refused or lost data
	ErrTransport

	// ErrAuth indicates authentication was refused or failed
	ErrAuth

	// ErrCancelled indicates the operator cancelled
	ErrCancelled

	// ErrBusy indicates the channel or session cannot transmit now
	ErrBusy
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("arq %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("arq %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (t ErrorType) String() string {
	switch t {
	case ErrSyntax:
		return "syntax error"
	case ErrIntegrity:
		return "integrity error"
	case ErrResource:
		return "resource error"
	case ErrTimeout:
		return "timeout"
	case ErrTransport:
		return "transport error"
	case ErrAuth:
		return "auth error"
	case ErrCancelled:
		return "cancelled"
	case ErrBusy:
		return "busy"
	default:
		return "unknown error"
	}
}

// NewError creates a new session error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// WrapError creates a session error with an underlying cause.
func WrapError(errType ErrorType, message string, err error) *Error {
	return &Error{Type: errType, Message: message, Err: err}
}

func isType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsSyntax checks if an error is a protocol syntax error
func IsSyntax(err error) bool { return isType(err, ErrSyntax) }

// IsIntegrity checks if an error is a checksum or digest mismatch
func IsIntegrity(err error) bool { return isType(err, ErrIntegrity) }

// IsResource checks if an error is a resource rejection
func IsResource(err error) bool { return isType(err, ErrResource) }

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool { return isType(err, ErrTimeout) }

// IsAuth checks if an error is an authentication failure
func IsAuth(err error) bool { return isType(err, ErrAuth) }

// IsBusy checks if an error reports a busy channel
func IsBusy(err error) bool { return isType(err, ErrBusy) }
