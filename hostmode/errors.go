package hostmode

import "errors"

var (
	ErrNotAttached   = errors.New("TNC not attached")
	ErrFrameTooLong  = errors.New("frame payload exceeds 255 bytes")
	ErrCRC           = errors.New("frame CRC mismatch")
	ErrSequence      = errors.New("frame sequence bit mismatch")
	ErrStuffing      = errors.New("invalid byte stuffing")
	ErrNoResponse    = errors.New("no response from TNC")
	ErrLinkClosed    = errors.New("link closed")
	ErrBringupFailed = errors.New("host mode bring-up failed")
)
