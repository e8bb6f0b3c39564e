package arq

import (
	"time"
)

// Callbacks provides hooks for session events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnStatus is called with operator-visible status lines.
	OnStatus func(msg string)

	// OnProgress is called periodically during a transfer.
	// name: logical name of the transfer
	// transferred: payload bytes moved so far
	// total: declared payload size
	// rate: transfer rate in bytes per second
	OnProgress func(name string, transferred, total int64, rate float64)

	// OnTransferStart is called when a transfer record is created.
	OnTransferStart func(name string, size int64, inbound bool)

	// OnTransferComplete is called when a transfer finished and was accepted.
	OnTransferComplete func(name string, size int64, inbound bool, duration time.Duration)

	// OnMessage is called for every message stored in the inbox.
	OnMessage func(msg MailMessage)

	// OnResponse is called with the answer to a query.
	OnResponse func(from, body string)

	// OnListing is called with a received file or message listing.
	OnListing func(name string, listing []byte)

	// OnHeard is called for beacons and traffic between other stations.
	OnHeard func(call, info string)

	// OnError is called for every failure the session handles.
	// context: description of where the error occurred
	OnError func(err error, context string)

	// OnTransition is called after every state change.
	OnTransition func(t Transition)
}

// Transition is the diagnostic record emitted on a state change.
type Transition struct {
	Event     Event
	Param     string
	From      State
	To        State
	Timestamp time.Time
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnStatus:           func(string) {},
		OnProgress:         func(string, int64, int64, float64) {},
		OnTransferStart:    func(string, int64, bool) {},
		OnTransferComplete: func(string, int64, bool, time.Duration) {},
		OnMessage:          func(MailMessage) {},
		OnResponse:         func(string, string) {},
		OnListing:          func(string, []byte) {},
		OnHeard:            func(string, string) {},
		OnError:            func(error, string) {},
		OnTransition:       func(Transition) {},
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}

	if user.OnStatus != nil {
		result.OnStatus = user.OnStatus
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnTransferStart != nil {
		result.OnTransferStart = user.OnTransferStart
	}
	if user.OnTransferComplete != nil {
		result.OnTransferComplete = user.OnTransferComplete
	}
	if user.OnMessage != nil {
		result.OnMessage = user.OnMessage
	}
	if user.OnResponse != nil {
		result.OnResponse = user.OnResponse
	}
	if user.OnListing != nil {
		result.OnListing = user.OnListing
	}
	if user.OnHeard != nil {
		result.OnHeard = user.OnHeard
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnTransition != nil {
		result.OnTransition = user.OnTransition
	}

	return result
}
