package arq

import (
	"time"
)

// Config holds the station and protocol parameters of a Session.
type Config struct {
	// MyCall is the local call sign; it is uppercased on use
	MyCall string

	// GridSquare is the Maidenhead locator sent to the TNC and in beacons
	GridSquare string

	// SharedRoot is the base directory for file transfers; empty disables them
	SharedRoot string

	// AllowDirs lists sub-directories of SharedRoot open to remote stations
	AllowDirs []string

	// ProtectedDirs lists sub-directories that require authentication
	ProtectedDirs []string

	// DenyDirs lists sub-directories never exposed, even if they exist
	DenyDirs []string

	// AutoRegisterDirs registers every sub-directory found under SharedRoot
	AutoRegisterDirs bool

	// CredentialFile names the credential store; it is never served
	CredentialFile string

	// MaxFileSize bounds file and listing transfers in bytes
	MaxFileSize int64

	// MaxMessageSize bounds message transfers in bytes
	MaxMessageSize int64

	// AckTimeout bounds the wait for a message ack or query response
	AckTimeout time.Duration

	// TxTimeout bounds the wait for the TNC buffer to drain
	TxTimeout time.Duration

	// ArqTimeout bounds each wait inside a connected session
	ArqTimeout time.Duration

	// ConnectTimeout bounds an outgoing ARQ call
	ConnectTimeout time.Duration

	// PingTimeout bounds the wait for a PINGACK
	PingTimeout time.Duration

	// DisconnectTimeout bounds an orderly disconnect
	DisconnectTimeout time.Duration

	// SendRepeats is the number of retransmissions of an unacked message
	SendRepeats int

	// Downshift lowers the FEC mode before the final retransmission
	Downshift bool

	// BusyRetryInterval spaces the checks of a busy channel while a
	// message waits to be sent; the wait as a whole is bounded by TxTimeout
	BusyRetryInterval time.Duration

	// ConnectRepeats bounds re-dials after REJECTEDBW
	ConnectRepeats int

	// PilotPings is the ping count sent ahead of a message; 0 disables
	PilotPings int

	// PilotPingThreshold is the minimum PINGACK quality that releases a message
	PilotPingThreshold int

	// FECMode is the TNC FEC mode used for unproto frames
	FECMode string

	// ARQBandwidth is the TNC ARQ bandwidth used for calls
	ARQBandwidth string

	// BeaconInterval enables periodic beacons when positive
	BeaconInterval time.Duration

	// BeaconText is appended to beacons
	BeaconText string

	// TickInterval is the period of the timeout check
	TickInterval time.Duration

	// ProgressInterval rate-limits progress callbacks
	ProgressInterval time.Duration

	// Version is reported in answers to version queries
	Version string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CredentialFile:     "arim-digest",
		MaxFileSize:        20 * 1024,
		MaxMessageSize:     16 * 1024,
		AckTimeout:         30 * time.Second,
		TxTimeout:          60 * time.Second,
		ArqTimeout:         120 * time.Second,
		ConnectTimeout:     60 * time.Second,
		PingTimeout:        30 * time.Second,
		DisconnectTimeout:  30 * time.Second,
		SendRepeats:        2,
		Downshift:          true,
		BusyRetryInterval:  5 * time.Second,
		ConnectRepeats:     3,
		PilotPingThreshold: 60,
		FECMode:            "4FSK.500.100S",
		ARQBandwidth:       "500MAX",
		TickInterval:       time.Second,
		ProgressInterval:   time.Second,
		Version:            "hostarq 1.0",
	}
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(cfg *Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithCallbacks sets the UI callbacks.
func WithCallbacks(cb *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(cb)
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithMailbox sets the message store.
func WithMailbox(mb Mailbox) Option {
	return func(s *Session) {
		if mb != nil {
			s.mailbox = mb
		}
	}
}

// WithCredentials sets the credential store used for authentication.
func WithCredentials(c Credentials) Option {
	return func(s *Session) {
		s.creds = c
	}
}

// WithShares sets the shared directory registry. Without it the registry
// is built from the Config.
func WithShares(sh *Shares) Option {
	return func(s *Session) {
		s.shares = sh
	}
}
