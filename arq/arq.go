// Package arq implements the station side of a half-duplex radio messaging
// protocol running over a host-mode TNC.
//
// A Session serializes all channel activity into one legal action at a
// time. It covers unacknowledged (FEC) messages, queries and beacons with
// their ack/retry handling, and the connected (ARQ) mode with a small text
// command protocol: files, directory listings and messages are moved by one
// generic chunked transfer engine, and access-controlled directories are
// guarded by a digest challenge-response exchange.
//
// Wire commands are newline-terminated text lines:
//
//	/FPUT [-z] name size crc16hex [> destdir]
//	/FGET [-z] name [> destdir]
//	/FLPUT [-z] [dir] size crc16hex
//	/FLGET [-z] [dir]
//	/MPUT [-z] callsign size crc16hex
//	/MGET [-z] [count]
//	/MLIST
//	/AUTH [path]
//	/A1 nonce
//	/A2 response cnonce
//	/A3 response
//	/OK [details]
//	/ERROR message
//	/EAUTH
//
// Sizes are decimal byte counts; checksums are CRC-16/X.25 as 4 hex digits.
package arq

// Command keywords
const (
	CmdFPUT  = "/FPUT"
	CmdFGET  = "/FGET"
	CmdFLPUT = "/FLPUT"
	CmdFLGET = "/FLGET"
	CmdMPUT  = "/MPUT"
	CmdMGET  = "/MGET"
	CmdMLIST = "/MLIST"
	CmdAUTH  = "/AUTH"
	CmdA1    = "/A1"
	CmdA2    = "/A2"
	CmdA3    = "/A3"
	CmdOK    = "/OK"
	CmdERROR = "/ERROR"
	CmdEAUTH = "/EAUTH"
)

// compressFlag marks a compressed transfer.
const compressFlag = "-z"

// destMarker introduces the destination directory of /FPUT and /FGET.
const destMarker = ">"

// maxLineLen bounds a command line; longer input is a protocol error.
const maxLineLen = 512

// TNC commands issued by the session
const (
	tncAbort      = "ABORT"
	tncDisconnect = "DISCONNECT"
	tncFECSend    = "FECSEND TRUE"
	tncARQCall    = "ARQCALL"
	tncARQBW      = "ARQBW"
	tncFECMode    = "FECMODE"
	tncPing       = "PING"
	tncMyCall     = "MYCALL"
	tncGrid       = "GRIDSQUARE"
	tncListen     = "LISTEN TRUE"
)
