package ipc

import "errors"

// Sentinel errors surfaced by this transport. Callers compare against
// these with errors.Is. A low-level net/go-winio stream error is not
// mapped to one of them (context cancellation aside, which becomes
// ErrCanceled): Pipe returns it wrapped with github.com/pkg/errors, so
// the original cause remains reachable through errors.Is/errors.Unwrap.
var (
	// ErrNoMemory names the no-memory error kind. No code path in this
	// package returns it: structs and incoming message bodies are
	// allocated with plain Go allocation, which does not report failure
	// as an error.
	ErrNoMemory = errors.New("ipc: insufficient memory")

	// ErrAddrInvalid is returned when a URL does not start with
	// "ipc://" or exceeds the maximum address length.
	ErrAddrInvalid = errors.New("ipc: invalid address")

	// ErrProtocol is returned on handshake magic mismatch, a frame
	// type byte other than 0x01, or non-zero reserved bytes.
	ErrProtocol = errors.New("ipc: protocol error")

	// ErrMsgTooLarge is returned when an incoming frame's declared
	// length exceeds the pipe's rcvmax.
	ErrMsgTooLarge = errors.New("ipc: message too large")

	// ErrNotSupported is returned by GetOption/SetOption for every
	// option name; no options (e.g. LOCALADDR/REMOTEADDR) are wired up
	// yet.
	ErrNotSupported = errors.New("ipc: option not supported")

	// ErrClosed is returned by any operation attempted on a pipe or
	// endpoint after Close.
	ErrClosed = errors.New("ipc: closed")

	// ErrCanceled is returned to the caller of a Send/Recv/Start/
	// Dial/Accept whose context was canceled before completion.
	ErrCanceled = errors.New("ipc: operation canceled")
)
