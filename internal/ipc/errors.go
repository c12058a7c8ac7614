package ipc

import "errors"

// Sentinel errors for errors.Is checks at the boundary.
var (
	// ErrConnClosed reports use of a closed connection; in-flight
	// transactions fail with it when Close is called.
	ErrConnClosed = errors.New("ipc: connection closed")
	// ErrServiceNotFound reports a hub lookup for an unregistered name.
	ErrServiceNotFound = errors.New("ipc: service not found")
	// ErrTimeout reports a transaction abandoned by a context deadline.
	ErrTimeout = errors.New("ipc: transaction timed out")
	// ErrProtocol reports a framing or payload violation by the peer.
	ErrProtocol = errors.New("ipc: protocol violation")
)
