package client

import "context"

// Transport is a single persistent bidirectional message stream to the
// relay service. It is exclusively owned by one Client; the owning state
// machine may tear it down and reopen it (with a freshly negotiated URL)
// without re-deriving a new Transport value.
type Transport interface {
	// Open establishes the stream. The URL carries a short-lived access
	// token. A failure to open is reported as a *ConnectError, distinct
	// from a mid-stream drop.
	Open(ctx context.Context, url string) error

	// Send writes one message to the stream.
	Send(ctx context.Context, data []byte) error

	// Receive returns the inbound message channel for the currently open
	// stream. The channel is closed when the stream terminates; Err then
	// reports the cause. The sequence is infinite and not restartable:
	// after a close, Open must be called again and Receive re-fetched.
	Receive() <-chan []byte

	// Err returns the terminal stream error after the Receive channel is
	// closed. It returns nil after a clean local Close.
	Err() error

	// Close tears down the stream. Safe to call multiple times.
	Close() error
}
