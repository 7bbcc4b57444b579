package client

import (
	"errors"
	"fmt"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// Sentinel errors for common client error conditions.
var (
	// ErrClosed is returned when an operation is attempted on a closed client.
	ErrClosed = errors.New("client: closed")

	// ErrNotConnected is returned when an operation requires an established
	// connection and there is none.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrStreamDropped is the terminal transport error for an unexpected
	// mid-stream drop, as opposed to a failure to open the stream.
	ErrStreamDropped = errors.New("client: stream dropped")

	// ErrRecoveryFailed is returned when the recovery window is exhausted
	// or the server rejects the resume attempt.
	ErrRecoveryFailed = errors.New("client: recovery failed")
)

// ConnectError reports a failure to establish the stream: negotiation,
// authentication, or an unreachable relay. It is fatal to session start
// and never retried by the client; retry policy belongs to the caller.
type ConnectError struct {
	Op  string // "negotiate", "dial", or "handshake"
	Err error
}

// Error returns the error message.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("client: connect: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// InvocationError reports a failed invocation. A nil ErrorDetail marks a
// client-side cancellation (timeout, context cancellation, or connection
// teardown); a non-nil ErrorDetail carries the server-supplied error.
type InvocationError struct {
	InvocationID uint64
	Message      string
	ErrorDetail  *protocol.ErrorDetail
}

// Error returns the error message.
func (e *InvocationError) Error() string {
	if e.ErrorDetail == nil {
		return fmt.Sprintf("client: invocation %d: %s", e.InvocationID, e.Message)
	}
	return fmt.Sprintf("client: invocation %d: %s: %v", e.InvocationID, e.Message, e.ErrorDetail)
}

// IsCancellation reports whether the invocation failed client-side rather
// than with a server-reported error.
func (e *InvocationError) IsCancellation() bool {
	return e.ErrorDetail == nil
}

// newCancellationError creates a client-side cancellation error. It carries
// no structured detail, distinguishing it from a remote error.
func newCancellationError(id uint64, message string) *InvocationError {
	return &InvocationError{InvocationID: id, Message: message}
}

// newRemoteError creates an error from a server-supplied ErrorDetail.
func newRemoteError(id uint64, detail *protocol.ErrorDetail) *InvocationError {
	return &InvocationError{
		InvocationID: id,
		Message:      "remote error",
		ErrorDetail:  detail,
	}
}
