package client

// State is the connection lifecycle state of a Client.
type State int32

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota

	// StateConnecting means the stream is being opened and the client is
	// waiting for the server's connect-ack.
	StateConnecting

	// StateConnected means the stream is established and envelopes flow.
	StateConnected

	// StateRecovering means the stream dropped unexpectedly and the client
	// is attempting a silent resume.
	StateRecovering
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateRecovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}
