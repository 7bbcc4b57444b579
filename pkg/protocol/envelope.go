package protocol

// SubprotocolJSON is the WebSocket subprotocol name negotiated for this
// codec.
const SubprotocolJSON = "json.pubwire.v1"

// Kind identifies the envelope variant.
type Kind uint8

const (
	// KindUnknown is the forward-compatibility fallback for envelope types
	// this version of the protocol does not recognize.
	KindUnknown Kind = iota

	KindConnected          // Server connect-ack
	KindDisconnected       // Server-initiated disconnect notice
	KindEvent              // Server or group push message
	KindInvocationRequest  // Client -> relay invoke request
	KindInvocationResponse // Relay -> client invoke result
	KindInvocationCancel   // Cancellation of an in-flight invocation
	KindGroupJoin          // Join a group
	KindGroupLeave         // Leave a group
	KindAck                // Acknowledgment of an acked operation
)

// Wire names of the envelope kinds.
const (
	kindConnectedName          = "connected"
	kindDisconnectedName       = "disconnected"
	kindEventName              = "event"
	kindInvocationRequestName  = "invocationRequest"
	kindInvocationResponseName = "invocationResponse"
	kindInvocationCancelName   = "invocationCancel"
	kindGroupJoinName          = "joinGroup"
	kindGroupLeaveName         = "leaveGroup"
	kindAckName                = "ack"
)

// String returns the wire name of the envelope kind.
func (k Kind) String() string {
	switch k {
	case KindConnected:
		return kindConnectedName
	case KindDisconnected:
		return kindDisconnectedName
	case KindEvent:
		return kindEventName
	case KindInvocationRequest:
		return kindInvocationRequestName
	case KindInvocationResponse:
		return kindInvocationResponseName
	case KindInvocationCancel:
		return kindInvocationCancelName
	case KindGroupJoin:
		return kindGroupJoinName
	case KindGroupLeave:
		return kindGroupLeaveName
	case KindAck:
		return kindAckName
	default:
		return "unknown"
	}
}

// Envelope is one discrete typed message exchanged over the persistent
// stream. Exactly one variant field matching Kind is non-nil; for
// KindUnknown the original bytes are preserved in Raw.
type Envelope struct {
	Kind Kind

	Connected          *Connected
	Disconnected       *Disconnected
	Event              *EventMessage
	InvocationRequest  *InvocationRequest
	InvocationResponse *InvocationResponse
	InvocationCancel   *InvocationCancel
	GroupJoin          *GroupJoin
	GroupLeave         *GroupLeave
	Ack                *Ack

	// Raw holds the undecoded envelope bytes for KindUnknown.
	Raw []byte
}

// Connected is the server's connect-ack. A non-empty ReconnectionToken
// marks the session as resumable after a transient drop.
type Connected struct {
	ConnectionID      string
	UserID            string
	ReconnectionToken string
}

// Disconnected is sent by the server before it tears down the stream.
type Disconnected struct {
	Message string
}

// EventMessage is a push message delivered to the client, either from the
// server directly or fanned out from a group.
type EventMessage struct {
	// Event is the event name. Empty for plain group messages.
	Event string

	// Group is the originating group, empty for server messages.
	Group string

	// From is "server" or "group".
	From string

	DataType DataType
	Data     []byte
}

// InvocationRequest asks the relay to forward an event upstream and route
// the upstream handler's response back as an InvocationResponse.
type InvocationRequest struct {
	InvocationID uint64
	Event        string
	DataType     DataType
	Data         []byte
}

// InvocationResponse resolves or rejects one in-flight invocation.
// When Success is false, Error carries the server-supplied detail.
type InvocationResponse struct {
	InvocationID uint64
	DataType     DataType
	Data         []byte
	Success      bool
	Error        *ErrorDetail
}

// InvocationCancel abandons an in-flight invocation. Sent client -> relay
// on timeout (fire-and-forget); a relay may echo it back to confirm.
type InvocationCancel struct {
	InvocationID uint64
}

// GroupJoin subscribes the connection to a group. AckID is zero for
// fire-and-forget joins.
type GroupJoin struct {
	Group string
	AckID uint64
}

// GroupLeave unsubscribes the connection from a group.
type GroupLeave struct {
	Group string
	AckID uint64
}

// Ack reports the outcome of an acked operation (group join/leave).
type Ack struct {
	AckID   uint64
	Success bool
	Error   *ErrorDetail
}

// ErrorDetail is a structured error supplied by the remote side.
type ErrorDetail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}
