package upstream

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// CloudEvents-style headers carried on relay webhook deliveries.
const (
	HeaderEventType    = "ce-type"
	HeaderEventName    = "ce-eventname"
	HeaderUserID       = "ce-userid"
	HeaderConnectionID = "ce-connectionid"
	HeaderHub          = "ce-hub"

	// Abuse protection handshake headers.
	HeaderWebHookRequestOrigin = "WebHook-Request-Origin"
	HeaderWebHookAllowedOrigin = "WebHook-Allowed-Origin"

	// MetadataPrefix marks request and response headers that carry
	// application metadata through the relay untouched.
	MetadataPrefix = "X-Pubwire-Metadata-"
)

// Event type values of the ce-type header.
const (
	TypeSysConnect      = "pubwire.sys.connect"
	TypeSysConnected    = "pubwire.sys.connected"
	TypeSysDisconnected = "pubwire.sys.disconnected"

	// TypeUserPrefix prefixes application-defined events; the event name
	// rides in ce-eventname.
	TypeUserPrefix = "pubwire.user."
)

// EventRequest is one user event delivered by the relay.
type EventRequest struct {
	Hub          string
	ConnectionID string
	UserID       string

	// Event is the application event name from ce-eventname.
	Event string

	DataType protocol.DataType
	Data     []byte

	// Metadata holds X-Pubwire-Metadata-* request headers, keyed by the
	// canonical suffix.
	Metadata map[string]string
}

// EventResponse is a handler's reply, relayed back to the invoking client.
// A nil response produces an empty 200.
type EventResponse struct {
	DataType protocol.DataType
	Data     []byte
	Metadata map[string]string
}

// Handler processes one user event.
type Handler interface {
	HandleEvent(ctx context.Context, req *EventRequest) (*EventResponse, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *EventRequest) (*EventResponse, error)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, req *EventRequest) (*EventResponse, error) {
	return f(ctx, req)
}

// EventError is a handler failure with an explicit HTTP status. The status
// and message travel back to the invoking client as the invocation error.
// Any other handler error maps to a 500.
type EventError struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *EventError) Error() string {
	return fmt.Sprintf("upstream: event failed with status %d: %s", e.StatusCode, e.Message)
}

// Errorf builds an EventError with a formatted message.
func Errorf(status int, format string, args ...any) *EventError {
	return &EventError{StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// ConnectRequest is the system connect event payload: the query and claims
// the client presented when dialing the relay.
type ConnectRequest struct {
	Hub          string
	ConnectionID string

	Query  url.Values
	Claims map[string][]string
}

// ConnectResponse assigns the connection its identity.
type ConnectResponse struct {
	UserID string   `json:"userId,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// ConnectHandler decides whether a connecting client is admitted and which
// user identity it gets. Returning an error rejects the connection.
type ConnectHandler func(ctx context.Context, req *ConnectRequest) (*ConnectResponse, error)
