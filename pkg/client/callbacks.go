package client

import (
	"sync"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// CallbackKind identifies a client lifecycle or message callback slot.
type CallbackKind uint8

const (
	// CallbackConnected fires on receipt of the server's connect-ack,
	// including the ack that completes a successful resume.
	CallbackConnected CallbackKind = iota

	// CallbackDisconnected fires when the session reaches Disconnected.
	CallbackDisconnected

	// CallbackServerMessage fires for event messages pushed by the server.
	CallbackServerMessage

	// CallbackGroupMessage fires for event messages fanned out from groups.
	CallbackGroupMessage
)

// ConnectedArgs is passed to connected callbacks.
type ConnectedArgs struct {
	ConnectionID string
	UserID       string
}

// DisconnectedArgs is passed to disconnected callbacks.
type DisconnectedArgs struct {
	ConnectionID string
	Message      string
}

// MessageArgs is passed to server and group message callbacks.
type MessageArgs struct {
	Event    string
	Group    string
	DataType protocol.DataType
	Data     []byte
}

// callbackRegistry maps each callback kind to an ordered list of handlers.
// Handlers run in registration order.
type callbackRegistry struct {
	mu       sync.RWMutex
	handlers map[CallbackKind][]func(any)
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{handlers: make(map[CallbackKind][]func(any))}
}

func (r *callbackRegistry) add(kind CallbackKind, fn func(any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], fn)
}

// snapshot returns the current handler list for a kind. The returned slice
// is never mutated afterwards, so it is safe to iterate without the lock.
func (r *callbackRegistry) snapshot(kind CallbackKind) []func(any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// OnConnected registers a callback invoked after every connect-ack.
func (c *Client) OnConnected(fn func(ConnectedArgs)) {
	c.callbacks.add(CallbackConnected, func(v any) { fn(v.(ConnectedArgs)) })
}

// OnDisconnected registers a callback invoked when the session reaches
// Disconnected.
func (c *Client) OnDisconnected(fn func(DisconnectedArgs)) {
	c.callbacks.add(CallbackDisconnected, func(v any) { fn(v.(DisconnectedArgs)) })
}

// OnServerMessage registers a callback for messages pushed by the server.
func (c *Client) OnServerMessage(fn func(MessageArgs)) {
	c.callbacks.add(CallbackServerMessage, func(v any) { fn(v.(MessageArgs)) })
}

// OnGroupMessage registers a callback for messages fanned out from groups.
func (c *Client) OnGroupMessage(fn func(MessageArgs)) {
	c.callbacks.add(CallbackGroupMessage, func(v any) { fn(v.(MessageArgs)) })
}

// emit queues the handlers for kind on the callback goroutine. Handlers
// run in registration order, synchronously with respect to each other and
// asynchronously with respect to the read loop. When the callback queue is
// full the emission is dropped and logged rather than blocking dispatch.
func (c *Client) emit(kind CallbackKind, args any) {
	handlers := c.callbacks.snapshot(kind)
	if len(handlers) == 0 {
		return
	}
	job := func() {
		for _, fn := range handlers {
			fn(args)
		}
	}
	select {
	case c.callbackCh <- job:
	default:
		c.logger.Warn("callback queue full, dropping callback", "kind", kind)
	}
}

// callbackLoop drains the callback queue until the client is torn down.
func (c *Client) callbackLoop() {
	for {
		select {
		case job := <-c.callbackCh:
			job()
		case <-c.done:
			// Drain anything already queued so disconnected callbacks
			// emitted during teardown still run.
			for {
				select {
				case job := <-c.callbackCh:
					job()
				default:
					return
				}
			}
		}
	}
}
