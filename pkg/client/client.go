package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// Query parameters carried on the resume URL.
const (
	resumeConnectionIDParam = "pw_connection_id"
	resumeTokenParam        = "pw_reconnection_token"
)

// InvokeResult is the payload returned by a successful invocation.
type InvokeResult struct {
	DataType protocol.DataType
	Data     []byte
}

// Client is a session over a single Transport to the relay service. It
// owns the connection lifecycle (Disconnected, Connecting, Connected,
// Recovering), routes inbound envelopes, and correlates invocations with
// their responses.
//
// A Client is safe for concurrent use. It is single-shot with respect to
// Close: once closed it cannot be reconnected.
type Client struct {
	cfg       *Config
	negotiate NegotiateFunc
	transport Transport
	logger    *slog.Logger

	callbacks  *callbackRegistry
	callbackCh chan func()

	invocations *invocationTable
	acks        *invocationTable

	done      chan struct{}
	closeOnce sync.Once

	mu             sync.Mutex
	state          State
	connectionID   string
	userID         string
	reconnToken    string
	lastDisconnect string
	groups         map[string]struct{}
	ready          chan struct{}
}

// NewClient creates a client speaking over a WebSocket transport. The
// negotiate function is consulted for a fresh client access URL on every
// connect and resume attempt. A nil cfg uses DefaultConfig.
func NewClient(negotiate NegotiateFunc, cfg *Config) *Client {
	return NewClientWithTransport(negotiate, NewWebSocketTransport(), cfg)
}

// NewClientWithTransport creates a client over a caller-supplied Transport.
func NewClientWithTransport(negotiate NegotiateFunc, transport Transport, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "client")
	}

	c := &Client{
		cfg:         cfg,
		negotiate:   negotiate,
		transport:   transport,
		logger:      cfg.Logger,
		callbacks:   newCallbackRegistry(),
		callbackCh:  make(chan func(), cfg.CallbackQueueSize),
		invocations: newInvocationTable(),
		acks:        newInvocationTable(),
		done:        make(chan struct{}),
		groups:      make(map[string]struct{}),
	}
	go c.callbackLoop()
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the server-assigned connection id, empty until the
// first connect-ack arrives.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// UserID returns the user identity the server bound to this connection.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect negotiates an access URL, opens the stream, and waits for the
// server's connect-ack. Negotiation and dial failures are reported as
// *ConnectError and leave the client Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed() {
		return ErrClosed
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	accessURL, err := c.negotiate(ctx)
	if err != nil {
		c.setDisconnected()
		return &ConnectError{Op: "negotiate", Err: err}
	}

	if err := c.openAndAwaitAck(ctx, accessURL); err != nil {
		c.setDisconnected()
		return err
	}
	return nil
}

// openAndAwaitAck opens the transport against accessURL, starts the read
// loop, and blocks until the connect-ack arrives, the stream dies, or the
// handshake window expires. The caller owns the state transition on failure.
func (c *Client) openAndAwaitAck(ctx context.Context, accessURL string) error {
	ready := make(chan struct{})
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()

	if err := c.transport.Open(ctx, accessURL); err != nil {
		return err
	}

	streamDone := make(chan struct{})
	go c.readLoop(c.transport.Receive(), streamDone)

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-streamDone:
		c.transport.Close()
		return &ConnectError{Op: "handshake", Err: fmt.Errorf("stream closed before connect ack: %w", c.streamErr())}
	case <-timer.C:
		c.transport.Close()
		return &ConnectError{Op: "handshake", Err: fmt.Errorf("no connect ack within %s", c.cfg.ConnectTimeout)}
	case <-ctx.Done():
		c.transport.Close()
		return &ConnectError{Op: "handshake", Err: ctx.Err()}
	case <-c.done:
		c.transport.Close()
		return ErrClosed
	}
}

func (c *Client) streamErr() error {
	if err := c.transport.Err(); err != nil {
		return err
	}
	return ErrStreamDropped
}

// readLoop decodes and routes inbound envelopes until the stream ends.
// Malformed single envelopes are logged and dropped without tearing the
// stream down. On an unexpected drop while Connected it hands off to the
// recovery path.
func (c *Client) readLoop(recv <-chan []byte, streamDone chan struct{}) {
	for msg := range recv {
		env, err := protocol.Decode(msg)
		if err != nil {
			c.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}
		c.handle(env)
	}
	close(streamDone)

	if c.transport.Err() == nil {
		// Clean local close; Close handles the rest.
		return
	}

	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected {
		go c.recover(c.transport.Err())
	}
}

func (c *Client) handle(env *protocol.Envelope) {
	switch env.Kind {
	case protocol.KindConnected:
		c.handleConnected(env.Connected)
	case protocol.KindDisconnected:
		c.handleDisconnected(env.Disconnected)
	case protocol.KindEvent:
		c.handleEvent(env.Event)
	case protocol.KindInvocationResponse:
		c.handleInvocationResponse(env.InvocationResponse)
	case protocol.KindInvocationCancel:
		// Cancel echo from the relay. The entry is normally gone already;
		// if not, complete it as a client-side cancellation.
		if p, ok := c.invocations.take(env.InvocationCancel.InvocationID); ok {
			p.complete(invocationResult{err: newCancellationError(p.id, "invocation canceled")})
		}
	case protocol.KindAck:
		c.handleAck(env.Ack)
	case protocol.KindUnknown:
		c.logger.Debug("ignoring unknown envelope kind")
	default:
		c.logger.Debug("ignoring unexpected inbound envelope", "kind", env.Kind.String())
	}
}

func (c *Client) handleConnected(msg *protocol.Connected) {
	c.mu.Lock()
	c.connectionID = msg.ConnectionID
	c.userID = msg.UserID
	if msg.ReconnectionToken != "" {
		c.reconnToken = msg.ReconnectionToken
	}
	c.lastDisconnect = ""
	c.state = StateConnected
	ready := c.ready
	c.ready = nil
	c.mu.Unlock()

	if ready != nil {
		close(ready)
	}

	c.logger.Info("connected", "connection_id", msg.ConnectionID, "user_id", msg.UserID)
	c.emit(CallbackConnected, ConnectedArgs{
		ConnectionID: msg.ConnectionID,
		UserID:       msg.UserID,
	})
}

// handleDisconnected records the server's reason and disables resume: a
// deliberate server-side disconnect is not a transient drop.
func (c *Client) handleDisconnected(msg *protocol.Disconnected) {
	c.mu.Lock()
	c.lastDisconnect = msg.Message
	c.reconnToken = ""
	c.mu.Unlock()
	c.logger.Info("server disconnect notice", "message", msg.Message)
}

func (c *Client) handleEvent(msg *protocol.EventMessage) {
	args := MessageArgs{
		Event:    msg.Event,
		Group:    msg.Group,
		DataType: msg.DataType,
		Data:     msg.Data,
	}
	if msg.Group != "" {
		c.emit(CallbackGroupMessage, args)
		return
	}
	c.emit(CallbackServerMessage, args)
}

// handleInvocationResponse resolves the matching pending invocation.
// Responses for unknown ids, duplicates included, are dropped silently.
func (c *Client) handleInvocationResponse(msg *protocol.InvocationResponse) {
	p, ok := c.invocations.take(msg.InvocationID)
	if !ok {
		c.logger.Debug("dropping response for unknown invocation", "invocation_id", msg.InvocationID)
		return
	}

	if !msg.Success {
		detail := msg.Error
		if detail == nil {
			detail = &protocol.ErrorDetail{Message: "invocation failed"}
		}
		p.complete(invocationResult{err: newRemoteError(msg.InvocationID, detail)})
		return
	}

	p.complete(invocationResult{dataType: msg.DataType, data: msg.Data})
}

func (c *Client) handleAck(msg *protocol.Ack) {
	p, ok := c.acks.take(msg.AckID)
	if !ok {
		c.logger.Debug("dropping ack for unknown operation", "ack_id", msg.AckID)
		return
	}
	if !msg.Success {
		detail := msg.Error
		if detail == nil {
			detail = &protocol.ErrorDetail{Message: "operation rejected"}
		}
		p.complete(invocationResult{err: newRemoteError(msg.AckID, detail)})
		return
	}
	p.complete(invocationResult{})
}

// send encodes and writes one envelope to the stream.
func (c *Client) send(ctx context.Context, env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, data)
}

func (c *Client) requireConnected() error {
	if c.closed() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// SendEvent sends a fire-and-forget event to the relay.
func (c *Client) SendEvent(ctx context.Context, event string, dataType protocol.DataType, data []byte) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	return c.send(ctx, &protocol.Envelope{
		Kind: protocol.KindEvent,
		Event: &protocol.EventMessage{
			Event:    event,
			DataType: dataType,
			Data:     data,
		},
	})
}

// Invoke sends an event upstream and waits for the correlated response.
// Each call is independent: concurrent invocations resolve in whatever
// order their responses arrive. When ctx carries no deadline the
// configured InvokeTimeout applies. On timeout or cancellation the pending
// entry is removed, a best-effort invocationCancel is sent, and the error
// is a client-side cancellation (IsCancellation true); a server-reported
// failure carries the remote ErrorDetail instead.
func (c *Client) Invoke(ctx context.Context, event string, dataType protocol.DataType, data []byte) (*InvokeResult, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InvokeTimeout)
		defer cancel()
	}

	p := c.invocations.register()

	err := c.send(ctx, &protocol.Envelope{
		Kind: protocol.KindInvocationRequest,
		InvocationRequest: &protocol.InvocationRequest{
			InvocationID: p.id,
			Event:        event,
			DataType:     dataType,
			Data:         data,
		},
	})
	if err != nil {
		if _, ok := c.invocations.take(p.id); ok {
			return nil, err
		}
		// Lost the race with a concurrent teardown; report its outcome.
		<-p.done
		return nil, p.result.err
	}

	select {
	case <-p.done:
		if p.result.err != nil {
			return nil, p.result.err
		}
		return &InvokeResult{DataType: p.result.dataType, Data: p.result.data}, nil

	case <-ctx.Done():
		if _, ok := c.invocations.take(p.id); !ok {
			// A response or teardown got there first; honor it.
			<-p.done
			if p.result.err != nil {
				return nil, p.result.err
			}
			return &InvokeResult{DataType: p.result.dataType, Data: p.result.data}, nil
		}
		c.sendCancel(p.id)
		return nil, newCancellationError(p.id, fmt.Sprintf("canceled: %v", ctx.Err()))
	}
}

// sendCancel notifies the relay that an invocation was abandoned. Best
// effort: failures are logged, never surfaced.
func (c *Client) sendCancel(id uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	err := c.send(ctx, &protocol.Envelope{
		Kind:             protocol.KindInvocationCancel,
		InvocationCancel: &protocol.InvocationCancel{InvocationID: id},
	})
	if err != nil {
		c.logger.Debug("invocation cancel not delivered", "invocation_id", id, "error", err)
	}
}

// JoinGroup subscribes the connection to a group and waits for the
// server's ack. Joined groups are replayed after a successful resume when
// AutoRejoinGroups is set.
func (c *Client) JoinGroup(ctx context.Context, group string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}

	p := c.acks.register()
	err := c.send(ctx, &protocol.Envelope{
		Kind:      protocol.KindGroupJoin,
		GroupJoin: &protocol.GroupJoin{Group: group, AckID: p.id},
	})
	if err != nil {
		c.acks.take(p.id)
		return err
	}

	if err := c.awaitAck(ctx, p); err != nil {
		return err
	}

	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
	return nil
}

// LeaveGroup unsubscribes the connection from a group and waits for the
// server's ack.
func (c *Client) LeaveGroup(ctx context.Context, group string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}

	p := c.acks.register()
	err := c.send(ctx, &protocol.Envelope{
		Kind:       protocol.KindGroupLeave,
		GroupLeave: &protocol.GroupLeave{Group: group, AckID: p.id},
	})
	if err != nil {
		c.acks.take(p.id)
		return err
	}

	if err := c.awaitAck(ctx, p); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
	return nil
}

func (c *Client) awaitAck(ctx context.Context, p *pendingInvocation) error {
	select {
	case <-p.done:
		return p.result.err
	case <-ctx.Done():
		if _, ok := c.acks.take(p.id); !ok {
			<-p.done
			return p.result.err
		}
		return newCancellationError(p.id, fmt.Sprintf("canceled: %v", ctx.Err()))
	}
}

// recover attempts a silent resume after an unexpected stream drop. The
// resume URL carries the prior connection id and reconnection token;
// attempts back off exponentially within the RecoveryTimeout window.
// Pending invocations stay registered across the resume; they fail only if
// the window is exhausted.
func (c *Client) recover(cause error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	connID := c.connectionID
	token := c.reconnToken
	if token == "" || connID == "" {
		reason := c.lastDisconnect
		c.mu.Unlock()
		if reason == "" {
			reason = fmt.Sprintf("stream dropped: %v", cause)
		}
		c.forceDisconnect(reason)
		return
	}
	c.state = StateRecovering
	c.mu.Unlock()

	c.logger.Warn("stream dropped, recovering", "connection_id", connID, "error", cause)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RecoveryInitialInterval
	b.MaxElapsedTime = c.cfg.RecoveryTimeout

	err := backoff.Retry(func() error {
		return c.attemptResume(ctx, connID, token)
	}, backoff.WithContext(b, ctx))

	if err != nil {
		c.logger.Error("recovery failed", "connection_id", connID, "error", err)
		c.forceDisconnect(fmt.Sprintf("%v: %v", ErrRecoveryFailed, err))
		return
	}

	c.logger.Info("recovered", "connection_id", c.ConnectionID())
	if c.cfg.AutoRejoinGroups {
		c.rejoinGroups()
	}
}

// attemptResume performs one resume attempt: fresh negotiate, resume
// params, open, await ack.
func (c *Client) attemptResume(ctx context.Context, connID, token string) error {
	accessURL, err := c.negotiate(ctx)
	if err != nil {
		return err
	}

	u, err := url.Parse(accessURL)
	if err != nil {
		return backoff.Permanent(err)
	}
	q := u.Query()
	q.Set(resumeConnectionIDParam, connID)
	q.Set(resumeTokenParam, token)
	u.RawQuery = q.Encode()

	c.mu.Lock()
	c.state = StateRecovering
	c.mu.Unlock()

	return c.openAndAwaitAck(ctx, u.String())
}

// rejoinGroups replays fire-and-forget joins for every tracked group.
func (c *Client) rejoinGroups() {
	c.mu.Lock()
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	for _, g := range groups {
		err := c.send(ctx, &protocol.Envelope{
			Kind:      protocol.KindGroupJoin,
			GroupJoin: &protocol.GroupJoin{Group: g},
		})
		if err != nil {
			c.logger.Warn("group rejoin not delivered", "group", g, "error", err)
		}
	}
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// forceDisconnect transitions to Disconnected, force-fails every pending
// invocation and ack waiter with a cancellation, and fires disconnected
// callbacks.
func (c *Client) forceDisconnect(reason string) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	connID := c.connectionID
	c.connectionID = ""
	c.reconnToken = ""
	c.mu.Unlock()

	c.transport.Close()
	c.invocations.failAll(reason)
	c.acks.failAll(reason)
	c.emit(CallbackDisconnected, DisconnectedArgs{ConnectionID: connID, Message: reason})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close tears the session down. Pending invocations fail immediately with
// a cancellation error. Safe to call multiple times; the client cannot be
// reused afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.forceDisconnect("client closed")
		close(c.done)
	})
	return nil
}
