package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// Default WebSocket transport tuning.
const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	recvBufferSize          = 64
)

// WebSocketTransport is the production Transport: one WebSocket connection
// speaking the json.pubwire.v1 subprotocol.
type WebSocketTransport struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	recv       chan []byte
	err        error
	localClose bool
}

// NewWebSocketTransport creates a WebSocket transport with default tuning.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
			Subprotocols:     []string{protocol.SubprotocolJSON},
		},
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default().With("component", "transport"),
	}
}

// Open dials the relay. Dial failures (unreachable relay, rejected token)
// are reported as *ConnectError.
func (t *WebSocketTransport) Open(ctx context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return ErrAlreadyConnected
	}

	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return &ConnectError{Op: "dial", Err: err}
	}

	t.conn = conn
	t.recv = make(chan []byte, recvBufferSize)
	t.err = nil
	t.localClose = false

	go t.readPump(conn, t.recv)
	return nil
}

// readPump drains the connection into the receive channel until the stream
// terminates, then records the cause and closes the channel.
func (t *WebSocketTransport) readPump(conn *websocket.Conn, recv chan []byte) {
	defer close(recv)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
				if !t.localClose {
					t.err = fmt.Errorf("%w: %v", ErrStreamDropped, err)
				}
			}
			t.mu.Unlock()
			return
		}
		recv <- msg
	}
}

// Send writes one text message to the stream.
func (t *WebSocketTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive returns the inbound channel for the currently open stream.
func (t *WebSocketTransport) Receive() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recv
}

// Err returns the terminal stream error, nil after a clean local Close.
func (t *WebSocketTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close tears down the stream. Safe to call multiple times.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	t.localClose = true
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.conn = nil
	return err
}
