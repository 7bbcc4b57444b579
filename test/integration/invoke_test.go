// Package integration exercises the full invoke path: a client session
// over an in-process relay that forwards invocations to a real upstream
// dispatcher over HTTP, exactly as a hosted relay would.
package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pubwire-dev/pubwire/pkg/client"
	"github.com/pubwire-dev/pubwire/pkg/protocol"
	"github.com/pubwire-dev/pubwire/pkg/upstream"
)

// relayTransport is a client.Transport that plays the relay: it ack's the
// connect, forwards invocation requests to the upstream event handler as
// webhook deliveries, and feeds the handler outcome back as an
// invocationResponse.
type relayTransport struct {
	upstreamURL string
	userID      string

	mu   sync.Mutex
	recv chan []byte
	open bool
}

func newRelayTransport(upstreamURL, userID string) *relayTransport {
	return &relayTransport{upstreamURL: upstreamURL, userID: userID}
}

func (rt *relayTransport) Open(ctx context.Context, url string) error {
	rt.mu.Lock()
	rt.recv = make(chan []byte, 32)
	rt.open = true
	rt.mu.Unlock()

	rt.push(&protocol.Envelope{
		Kind: protocol.KindConnected,
		Connected: &protocol.Connected{
			ConnectionID: "conn-int-1",
			UserID:       rt.userID,
		},
	})
	return nil
}

func (rt *relayTransport) push(env *protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		panic(fmt.Sprintf("relay encoding envelope: %v", err))
	}
	rt.mu.Lock()
	recv := rt.recv
	open := rt.open
	rt.mu.Unlock()
	if open {
		recv <- data
	}
}

func (rt *relayTransport) Send(ctx context.Context, data []byte) error {
	rt.mu.Lock()
	open := rt.open
	rt.mu.Unlock()
	if !open {
		return client.ErrNotConnected
	}

	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	switch env.Kind {
	case protocol.KindInvocationRequest:
		go rt.forward(env.InvocationRequest)
	default:
		// Events, cancels, and group traffic need no relay response here.
	}
	return nil
}

// forward delivers one invocation upstream and relays the outcome back.
func (rt *relayTransport) forward(req *protocol.InvocationRequest) {
	httpReq, err := http.NewRequest(http.MethodPost, rt.upstreamURL+"/eventhandler", bytes.NewReader(req.Data))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", req.DataType.ContentType())
	httpReq.Header.Set(upstream.HeaderEventType, upstream.TypeUserPrefix+req.Event)
	httpReq.Header.Set(upstream.HeaderEventName, req.Event)
	httpReq.Header.Set(upstream.HeaderUserID, rt.userID)
	httpReq.Header.Set(upstream.HeaderConnectionID, "conn-int-1")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		rt.push(&protocol.Envelope{
			Kind: protocol.KindInvocationResponse,
			InvocationResponse: &protocol.InvocationResponse{
				InvocationID: req.InvocationID,
				Success:      false,
				Error:        &protocol.ErrorDetail{Name: "RelayError", Message: err.Error()},
			},
		})
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rt.push(&protocol.Envelope{
			Kind: protocol.KindInvocationResponse,
			InvocationResponse: &protocol.InvocationResponse{
				InvocationID: req.InvocationID,
				Success:      false,
				Error: &protocol.ErrorDetail{
					Name:    http.StatusText(resp.StatusCode),
					Message: string(bytes.TrimSpace(body)),
				},
			},
		})
		return
	}

	rt.push(&protocol.Envelope{
		Kind: protocol.KindInvocationResponse,
		InvocationResponse: &protocol.InvocationResponse{
			InvocationID: req.InvocationID,
			DataType:     protocol.DataTypeFromContentType(resp.Header.Get("Content-Type")),
			Data:         body,
			Success:      true,
		},
	})
}

func (rt *relayTransport) Receive() <-chan []byte {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.recv
}

func (rt *relayTransport) Err() error { return nil }

func (rt *relayTransport) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.open {
		rt.open = false
		close(rt.recv)
	}
	return nil
}

func testStack(t *testing.T) *client.Client {
	t.Helper()

	d := upstream.NewDispatcher(nil)
	d.HandleFunc("echo", func(_ context.Context, req *upstream.EventRequest) (*upstream.EventResponse, error) {
		return &upstream.EventResponse{DataType: req.DataType, Data: req.Data}, nil
	})
	d.HandleFunc("processOrder", func(_ context.Context, req *upstream.EventRequest) (*upstream.EventResponse, error) {
		return &upstream.EventResponse{
			DataType: protocol.DataTypeJSON,
			Data:     []byte(`{"status":"completed"}`),
		}, nil
	})
	d.HandleFunc("reject", func(context.Context, *upstream.EventRequest) (*upstream.EventResponse, error) {
		return nil, upstream.Errorf(http.StatusConflict, "order already processed")
	})
	d.HandleFunc("slowEvent", func(ctx context.Context, _ *upstream.EventRequest) (*upstream.EventResponse, error) {
		time.Sleep(300 * time.Millisecond)
		return &upstream.EventResponse{DataType: protocol.DataTypeText, Data: []byte("finally")}, nil
	})

	srv := httptest.NewServer(d.Router())
	t.Cleanup(srv.Close)

	cfg := client.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c := client.NewClientWithTransport(
		client.StaticURL("wss://relay.test/client/hubs/chat?access_token=t"),
		newRelayTransport(srv.URL, "alice"),
		cfg,
	)
	t.Cleanup(func() { c.Close() })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	return c
}

func TestInvokeEchoEndToEnd(t *testing.T) {
	c := testStack(t)

	res, err := c.Invoke(context.Background(), "echo", protocol.DataTypeText, []byte("round trip"))
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if string(res.Data) != "round trip" {
		t.Fatalf("data = %q, want round trip", res.Data)
	}
	if res.DataType != protocol.DataTypeText {
		t.Fatalf("dataType = %v, want text", res.DataType)
	}
}

func TestInvokeJSONHandlerEndToEnd(t *testing.T) {
	c := testStack(t)

	res, err := c.Invoke(context.Background(), "processOrder", protocol.DataTypeJSON, []byte(`{"order":7}`))
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if string(res.Data) != `{"status":"completed"}` {
		t.Fatalf("data = %s", res.Data)
	}
	if res.DataType != protocol.DataTypeJSON {
		t.Fatalf("dataType = %v, want json", res.DataType)
	}
}

func TestInvokeHandlerRejectionSurfacesRemoteError(t *testing.T) {
	c := testStack(t)

	_, err := c.Invoke(context.Background(), "reject", protocol.DataTypeJSON, []byte(`{}`))
	var invErr *client.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("Invoke() = %v, want *InvocationError", err)
	}
	if invErr.IsCancellation() {
		t.Fatal("remote rejection reported as cancellation")
	}
	if invErr.ErrorDetail.Name != http.StatusText(http.StatusConflict) {
		t.Fatalf("error name = %q, want %q", invErr.ErrorDetail.Name, http.StatusText(http.StatusConflict))
	}
}

func TestInvokeTimeoutThenLateResponseDropped(t *testing.T) {
	c := testStack(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, "slowEvent", protocol.DataTypeJSON, []byte(`{}`))
	var invErr *client.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("Invoke() = %v, want *InvocationError", err)
	}
	if !invErr.IsCancellation() {
		t.Fatalf("timeout error is not a cancellation: %v", invErr)
	}

	// The handler finishes after the timeout; its late response must not
	// disturb the next invocation.
	res, err := c.Invoke(context.Background(), "echo", protocol.DataTypeText, []byte("still alive"))
	if err != nil {
		t.Fatalf("follow-up Invoke() = %v", err)
	}
	if string(res.Data) != "still alive" {
		t.Fatalf("data = %q", res.Data)
	}
}

func TestConcurrentInvokesEndToEnd(t *testing.T) {
	c := testStack(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	datas := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("msg-%d", i)
			res, err := c.Invoke(context.Background(), "echo", protocol.DataTypeText, []byte(payload))
			if err != nil {
				errs[i] = err
				return
			}
			datas[i] = string(res.Data)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("invoke %d: %v", i, errs[i])
		}
		if want := fmt.Sprintf("msg-%d", i); datas[i] != want {
			t.Fatalf("invoke %d data = %q, want %q (responses crossed)", i, datas[i], want)
		}
	}
}
