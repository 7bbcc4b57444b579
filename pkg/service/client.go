package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// APIError reports a non-2xx response from the relay REST surface.
type APIError struct {
	StatusCode int
	Body       string
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service: relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("service: relay returned status %d: %s", e.StatusCode, e.Body)
}

// Client pushes messages through the relay's REST surface for one hub.
// Every call mints a fresh bearer token scoped to the request URL.
type Client struct {
	endpoint string
	hub      string
	tokens   *TokenProvider
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a REST client from a connection string. A nil
// httpClient falls back to http.DefaultClient.
func NewClient(connectionString, hub string, httpClient *http.Client) (*Client, error) {
	info, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: info.Endpoint,
		hub:      hub,
		tokens:   NewTokenProvider(info, hub),
		http:     httpClient,
		logger:   slog.Default().With("component", "service", "hub", hub),
	}, nil
}

// Tokens returns the token provider sharing this client's credentials,
// for negotiate endpoints that mint client access URLs.
func (c *Client) Tokens() *TokenProvider {
	return c.tokens
}

// SendToAll broadcasts a message to every connection in the hub.
func (c *Client) SendToAll(ctx context.Context, dataType protocol.DataType, data []byte) error {
	return c.post(ctx, fmt.Sprintf("/api/hubs/%s/:send", c.hub), dataType, data)
}

// SendToGroup sends a message to every connection in a group.
func (c *Client) SendToGroup(ctx context.Context, group string, dataType protocol.DataType, data []byte) error {
	return c.post(ctx,
		fmt.Sprintf("/api/hubs/%s/groups/%s/:send", c.hub, url.PathEscape(group)),
		dataType, data)
}

// SendToUser sends a message to every connection bound to a user.
func (c *Client) SendToUser(ctx context.Context, userID string, dataType protocol.DataType, data []byte) error {
	return c.post(ctx,
		fmt.Sprintf("/api/hubs/%s/users/%s/:send", c.hub, url.PathEscape(userID)),
		dataType, data)
}

// SendToConnection sends a message to one connection.
func (c *Client) SendToConnection(ctx context.Context, connectionID string, dataType protocol.DataType, data []byte) error {
	return c.post(ctx,
		fmt.Sprintf("/api/hubs/%s/connections/%s/:send", c.hub, url.PathEscape(connectionID)),
		dataType, data)
}

// AddConnectionToGroup subscribes an existing connection to a group.
func (c *Client) AddConnectionToGroup(ctx context.Context, group, connectionID string) error {
	path := fmt.Sprintf("/api/hubs/%s/groups/%s/connections/%s",
		c.hub, url.PathEscape(group), url.PathEscape(connectionID))
	return c.do(ctx, http.MethodPut, path, "", nil)
}

// RemoveConnectionFromGroup unsubscribes a connection from a group.
func (c *Client) RemoveConnectionFromGroup(ctx context.Context, group, connectionID string) error {
	path := fmt.Sprintf("/api/hubs/%s/groups/%s/connections/%s",
		c.hub, url.PathEscape(group), url.PathEscape(connectionID))
	return c.do(ctx, http.MethodDelete, path, "", nil)
}

func (c *Client) post(ctx context.Context, path string, dataType protocol.DataType, data []byte) error {
	return c.do(ctx, http.MethodPost, path, dataType.ContentType(), data)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) error {
	requestURL := c.endpoint + path

	token, err := c.tokens.restToken(requestURL)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("service: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("service: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("relay rejected request",
			"method", method, "path", path, "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return nil
}
