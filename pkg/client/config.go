package client

import (
	"log/slog"
	"time"
)

// Config holds configuration for a Client.
type Config struct {
	// Timeouts

	// ConnectTimeout is the maximum time to wait for the server's
	// connect-ack after the stream is opened.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// InvokeTimeout is the default timeout for Invoke when the caller does
	// not supply one.
	// Default: 30 seconds.
	InvokeTimeout time.Duration

	// Recovery

	// RecoveryTimeout bounds the total time spent attempting to resume a
	// dropped session before giving up and transitioning to Disconnected.
	// Default: 30 seconds.
	RecoveryTimeout time.Duration

	// RecoveryInitialInterval is the first reconnect backoff interval.
	// Subsequent attempts back off exponentially.
	// Default: 100 milliseconds.
	RecoveryInitialInterval time.Duration

	// AutoRejoinGroups replays group joins after a successful resume.
	// Default: true.
	AutoRejoinGroups bool

	// Limits

	// CallbackQueueSize is the buffer of the callback dispatch queue.
	// When full, the read loop drops the callback and logs it rather than
	// blocking inbound dispatch.
	// Default: 256.
	CallbackQueueSize int

	// Logger is the structured logger for the client.
	// Default: slog.Default() scoped with component=client.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:          10 * time.Second,
		WriteTimeout:            10 * time.Second,
		InvokeTimeout:           30 * time.Second,
		RecoveryTimeout:         30 * time.Second,
		RecoveryInitialInterval: 100 * time.Millisecond,
		AutoRejoinGroups:        true,
		CallbackQueueSize:       256,
		Logger:                  slog.Default().With("component", "client"),
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithInvokeTimeout sets the default invoke timeout and returns the config
// for chaining.
func (c *Config) WithInvokeTimeout(d time.Duration) *Config {
	c.InvokeTimeout = d
	return c
}

// WithRecoveryTimeout sets the recovery window and returns the config for
// chaining.
func (c *Config) WithRecoveryTimeout(d time.Duration) *Config {
	c.RecoveryTimeout = d
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}
