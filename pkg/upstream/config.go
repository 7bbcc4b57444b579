package upstream

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pubwire-dev/pubwire/pkg/service"
)

// Config configures a Dispatcher.
type Config struct {
	// Tokens mints client access URLs for the negotiate endpoint. When nil
	// the /negotiate route is not mounted.
	Tokens *service.TokenProvider

	// NegotiateRoles are the roles granted to negotiated clients.
	// Default: join/leave and send-to-group.
	NegotiateRoles []string

	// MaxBodyBytes caps the accepted webhook body size.
	// Default: 1 MiB.
	MaxBodyBytes int64

	// MetricsNamespace is the Prometheus namespace (default: "pubwire").
	MetricsNamespace string

	// MetricsBuckets are the duration histogram buckets.
	// Default: prometheus.DefBuckets.
	MetricsBuckets []float64

	// MetricsConstLabels are constant labels added to all metrics.
	MetricsConstLabels prometheus.Labels

	// Registry receives the dispatcher's metrics and backs the /metrics
	// route. Default: a fresh prometheus.NewRegistry per dispatcher.
	Registry *prometheus.Registry

	// TracerName names the OpenTelemetry tracer (default: "pubwire").
	TracerName string

	// Logger is the structured logger for the dispatcher.
	// Default: slog.Default() scoped with component=upstream.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NegotiateRoles:   []string{"pubwire.joinLeaveGroup", "pubwire.sendToGroup"},
		MaxBodyBytes:     1 << 20,
		MetricsNamespace: "pubwire",
		MetricsBuckets:   prometheus.DefBuckets,
		TracerName:       "pubwire",
		Logger:           slog.Default().With("component", "upstream"),
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

// WithTokens sets the token provider and returns the config for chaining.
func (c *Config) WithTokens(tokens *service.TokenProvider) *Config {
	c.Tokens = tokens
	return c
}

// WithRegistry sets the Prometheus registry and returns the config for
// chaining.
func (c *Config) WithRegistry(reg *prometheus.Registry) *Config {
	c.Registry = reg
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}
