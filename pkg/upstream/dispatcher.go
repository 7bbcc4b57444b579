package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// Dispatcher terminates relay webhook deliveries: abuse-protection
// preflights, system lifecycle events, and user events routed to
// registered handlers. It also serves the negotiate endpoint when a token
// provider is configured.
type Dispatcher struct {
	cfg      *Config
	logger   *slog.Logger
	metrics  *metrics
	registry *prometheus.Registry
	tracer   trace.Tracer

	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
	connect  ConnectHandler
}

// NewDispatcher creates a dispatcher. A nil cfg uses DefaultConfig.
func NewDispatcher(cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "upstream")
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	return &Dispatcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  newMetrics(cfg.Registry, cfg.MetricsNamespace, cfg.MetricsBuckets, cfg.MetricsConstLabels),
		registry: cfg.Registry,
		tracer:   otel.Tracer(cfg.TracerName),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for one event name. Registering the same
// name twice replaces the earlier handler.
func (d *Dispatcher) Handle(event string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = h
}

// HandleFunc registers a handler function for one event name.
func (d *Dispatcher) HandleFunc(event string, fn HandlerFunc) {
	d.Handle(event, fn)
}

// HandleFallback registers the handler for events with no named handler.
// Without a fallback, unmatched events echo their payload back.
func (d *Dispatcher) HandleFallback(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// HandleConnect registers the system connect handler. Without one,
// connections are admitted with the user id from the client's "id" query
// parameter and rejected with a 401 when it is absent.
func (d *Dispatcher) HandleConnect(h ConnectHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connect = h
}

// Router builds the HTTP surface: the event handler, the negotiate
// endpoint when tokens are configured, and the metrics scrape route.
func (d *Dispatcher) Router() chi.Router {
	r := chi.NewRouter()
	r.Options("/eventhandler", d.handleAbuseCheck)
	r.Post("/eventhandler", d.handleEvent)
	if d.cfg.Tokens != nil {
		r.Get("/negotiate", d.handleNegotiate)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return r
}

// handleAbuseCheck answers the relay's abuse protection preflight. Any
// origin is acceptable; deployments that need to pin origins should do so
// at the ingress.
func (d *Dispatcher) handleAbuseCheck(w http.ResponseWriter, r *http.Request) {
	d.metrics.abuseChecksTotal.Inc()

	origin := r.Header.Get(HeaderWebHookRequestOrigin)
	if origin == "" {
		http.Error(w, "missing WebHook-Request-Origin", http.StatusBadRequest)
		return
	}
	d.logger.Debug("abuse protection check", "origin", origin)
	w.Header().Set(HeaderWebHookAllowedOrigin, "*")
	w.WriteHeader(http.StatusOK)
}

func (d *Dispatcher) handleEvent(w http.ResponseWriter, r *http.Request) {
	ceType := r.Header.Get(HeaderEventType)
	ctx, span := d.startEventSpan(r, ceType)
	r = r.WithContext(ctx)

	start := time.Now()
	status, err := d.dispatch(w, r, ceType)
	d.metrics.eventDuration.WithLabelValues(ceType).Observe(time.Since(start).Seconds())

	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	d.metrics.eventsTotal.WithLabelValues(ceType, outcome).Inc()
	endEventSpan(span, status, err)
}

// dispatch classifies one delivery and writes the response. It returns the
// status written and the handler error, if any, for observability.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, ceType string) (int, error) {
	switch {
	case ceType == TypeSysConnect:
		return d.dispatchConnect(w, r)

	case ceType == TypeSysConnected:
		d.logger.Info("client connected",
			"connection_id", r.Header.Get(HeaderConnectionID),
			"user_id", r.Header.Get(HeaderUserID))
		w.WriteHeader(http.StatusOK)
		return http.StatusOK, nil

	case ceType == TypeSysDisconnected:
		reason := d.readDisconnectReason(r)
		d.logger.Info("client disconnected",
			"connection_id", r.Header.Get(HeaderConnectionID),
			"user_id", r.Header.Get(HeaderUserID),
			"reason", reason)
		w.WriteHeader(http.StatusOK)
		return http.StatusOK, nil

	case strings.HasPrefix(ceType, TypeUserPrefix):
		return d.dispatchUserEvent(w, r, ceType)

	default:
		d.logger.Warn("unrecognized event type", "ce_type", ceType)
		http.Error(w, "unrecognized ce-type", http.StatusBadRequest)
		return http.StatusBadRequest, nil
	}
}

func (d *Dispatcher) dispatchConnect(w http.ResponseWriter, r *http.Request) (int, error) {
	body, err := d.readBody(r)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return http.StatusBadRequest, err
	}

	req := &ConnectRequest{
		Hub:          r.Header.Get(HeaderHub),
		ConnectionID: r.Header.Get(HeaderConnectionID),
	}
	if len(body) > 0 {
		var payload struct {
			Query  map[string][]string `json:"query"`
			Claims map[string][]string `json:"claims"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "malformed connect payload", http.StatusBadRequest)
			return http.StatusBadRequest, err
		}
		req.Query = payload.Query
		req.Claims = payload.Claims
	}

	d.mu.RLock()
	connect := d.connect
	d.mu.RUnlock()
	if connect == nil {
		connect = defaultConnectHandler
	}

	resp, err := connect(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		var evErr *EventError
		if errors.As(err, &evErr) {
			status = evErr.StatusCode
		}
		d.logger.Warn("connection rejected",
			"connection_id", req.ConnectionID, "error", err)
		http.Error(w, err.Error(), status)
		return status, err
	}

	return d.writeJSON(w, resp)
}

// defaultConnectHandler admits clients that identified themselves with an
// "id" query parameter on the relay dial.
func defaultConnectHandler(_ context.Context, req *ConnectRequest) (*ConnectResponse, error) {
	ids := req.Query["id"]
	if len(ids) == 0 || ids[0] == "" {
		return nil, Errorf(http.StatusUnauthorized, "missing user id")
	}
	return &ConnectResponse{UserID: ids[0]}, nil
}

func (d *Dispatcher) dispatchUserEvent(w http.ResponseWriter, r *http.Request, ceType string) (int, error) {
	body, err := d.readBody(r)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return http.StatusBadRequest, err
	}

	event := r.Header.Get(HeaderEventName)
	if event == "" {
		event = strings.TrimPrefix(ceType, TypeUserPrefix)
	}

	req := &EventRequest{
		Hub:          r.Header.Get(HeaderHub),
		ConnectionID: r.Header.Get(HeaderConnectionID),
		UserID:       r.Header.Get(HeaderUserID),
		Event:        event,
		DataType:     protocol.DataTypeFromContentType(r.Header.Get("Content-Type")),
		Data:         body,
		Metadata:     extractMetadata(r.Header),
	}

	d.mu.RLock()
	handler, ok := d.handlers[event]
	if !ok {
		handler = d.fallback
	}
	d.mu.RUnlock()
	if handler == nil {
		handler = echoHandler
	}

	resp, err := handler.HandleEvent(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var evErr *EventError
		if errors.As(err, &evErr) {
			status = evErr.StatusCode
		}
		d.logger.Warn("event handler failed",
			"event", event, "connection_id", req.ConnectionID, "error", err)
		http.Error(w, err.Error(), status)
		return status, err
	}

	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return http.StatusOK, nil
	}

	for key, value := range resp.Metadata {
		w.Header().Set(MetadataPrefix+key, value)
	}
	w.Header().Set("Content-Type", resp.DataType.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(resp.Data)
	return http.StatusOK, nil
}

// echoHandler is the last-resort handler: mirror the payload back.
var echoHandler Handler = HandlerFunc(func(_ context.Context, req *EventRequest) (*EventResponse, error) {
	return &EventResponse{DataType: req.DataType, Data: req.Data}, nil
})

func (d *Dispatcher) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, d.cfg.MaxBodyBytes))
}

// readDisconnectReason pulls the reason out of the disconnect payload.
func (d *Dispatcher) readDisconnectReason(r *http.Request) string {
	body, err := d.readBody(r)
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Reason != "" {
		return payload.Reason
	}
	return string(body)
}

func (d *Dispatcher) writeJSON(w http.ResponseWriter, v any) (int, error) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.logger.Warn("writing response", "error", err)
	}
	return http.StatusOK, nil
}

// extractMetadata collects X-Pubwire-Metadata-* headers into a map keyed
// by the suffix, first value wins.
func extractMetadata(h http.Header) map[string]string {
	var meta map[string]string
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if strings.HasPrefix(key, MetadataPrefix) {
			if meta == nil {
				meta = make(map[string]string)
			}
			meta[strings.TrimPrefix(key, MetadataPrefix)] = values[0]
		}
	}
	return meta
}
