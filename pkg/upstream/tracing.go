package upstream

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	attrEventType    = "pubwire.event_type"
	attrEventName    = "pubwire.event_name"
	attrConnectionID = "pubwire.connection_id"
	attrUserID       = "pubwire.user_id"
)

// startEventSpan opens one server span per webhook delivery, attributed
// with the delivery's ce-* identity headers.
func (d *Dispatcher) startEventSpan(r *http.Request, ceType string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(attrEventType, ceType),
	}
	if name := r.Header.Get(HeaderEventName); name != "" {
		attrs = append(attrs, attribute.String(attrEventName, name))
	}
	if connID := r.Header.Get(HeaderConnectionID); connID != "" {
		attrs = append(attrs, attribute.String(attrConnectionID, connID))
	}
	if userID := r.Header.Get(HeaderUserID); userID != "" {
		attrs = append(attrs, attribute.String(attrUserID, userID))
	}

	return d.tracer.Start(r.Context(), "pubwire.event "+ceType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// endEventSpan records the HTTP outcome on the span.
func endEventSpan(span trace.Span, status int, err error) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if status >= 400 {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
