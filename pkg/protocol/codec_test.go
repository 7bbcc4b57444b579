package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
	}{
		{
			name: "connected",
			env: &Envelope{Kind: KindConnected, Connected: &Connected{
				ConnectionID:      "conn-1",
				UserID:            "user-1",
				ReconnectionToken: "tok-abc",
			}},
		},
		{
			name: "connected without reconnection token",
			env: &Envelope{Kind: KindConnected, Connected: &Connected{
				ConnectionID: "conn-2",
			}},
		},
		{
			name: "disconnected",
			env: &Envelope{Kind: KindDisconnected, Disconnected: &Disconnected{
				Message: "going away",
			}},
		},
		{
			name: "server event json",
			env: &Envelope{Kind: KindEvent, Event: &EventMessage{
				Event:    "notify",
				From:     "server",
				DataType: DataTypeJSON,
				Data:     []byte(`{"a":1}`),
			}},
		},
		{
			name: "group event text",
			env: &Envelope{Kind: KindEvent, Event: &EventMessage{
				Group:    "room1",
				From:     "group",
				DataType: DataTypeText,
				Data:     []byte("hello"),
			}},
		},
		{
			name: "invocation request text",
			env: &Envelope{Kind: KindInvocationRequest, InvocationRequest: &InvocationRequest{
				InvocationID: 1,
				Event:        "echo",
				DataType:     DataTypeText,
				Data:         []byte("hello"),
			}},
		},
		{
			name: "invocation request binary",
			env: &Envelope{Kind: KindInvocationRequest, InvocationRequest: &InvocationRequest{
				InvocationID: 42,
				Event:        "upload",
				DataType:     DataTypeBinary,
				Data:         []byte{0x00, 0x01, 0xFE, 0xFF},
			}},
		},
		{
			name: "invocation response success",
			env: &Envelope{Kind: KindInvocationResponse, InvocationResponse: &InvocationResponse{
				InvocationID: 42,
				DataType:     DataTypeJSON,
				Data:         []byte(`{"status":"completed","orderId":1}`),
				Success:      true,
			}},
		},
		{
			name: "invocation response error",
			env: &Envelope{Kind: KindInvocationResponse, InvocationResponse: &InvocationResponse{
				InvocationID: 7,
				DataType:     DataTypeText,
				Data:         []byte("boom"),
				Success:      false,
				Error:        &ErrorDetail{Name: "InternalServerError", Message: "handler failed"},
			}},
		},
		{
			name: "invocation cancel",
			env: &Envelope{Kind: KindInvocationCancel, InvocationCancel: &InvocationCancel{
				InvocationID: 7,
			}},
		},
		{
			name: "group join",
			env:  &Envelope{Kind: KindGroupJoin, GroupJoin: &GroupJoin{Group: "room1", AckID: 3}},
		},
		{
			name: "group join fire and forget",
			env:  &Envelope{Kind: KindGroupJoin, GroupJoin: &GroupJoin{Group: "room2"}},
		},
		{
			name: "group leave",
			env:  &Envelope{Kind: KindGroupLeave, GroupLeave: &GroupLeave{Group: "room1", AckID: 4}},
		},
		{
			name: "ack success",
			env:  &Envelope{Kind: KindAck, Ack: &Ack{AckID: 3, Success: true}},
		},
		{
			name: "ack error",
			env: &Envelope{Kind: KindAck, Ack: &Ack{
				AckID:   4,
				Success: false,
				Error:   &ErrorDetail{Name: "Forbidden", Message: "not allowed"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.env)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.env) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, tt.env)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw := []byte(`{"type":"sequenceAck","sequenceId":12}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if env.Kind != KindUnknown {
		t.Errorf("Kind = %v; want KindUnknown", env.Kind)
	}
	if !bytes.Equal(env.Raw, raw) {
		t.Errorf("Raw = %q; want original bytes", env.Raw)
	}
}

func TestDecodeUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`{"type":"connected","connectionId":"c1","futureField":{"x":1}}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if env.Kind != KindConnected || env.Connected.ConnectionID != "c1" {
		t.Errorf("got %+v; want connected with connectionId c1", env)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"response without invocationId", `{"type":"invocationResponse","success":true}`},
		{"cancel without invocationId", `{"type":"invocationCancel"}`},
		{"ack without ackId", `{"type":"ack","success":true}`},
		{"bad data type", `{"type":"event","dataType":"xml","data":"<x/>"}`},
		{"binary data not base64", `{"type":"event","dataType":"binary","data":"%%%"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Errorf("Decode(%q) succeeded; want error", tt.raw)
			}
		})
	}
}

func TestInvocationIDRoundTripExact(t *testing.T) {
	// Correlation ids are allocated sequentially, but the codec must not
	// lose precision anywhere in the JSON-safe range.
	ids := []uint64{0, 1, 255, 1 << 31, 1 << 52, uint64(math.Pow(2, 53)) - 1}
	for _, id := range ids {
		env := &Envelope{Kind: KindInvocationCancel, InvocationCancel: &InvocationCancel{InvocationID: id}}
		data, err := Encode(env)
		if err != nil {
			t.Fatalf("Encode(%d) error: %v", id, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%d) error: %v", id, err)
		}
		if got.InvocationCancel.InvocationID != id {
			t.Errorf("InvocationID = %d; want %d", got.InvocationCancel.InvocationID, id)
		}
	}
}

func TestEncodeInvalidJSONPayload(t *testing.T) {
	env := &Envelope{Kind: KindEvent, Event: &EventMessage{
		Event:    "bad",
		DataType: DataTypeJSON,
		Data:     []byte(`{not json`),
	}}
	if _, err := Encode(env); err == nil {
		t.Error("Encode() succeeded with invalid JSON payload; want error")
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	env := &Envelope{Kind: KindGroupJoin, GroupJoin: &GroupJoin{Group: "g"}}
	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	for _, field := range []string{"ackId", "data", "dataType", "invocationId"} {
		if _, ok := m[field]; ok {
			t.Errorf("encoded envelope contains %q; want omitted", field)
		}
	}
}

func TestDataTypeContentTypeMapping(t *testing.T) {
	tests := []struct {
		contentType string
		want        DataType
	}{
		{"application/json", DataTypeJSON},
		{"application/json; charset=utf-8", DataTypeJSON},
		{"text/plain", DataTypeText},
		{"text/plain; charset=utf-8", DataTypeText},
		{"application/octet-stream", DataTypeBinary},
		{"image/png", DataTypeBinary},
		{"", DataTypeBinary},
	}
	for _, tt := range tests {
		if got := DataTypeFromContentType(tt.contentType); got != tt.want {
			t.Errorf("DataTypeFromContentType(%q) = %v; want %v", tt.contentType, got, tt.want)
		}
	}

	for _, dt := range []DataType{DataTypeJSON, DataTypeText, DataTypeBinary} {
		parsed, err := ParseDataType(dt.String())
		if err != nil || parsed != dt {
			t.Errorf("ParseDataType(%q) = %v, %v; want %v, nil", dt.String(), parsed, err, dt)
		}
		if !strings.Contains(dt.ContentType(), "/") {
			t.Errorf("ContentType(%v) = %q; want a media type", dt, dt.ContentType())
		}
	}
}
