package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeError reports a malformed inbound envelope. Callers log it and drop
// the envelope; a single bad message never terminates the connection.
type DecodeError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wireEnvelope is the flat JSON shape shared by all envelope kinds. Fields
// not used by a given kind are omitted from the wire.
type wireEnvelope struct {
	Type              string          `json:"type"`
	ConnectionID      string          `json:"connectionId,omitempty"`
	UserID            string          `json:"userId,omitempty"`
	ReconnectionToken string          `json:"reconnectionToken,omitempty"`
	Message           string          `json:"message,omitempty"`
	Event             string          `json:"event,omitempty"`
	Group             string          `json:"group,omitempty"`
	From              string          `json:"from,omitempty"`
	DataType          string          `json:"dataType,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
	InvocationID      *uint64         `json:"invocationId,omitempty"`
	Success           *bool           `json:"success,omitempty"`
	AckID             *uint64         `json:"ackId,omitempty"`
	Error             *ErrorDetail    `json:"error,omitempty"`
}

// Encode encodes an Envelope to its wire representation.
func Encode(env *Envelope) ([]byte, error) {
	w := wireEnvelope{Type: env.Kind.String()}

	switch env.Kind {
	case KindConnected:
		w.ConnectionID = env.Connected.ConnectionID
		w.UserID = env.Connected.UserID
		w.ReconnectionToken = env.Connected.ReconnectionToken

	case KindDisconnected:
		w.Message = env.Disconnected.Message

	case KindEvent:
		m := env.Event
		w.Event = m.Event
		w.Group = m.Group
		w.From = m.From
		w.DataType = m.DataType.String()
		data, err := encodeData(m.DataType, m.Data)
		if err != nil {
			return nil, err
		}
		w.Data = data

	case KindInvocationRequest:
		r := env.InvocationRequest
		w.InvocationID = &r.InvocationID
		w.Event = r.Event
		w.DataType = r.DataType.String()
		data, err := encodeData(r.DataType, r.Data)
		if err != nil {
			return nil, err
		}
		w.Data = data

	case KindInvocationResponse:
		r := env.InvocationResponse
		w.InvocationID = &r.InvocationID
		w.DataType = r.DataType.String()
		w.Success = &r.Success
		w.Error = r.Error
		data, err := encodeData(r.DataType, r.Data)
		if err != nil {
			return nil, err
		}
		w.Data = data

	case KindInvocationCancel:
		w.InvocationID = &env.InvocationCancel.InvocationID

	case KindGroupJoin:
		w.Group = env.GroupJoin.Group
		if env.GroupJoin.AckID != 0 {
			w.AckID = &env.GroupJoin.AckID
		}

	case KindGroupLeave:
		w.Group = env.GroupLeave.Group
		if env.GroupLeave.AckID != 0 {
			w.AckID = &env.GroupLeave.AckID
		}

	case KindAck:
		w.AckID = &env.Ack.AckID
		w.Success = &env.Ack.Success
		w.Error = env.Ack.Error

	default:
		return nil, fmt.Errorf("protocol: cannot encode kind %v", env.Kind)
	}

	return json.Marshal(&w)
}

// Decode decodes wire bytes into an Envelope. Unknown top-level types
// decode to KindUnknown with the original bytes preserved; unknown fields
// inside known types are ignored.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Op: "envelope", Err: err}
	}

	switch w.Type {
	case kindConnectedName:
		return &Envelope{Kind: KindConnected, Connected: &Connected{
			ConnectionID:      w.ConnectionID,
			UserID:            w.UserID,
			ReconnectionToken: w.ReconnectionToken,
		}}, nil

	case kindDisconnectedName:
		return &Envelope{Kind: KindDisconnected, Disconnected: &Disconnected{
			Message: w.Message,
		}}, nil

	case kindEventName:
		dt, payload, err := decodeData(w.DataType, w.Data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Kind: KindEvent, Event: &EventMessage{
			Event:    w.Event,
			Group:    w.Group,
			From:     w.From,
			DataType: dt,
			Data:     payload,
		}}, nil

	case kindInvocationRequestName:
		if w.InvocationID == nil {
			return nil, &DecodeError{Op: "invocationRequest", Err: errMissingInvocationID}
		}
		dt, payload, err := decodeData(w.DataType, w.Data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Kind: KindInvocationRequest, InvocationRequest: &InvocationRequest{
			InvocationID: *w.InvocationID,
			Event:        w.Event,
			DataType:     dt,
			Data:         payload,
		}}, nil

	case kindInvocationResponseName:
		if w.InvocationID == nil {
			return nil, &DecodeError{Op: "invocationResponse", Err: errMissingInvocationID}
		}
		dt, payload, err := decodeData(w.DataType, w.Data)
		if err != nil {
			return nil, err
		}
		success := w.Success != nil && *w.Success
		return &Envelope{Kind: KindInvocationResponse, InvocationResponse: &InvocationResponse{
			InvocationID: *w.InvocationID,
			DataType:     dt,
			Data:         payload,
			Success:      success,
			Error:        w.Error,
		}}, nil

	case kindInvocationCancelName:
		if w.InvocationID == nil {
			return nil, &DecodeError{Op: "invocationCancel", Err: errMissingInvocationID}
		}
		return &Envelope{Kind: KindInvocationCancel, InvocationCancel: &InvocationCancel{
			InvocationID: *w.InvocationID,
		}}, nil

	case kindGroupJoinName:
		return &Envelope{Kind: KindGroupJoin, GroupJoin: &GroupJoin{
			Group: w.Group,
			AckID: ackID(w.AckID),
		}}, nil

	case kindGroupLeaveName:
		return &Envelope{Kind: KindGroupLeave, GroupLeave: &GroupLeave{
			Group: w.Group,
			AckID: ackID(w.AckID),
		}}, nil

	case kindAckName:
		if w.AckID == nil {
			return nil, &DecodeError{Op: "ack", Err: errMissingAckID}
		}
		success := w.Success != nil && *w.Success
		return &Envelope{Kind: KindAck, Ack: &Ack{
			AckID:   *w.AckID,
			Success: success,
			Error:   w.Error,
		}}, nil

	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return &Envelope{Kind: KindUnknown, Raw: raw}, nil
	}
}

var (
	errMissingInvocationID = fmt.Errorf("missing invocationId")
	errMissingAckID        = fmt.Errorf("missing ackId")
)

func ackID(id *uint64) uint64 {
	if id == nil {
		return 0
	}
	return *id
}

// encodeData converts payload bytes to the wire "data" value for the given
// data type. A nil payload encodes to an absent field.
func encodeData(dt DataType, payload []byte) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	switch dt {
	case DataTypeJSON:
		if !json.Valid(payload) {
			return nil, fmt.Errorf("protocol: payload tagged json is not valid JSON")
		}
		return json.RawMessage(payload), nil
	case DataTypeText:
		return json.Marshal(string(payload))
	case DataTypeBinary:
		return json.Marshal(base64.StdEncoding.EncodeToString(payload))
	default:
		return nil, fmt.Errorf("protocol: unknown data type %d", dt)
	}
}

// decodeData converts a wire "data" value back to payload bytes.
func decodeData(name string, raw json.RawMessage) (DataType, []byte, error) {
	dt := DataTypeJSON
	if name != "" {
		var err error
		dt, err = ParseDataType(name)
		if err != nil {
			return 0, nil, &DecodeError{Op: "dataType", Err: err}
		}
	}
	if raw == nil {
		return dt, nil, nil
	}

	switch dt {
	case DataTypeJSON:
		payload := make([]byte, len(raw))
		copy(payload, raw)
		return dt, payload, nil

	case DataTypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, nil, &DecodeError{Op: "text data", Err: err}
		}
		return dt, []byte(s), nil

	case DataTypeBinary:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, nil, &DecodeError{Op: "binary data", Err: err}
		}
		payload, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return 0, nil, &DecodeError{Op: "binary data", Err: err}
		}
		return dt, payload, nil

	default:
		return 0, nil, &DecodeError{Op: "dataType", Err: fmt.Errorf("unhandled data type %d", dt)}
	}
}
