// Package protocol implements the json.pubwire.v1 subprotocol exchanged
// between clients and the relay service over a persistent stream.
//
// Every message on the wire is one Envelope: a JSON object whose "type"
// field discriminates between the supported kinds (connect-ack, events,
// invocation request/response/cancel, group operations and acks). Decoding
// is forward compatible: unknown top-level kinds decode to KindUnknown and
// unknown fields inside known kinds are ignored.
//
// Payloads carry an explicit DataType (json, text or binary) that controls
// the wire representation of the "data" field and how the payload bytes are
// presented to the caller. The tag is never inferred from content.
package protocol
