// Package client implements the relay client: a persistent connection to
// the relay service with automatic recovery, group membership, event
// callbacks, and a request/response invoke pattern layered over the
// otherwise fire-and-forget event channel.
//
// A Client owns exactly one Transport and moves through the states
// Disconnected -> Connecting -> Connected, with a Recovering detour on
// transient drops when the server granted a resumable session. Inbound
// envelopes are drained by a single read loop and routed by kind:
// invocation responses to the correlation table, event messages to user
// callbacks, lifecycle envelopes to the state machine. Callbacks run on a
// dedicated goroutine in registration order so a slow callback never
// stalls the read loop.
package client
