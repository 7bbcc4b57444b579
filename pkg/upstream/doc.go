// Package upstream receives relay webhook deliveries and turns them into
// application handler calls. The relay forwards client lifecycle events and
// custom events as HTTP POSTs with CloudEvents-style ce-* headers; the
// dispatcher classifies each delivery, runs the matching handler, and maps
// the handler outcome back onto the HTTP response the relay relays to the
// invoking client.
package upstream
