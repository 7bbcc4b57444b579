// Package service is the server-side companion to pkg/client: it parses
// relay connection strings, mints short-lived client access tokens, and
// exposes the relay's REST surface for pushing messages to connections,
// users, and groups.
package service
