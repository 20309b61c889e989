// Package client implements the persistent, authenticated JSON-frame
// protocol client for the pocketClaw gateway.
//
// A Client owns a single duplex websocket. All inbound traffic is read by
// one receive goroutine per connection, which routes response frames to
// their suspended callers by identifier and fans event frames out to
// registered handlers. Outbound requests may be issued from any goroutine;
// writes are serialized internally.
//
// The connection is not usable for RPC until Connect completes the
// challenge/connect handshake. Request identifiers are never reused within
// a connection; each reconnect starts a fresh identifier space and a fresh
// pending-request table, while event handler registrations persist across
// reconnects.
package client
