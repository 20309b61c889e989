// Package testutil provides testing utilities for pocketClaw.
//
// Its centerpiece is Gateway, a scripted in-process websocket gateway:
// it speaks the real wire protocol (challenge event, connect handshake,
// request/response frames, pushed events) over an httptest server, so
// client and streaming tests exercise the full socket path without a
// live assistant server. Behavior is scripted per method; received
// requests are recorded for assertion.
package testutil
