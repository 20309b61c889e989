// Package bridge republishes dispatched gateway events onto NATS
// subjects, letting other processes observe a conversation without
// holding their own gateway connection. One subject per event name,
// rooted at a configurable prefix.
package bridge
