package client

import (
	"strconv"
	"sync"
	"time"

	"github.com/abeazam/pocketClaw/frame"
)

// rpcResult is the single resolution of a pending request: a response or a
// failure, never both.
type rpcResult struct {
	res *frame.Response
	err error
}

// pendingRequest tracks one in-flight request. The channel is buffered so
// the receive loop never blocks handing over a response.
type pendingRequest struct {
	method  string
	ch      chan rpcResult
	started time.Time
}

// correlator assigns request identifiers and matches asynchronous responses
// back to their originating request. A fresh correlator is built per
// connection: identifiers are never reused across reconnects.
type correlator struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[string]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[string]*pendingRequest),
	}
}

// register allocates the next identifier (strictly increasing from 1,
// encoded as a decimal string) and records a pending entry for it.
func (c *correlator) register(method string) (string, *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	p := &pendingRequest{
		method:  method,
		ch:      make(chan rpcResult, 1),
		started: time.Now(),
	}
	c.pending[id] = p
	return id, p
}

// resolve completes the pending request for id with a response, waking its
// caller. A response for an identifier that is no longer pending (already
// timed out, or the connection was reset) is reported as false; the caller
// drops it silently. That means a very late response can never resurrect a
// timed-out request; re-issuing is the caller's responsibility.
func (c *correlator) resolve(id string, res *frame.Response) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.ch <- rpcResult{res: res}
	return true
}

// remove drops the pending entry for id without resolving it. Used by the
// sender when its timeout or context wins the race; a response arriving
// afterwards becomes a safe no-op in resolve.
func (c *correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// cancelAll fails every still-pending request with err and empties the
// table. No caller is left suspended. Returns how many were cancelled.
func (c *correlator) cancelAll(err error) int {
	c.mu.Lock()
	cancelled := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range cancelled {
		p.ch <- rpcResult{err: err}
	}
	return len(cancelled)
}

// pendingCount returns the number of in-flight requests.
func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
