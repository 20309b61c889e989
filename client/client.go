package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/frame"
	"github.com/abeazam/pocketClaw/metric"
	"github.com/abeazam/pocketClaw/pkg/retry"
)

// State represents the connection lifecycle state
type State int32

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Default timing configuration
const (
	defaultRequestTimeout = 30 * time.Second
	defaultChallengeWait  = 10 * time.Second
	defaultChallengePoll  = 50 * time.Millisecond
	defaultDialTimeout    = 45 * time.Second
	writeDeadline         = 10 * time.Second
)

// Client is a gateway protocol client over a single duplex websocket.
// One receive goroutine exists per live connection; sends run concurrently
// with it and with each other. Listener lifecycle is caller-owned and
// survives reconnects; the pending-request table and identifier counter
// are rebuilt fresh on every connect.
type Client struct {
	url string

	auth AuthConfig
	info Info

	requestTimeout time.Duration
	challengeWait  time.Duration
	challengePoll  time.Duration
	dialTimeout    time.Duration
	dialRetry      *retry.Config

	logger        *slog.Logger
	metrics       *metric.Metrics
	onStateChange StateChangeCallback

	dispatcher *Dispatcher

	// Connection-scoped state, rebuilt on every connect
	mu       sync.Mutex
	conn     *websocket.Conn
	corr     *correlator
	shutdown chan struct{}
	recvDone chan struct{}

	// Socket is single-writer; concurrent sends serialize here
	writeMu sync.Mutex

	state       atomic.Int32
	stateMu     sync.Mutex
	stateReason string
}

// NewClient creates a new gateway client. The client is disconnected
// until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient", "url cannot be empty")
	}

	c := &Client{
		url:            url,
		requestTimeout: defaultRequestTimeout,
		challengeWait:  defaultChallengeWait,
		challengePoll:  defaultChallengePoll,
		dialTimeout:    defaultDialTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		dispatcher:     NewDispatcher(),
		info: Info{
			ID:          "pocketclaw",
			DisplayName: "PocketClaw",
			Version:     "0.1.0",
			Platform:    runtime.GOOS,
			Mode:        "chat",
		},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// URL returns the gateway URL
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state
func (c *Client) State() State {
	return State(c.state.Load())
}

// StateReason returns the reason attached to the current state. Empty
// outside StateError.
func (c *Client) StateReason() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.stateReason
}

// setState updates the connection state and fires the state-change callback.
func (c *Client) setState(s State, reason string) {
	c.stateMu.Lock()
	c.state.Store(int32(s))
	c.stateReason = reason
	cb := c.onStateChange
	c.stateMu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectionState.Set(float64(s))
	}
	c.logger.Debug("connection state changed", "state", s.String(), "reason", reason)
	if cb != nil {
		cb(s, reason)
	}
}

// SetHandler installs the primary event handler. Passing nil clears it.
func (c *Client) SetHandler(h EventHandler) {
	c.dispatcher.SetHandler(h)
}

// AddListener registers an event listener under a caller-chosen identifier.
func (c *Client) AddListener(id string, h EventHandler) {
	c.dispatcher.AddListener(id, h)
}

// RemoveListener unregisters an event listener.
func (c *Client) RemoveListener(id string) {
	c.dispatcher.RemoveListener(id)
}

// Connect opens the socket, starts the receive loop, and runs the
// authentication handshake. The state becomes StateConnected only after
// the server accepts the handshake; any failure closes the socket and
// leaves the client in StateError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Connect", "open connection")
	}
	c.mu.Unlock()

	c.setState(StateConnecting, "")
	if c.metrics != nil {
		c.metrics.ConnectsTotal.Inc()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		failure := fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err)
		c.setState(StateError, failure.Error())
		return errors.WrapTransient(failure, "Client", "Connect", "dial gateway")
	}

	// The challenge listener must be in place before the first frame can
	// be dispatched, and is removed regardless of handshake outcome.
	var challenged atomic.Bool
	const challengeListenerID = "handshake.challenge"
	c.dispatcher.AddListener(challengeListenerID, func(event string, _ json.RawMessage) {
		if event == EventChallenge {
			challenged.Store(true)
		}
	})
	defer c.dispatcher.RemoveListener(challengeListenerID)

	corr := newCorrelator()
	shutdown := make(chan struct{})
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.corr = corr
	c.shutdown = shutdown
	c.recvDone = done
	c.mu.Unlock()

	go c.receiveLoop(conn, corr, shutdown, done)

	if detail, err := c.handshake(ctx, &challenged); err != nil {
		c.teardown(errors.ErrNotConnected)
		c.setState(StateError, detail)
		if c.metrics != nil {
			c.metrics.HandshakeFailed.WithLabelValues(handshakeFailureReason(err)).Inc()
		}
		return err
	}

	c.setState(StateConnected, "")
	c.logger.Info("connected to gateway", "url", c.url)
	return nil
}

// dial opens the websocket, optionally retrying with backoff.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: c.dialTimeout,
	}

	dialOnce := func() (*websocket.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return conn, err
	}

	if c.dialRetry == nil {
		return dialOnce()
	}
	return retry.DoWithResult(ctx, *c.dialRetry, dialOnce)
}

// Disconnect cancels the receive loop, closes the socket, and fails every
// pending request with a not-connected error. Event listeners are left
// registered; their lifecycle is caller-owned.
func (c *Client) Disconnect() error {
	cancelled := c.teardown(errors.ErrNotConnected)
	if cancelled > 0 {
		c.logger.Debug("cancelled pending requests on disconnect", "count", cancelled)
	}
	c.setState(StateDisconnected, "")
	return nil
}

// teardown stops the receive loop, closes the socket, and cancels all
// pending requests with cancelErr. Safe to call when already torn down.
func (c *Client) teardown(cancelErr error) int {
	c.mu.Lock()
	conn := c.conn
	corr := c.corr
	shutdown := c.shutdown
	done := c.recvDone
	c.conn = nil
	c.corr = nil
	c.shutdown = nil
	c.recvDone = nil
	c.mu.Unlock()

	if shutdown != nil {
		close(shutdown)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	if corr != nil {
		return corr.cancelAll(cancelErr)
	}
	return 0
}

// receiveLoop reads frames until the socket closes or teardown is
// requested. Frames are processed strictly in arrival order: response
// routing and event fan-out both happen here before the next read.
// Transport errors never escape the loop; they degrade to a state
// transition.
func (c *Client) receiveLoop(conn *websocket.Conn, corr *correlator, shutdown chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-shutdown:
				return
			default:
			}
			c.connectionLost(conn, corr, err)
			return
		}

		decoded := frame.Decode(data)
		if c.metrics != nil {
			c.metrics.FramesReceived.WithLabelValues(decoded.Kind.String()).Inc()
		}

		switch decoded.Kind {
		case frame.KindResponse:
			if !corr.resolve(decoded.Response.ID, decoded.Response) {
				// Late or duplicate response; the request already timed
				// out or the connection was reset.
				c.logger.Debug("dropping response with no pending request", "id", decoded.Response.ID)
			}
		case frame.KindEvent:
			if c.metrics != nil {
				c.metrics.EventsDispatched.WithLabelValues(decoded.Event.Event).Inc()
			}
			c.dispatcher.Dispatch(decoded.Event.Event, decoded.Event.Payload)
		default:
			c.logger.Debug("ignoring undecodable frame", "bytes", len(data))
		}
	}
}

// connectionLost handles an unexpected socket close.
func (c *Client) connectionLost(conn *websocket.Conn, corr *correlator, cause error) {
	c.logger.Warn("connection lost", "error", cause)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.corr = nil
		c.shutdown = nil
		c.recvDone = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	cancelled := corr.cancelAll(errors.ErrConnectionLost)
	if cancelled > 0 {
		c.logger.Debug("cancelled pending requests on connection loss", "count", cancelled)
	}

	// During the handshake, Connect owns the failure transition.
	if c.State() == StateConnected {
		c.setState(StateError, "connection lost")
	}
}

// SendRequest performs an RPC with the client's default timeout. It
// rejects with a not-connected error until the handshake has completed,
// even though the socket is open earlier.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (*frame.Response, error) {
	return c.SendRequestTimeout(ctx, method, params, c.requestTimeout)
}

// SendRequestTimeout performs an RPC with an explicit response deadline.
func (c *Client) SendRequestTimeout(ctx context.Context, method string, params any, timeout time.Duration) (*frame.Response, error) {
	if c.State() != StateConnected {
		if c.metrics != nil {
			c.metrics.RequestErrors.WithLabelValues("not_connected").Inc()
		}
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "SendRequest", "send "+method)
	}

	raw, err := frame.Params(params)
	if err != nil {
		return nil, err
	}

	res, err := c.roundTrip(ctx, method, raw, timeout)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if c.metrics != nil {
			c.metrics.RequestErrors.WithLabelValues("server_error").Inc()
		}
		return res, fmt.Errorf("%w: %s", errors.ErrServerError, res.ErrorMessage("request failed"))
	}
	return res, nil
}

// roundTrip transmits one request frame and suspends the caller until the
// matching response is routed, the deadline elapses, or ctx is cancelled.
// Whichever completes first wins; the losers are inert no-ops.
func (c *Client) roundTrip(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (*frame.Response, error) {
	c.mu.Lock()
	conn := c.conn
	corr := c.corr
	c.mu.Unlock()

	if conn == nil || corr == nil {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "roundTrip", "send "+method)
	}

	id, pending := corr.register(method)
	if c.metrics != nil {
		c.metrics.RequestsInFlight.Inc()
		defer c.metrics.RequestsInFlight.Dec()
	}

	data, err := frame.EncodeRequest(id, method, params)
	if err != nil {
		corr.remove(id)
		return nil, err
	}

	if err := c.writeFrame(conn, data); err != nil {
		corr.remove(id)
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
			"Client", "roundTrip", "write "+method)
	}
	if c.metrics != nil {
		c.metrics.FramesSent.Inc()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-pending.ch:
		if result.err != nil {
			return nil, result.err
		}
		if c.metrics != nil {
			c.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(pending.started).Seconds())
		}
		return result.res, nil
	case <-timer.C:
		corr.remove(id)
		if c.metrics != nil {
			c.metrics.RequestErrors.WithLabelValues("timeout").Inc()
		}
		return nil, errors.RequestTimeout(method)
	case <-ctx.Done():
		corr.remove(id)
		return nil, ctx.Err()
	}
}

// writeFrame serializes concurrent writes onto the socket. The websocket
// library does not allow concurrent writers.
func (c *Client) writeFrame(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// PendingRequests returns the number of in-flight requests, for
// observability and tests.
func (c *Client) PendingRequests() int {
	c.mu.Lock()
	corr := c.corr
	c.mu.Unlock()
	if corr == nil {
		return 0
	}
	return corr.pendingCount()
}
