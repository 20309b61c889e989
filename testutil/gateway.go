package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RecordedRequest is a request frame the gateway received from a client.
type RecordedRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// RequestHandler scripts the gateway's reply to one method. Returning
// ok=false sends an error response carrying errMsg.
type RequestHandler func(req RecordedRequest) (ok bool, payload any, errMsg string)

// Gateway is a scripted in-process websocket gateway for client tests.
//
// By default every new socket receives the connect.challenge event and any
// connect request is accepted with a hello-ok payload. Behavior is
// customized through the exported fields and Handle; configure before the
// first client connects.
type Gateway struct {
	// SuppressChallenge prevents the challenge event from ever being sent.
	SuppressChallenge bool
	// ChallengeDelay postpones the challenge event after the socket opens.
	ChallengeDelay time.Duration

	server *httptest.Server

	mu       sync.Mutex
	conns    []*gatewayConn
	requests []RecordedRequest
	handlers map[string]RequestHandler
	silent   map[string]bool
}

type gatewayConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (gc *gatewayConn) writeJSON(v any) error {
	gc.writeMu.Lock()
	defer gc.writeMu.Unlock()
	return gc.conn.WriteJSON(v)
}

// NewGateway starts the gateway on an ephemeral port.
func NewGateway() *Gateway {
	g := &Gateway{
		handlers: make(map[string]RequestHandler),
		silent:   make(map[string]bool),
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	return g
}

// URL returns the websocket URL clients should dial.
func (g *Gateway) URL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

// Close shuts the gateway down and drops every open socket.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := g.conns
	g.conns = nil
	g.mu.Unlock()
	for _, gc := range conns {
		_ = gc.conn.Close()
	}
	g.server.Close()
}

// Handle scripts the response for a method.
func (g *Gateway) Handle(method string, h RequestHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[method] = h
}

// Silence makes the gateway swallow requests for a method without ever
// responding, for timeout tests.
func (g *Gateway) Silence(method string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.silent[method] = true
}

// SendEvent pushes an event frame to every open socket.
func (g *Gateway) SendEvent(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := map[string]any{
		"type":    "event",
		"event":   event,
		"payload": json.RawMessage(raw),
	}

	g.mu.Lock()
	conns := make([]*gatewayConn, len(g.conns))
	copy(conns, g.conns)
	g.mu.Unlock()

	// A socket closing concurrently is not a scripting error; skip it.
	for _, gc := range conns {
		_ = gc.writeJSON(msg)
	}
	return nil
}

// SendRaw pushes an arbitrary text frame to every open socket, for
// malformed-frame tests.
func (g *Gateway) SendRaw(data []byte) error {
	g.mu.Lock()
	conns := make([]*gatewayConn, len(g.conns))
	copy(conns, g.conns)
	g.mu.Unlock()

	for _, gc := range conns {
		gc.writeMu.Lock()
		_ = gc.conn.WriteMessage(websocket.TextMessage, data)
		gc.writeMu.Unlock()
	}
	return nil
}

// DropConnections abruptly closes every open socket without a close frame.
func (g *Gateway) DropConnections() {
	g.mu.Lock()
	conns := g.conns
	g.conns = nil
	g.mu.Unlock()
	for _, gc := range conns {
		_ = gc.conn.Close()
	}
}

// Requests returns a copy of every request frame received so far, in
// arrival order.
func (g *Gateway) Requests() []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RecordedRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// RequestsFor returns the received requests for one method.
func (g *Gateway) RequestsFor(method string) []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []RecordedRequest
	for _, r := range g.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// WaitForRequest polls until a request for method arrives or the timeout
// elapses.
func (g *Gateway) WaitForRequest(method string, timeout time.Duration) (RecordedRequest, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if reqs := g.RequestsFor(method); len(reqs) > 0 {
			return reqs[len(reqs)-1], true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return RecordedRequest{}, false
}

// dropConn forgets a socket whose read loop has ended.
func (g *Gateway) dropConn(gc *gatewayConn) {
	_ = gc.conn.Close()
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.conns {
		if c == gc {
			g.conns = append(g.conns[:i], g.conns[i+1:]...)
			break
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	gc := &gatewayConn{conn: conn}

	g.mu.Lock()
	suppress := g.SuppressChallenge
	delay := g.ChallengeDelay
	g.conns = append(g.conns, gc)
	g.mu.Unlock()
	defer g.dropConn(gc)

	if !suppress {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			_ = gc.writeJSON(map[string]any{
				"type":    "event",
				"event":   "connect.challenge",
				"payload": map[string]string{"nonce": "test-nonce"},
			})
		}()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			Type string `json:"type"`
			RecordedRequest
		}
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "req" {
			continue
		}

		g.mu.Lock()
		g.requests = append(g.requests, req.RecordedRequest)
		handler := g.handlers[req.Method]
		silent := g.silent[req.Method]
		g.mu.Unlock()

		if silent {
			continue
		}

		ok, payload, errMsg := defaultResponse(req.Method)
		if handler != nil {
			ok, payload, errMsg = handler(req.RecordedRequest)
		}

		res := map[string]any{
			"type": "res",
			"id":   req.ID,
			"ok":   ok,
		}
		if ok {
			if payload != nil {
				res["payload"] = payload
			}
		} else {
			res["error"] = map[string]string{"message": errMsg}
		}
		_ = gc.writeJSON(res)
	}
}

func defaultResponse(method string) (bool, any, string) {
	if method == "connect" {
		return true, map[string]any{"type": "hello-ok", "protocol": 1}, ""
	}
	return true, map[string]any{}, ""
}
