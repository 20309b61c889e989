package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/testutil"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = NewClient("ws://localhost:1", WithClientInfo(Info{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestSendRequestBeforeConnect(t *testing.T) {
	c, err := NewClient("ws://localhost:1")
	require.NoError(t, err)

	_, err = c.SendRequest(context.Background(), "chat.send", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSendRequestSuccess(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Handle("chat.send", func(req testutil.RecordedRequest) (bool, any, string) {
		return true, map[string]any{"accepted": true}, ""
	})
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	res, err := c.SendRequest(context.Background(), "chat.send", map[string]string{"message": "hi"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.OK)

	var payload struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &payload))
	assert.True(t, payload.Accepted)

	// The handshake took id 1; the first caller request takes id 2.
	req, ok := gw.WaitForRequest("chat.send", time.Second)
	require.True(t, ok)
	assert.Equal(t, "2", req.ID)
}

func TestSendRequestServerError(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Handle("chat.send", func(testutil.RecordedRequest) (bool, any, string) {
		return false, nil, "session busy"
	})
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	res, err := c.SendRequest(context.Background(), "chat.send", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrServerError)
	assert.Contains(t, err.Error(), "session busy")

	// The raw response is still surfaced for callers that inspect it.
	require.NotNil(t, res)
	assert.False(t, res.OK)

	// A failed request leaves the connection usable.
	assert.Equal(t, StateConnected, c.State())
}

func TestSendRequestTimeout(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Silence("slow.op")
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	start := time.Now()
	_, err := c.SendRequestTimeout(context.Background(), "slow.op", nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)
	assert.Contains(t, err.Error(), "slow.op")
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 0, c.PendingRequests())

	// Timeouts are per-request, not connection failures.
	assert.Equal(t, StateConnected, c.State())
}

func TestSendRequestContextCancel(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Silence("slow.op")
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.SendRequestTimeout(ctx, "slow.op", nil, 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestConcurrentRequests(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Handle("echo", func(req testutil.RecordedRequest) (bool, any, string) {
		return true, map[string]any{"id": req.ID}, ""
	})
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.SendRequest(context.Background(), "echo", nil)
			assert.NoError(t, err)
			assert.NotNil(t, res)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, c.PendingRequests())
	assert.Len(t, gw.RequestsFor("echo"), callers)
}

func TestEventDelivery(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := newTestClient(t, gw.URL())

	events := make(chan string, 10)
	c.SetHandler(func(event string, _ json.RawMessage) {
		events <- event
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NoError(t, gw.SendEvent("chat", map[string]any{"state": "delta"}))

	// The challenge event reaches the primary handler too.
	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case ev := <-events:
			seen[ev] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.True(t, seen["connect.challenge"])
	assert.True(t, seen["chat"])
}

func TestMalformedFramesIgnored(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NoError(t, gw.SendRaw([]byte(`not json at all`)))
	require.NoError(t, gw.SendRaw([]byte(`{"type":"mystery"}`)))

	// The connection survives undecodable traffic.
	require.NoError(t, gw.SendEvent("chat", map[string]any{}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectionLostFailsPending(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Silence("slow.op")
	defer gw.Close()

	states := make(chan State, 10)
	c := newTestClient(t, gw.URL(), WithStateChangeCallback(func(s State, _ string) {
		states <- s
	}))
	require.NoError(t, c.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendRequestTimeout(context.Background(), "slow.op", nil, 10*time.Second)
		errCh <- err
	}()

	_, ok := gw.WaitForRequest("slow.op", time.Second)
	require.True(t, ok)

	gw.DropConnections()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed on connection loss")
	}

	waitForState(t, states, StateError)
	assert.Equal(t, "connection lost", c.StateReason())
}

func TestDisconnectFailsPendingWithNotConnected(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Silence("slow.op")
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendRequestTimeout(context.Background(), "slow.op", nil, 10*time.Second)
		errCh <- err
	}()

	_, ok := gw.WaitForRequest("slow.op", time.Second)
	require.True(t, ok)

	require.NoError(t, c.Disconnect())

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed on disconnect")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestListenersSurviveReconnect(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := newTestClient(t, gw.URL())

	events := make(chan string, 10)
	c.AddListener("ui", func(event string, _ json.RawMessage) {
		if event == "chat" {
			events <- event
		}
	})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	// Each connection starts a fresh identifier space.
	reqs := gw.RequestsFor(MethodConnect)
	require.Len(t, reqs, 2)
	assert.Equal(t, "1", reqs[0].ID)
	assert.Equal(t, "1", reqs[1].ID)

	require.NoError(t, gw.SendEvent("chat", map[string]any{}))
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("listener did not survive reconnect")
	}
}

func TestConnectTwiceRejected(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := newTestClient(t, gw.URL())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
	assert.Equal(t, StateConnected, c.State())
}

func TestStateTransitionsOnConnect(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	var mu sync.Mutex
	var transitions []State
	c := newTestClient(t, gw.URL(), WithStateChangeCallback(func(s State, _ string) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	}))

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 2)
	assert.Equal(t, StateConnecting, transitions[0])
	assert.Equal(t, StateConnected, transitions[1])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDialFailure(t *testing.T) {
	c, err := NewClient("ws://127.0.0.1:1", WithDialTimeout(200*time.Millisecond))
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionFailed)
	assert.Equal(t, StateError, c.State())
	assert.NotEmpty(t, c.StateReason())
}

func waitForState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %s", want)
		}
	}
}
