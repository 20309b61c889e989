package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeazam/pocketClaw/client"
	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/testutil"
)

type capturingPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	fail     error
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{messages: make(map[string][][]byte)}
}

func (p *capturingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages[subject] = append(p.messages[subject], data)
	return nil
}

func (p *capturingPublisher) get(subject string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[subject]
}

func (p *capturingPublisher) waitFor(subject string, timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := p.get(subject); len(msgs) > 0 {
			return msgs[len(msgs)-1], true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, false
}

func connectedClient(t *testing.T, gw *testutil.Gateway) *client.Client {
	t.Helper()

	c, err := client.NewClient(gw.URL(),
		client.WithAuthToken("t1"),
		client.WithChallengePollInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	err := Config{}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	err = Config{SubjectPrefix: "has space"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestNewValidation(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()
	c := connectedClient(t, gw)

	_, err := New(nil, newCapturingPublisher(), DefaultConfig())
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = New(c, nil, DefaultConfig())
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = New(c, newCapturingPublisher(), Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestBridgeRepublishesEvents(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := connectedClient(t, gw)
	pub := newCapturingPublisher()

	b, err := New(c, pub, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer b.Stop()

	require.NoError(t, gw.SendEvent("chat", map[string]any{"state": "delta", "delta": "hi"}))

	data, ok := pub.waitFor("pocketclaw.events.chat", 2*time.Second)
	require.True(t, ok)

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "chat", env.Event)
	assert.False(t, env.PublishedAt.IsZero())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "delta", payload["state"])
}

func TestBridgeEventFilter(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := connectedClient(t, gw)
	pub := newCapturingPublisher()

	cfg := DefaultConfig()
	cfg.Events = []string{"agent"}
	b, err := New(c, pub, cfg)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer b.Stop()

	require.NoError(t, gw.SendEvent("chat", map[string]any{}))
	require.NoError(t, gw.SendEvent("agent", map[string]any{"stream": "assistant"}))

	_, ok := pub.waitFor("pocketclaw.events.agent", 2*time.Second)
	require.True(t, ok)
	assert.Empty(t, pub.get("pocketclaw.events.chat"))
}

func TestBridgeLifecycle(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := connectedClient(t, gw)
	pub := newCapturingPublisher()

	b, err := New(c, pub, DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, b.Stop(), errors.ErrNotStarted)
	require.NoError(t, b.Start())
	assert.ErrorIs(t, b.Start(), errors.ErrAlreadyStarted)
	require.NoError(t, b.Stop())

	// Stopped bridge republishes nothing.
	require.NoError(t, gw.SendEvent("chat", map[string]any{}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, pub.get("pocketclaw.events.chat"))
}

func TestBridgePublishFailureDoesNotPropagate(t *testing.T) {
	gw := testutil.NewGateway()
	defer gw.Close()

	c := connectedClient(t, gw)
	pub := newCapturingPublisher()
	pub.fail = assert.AnError

	b, err := New(c, pub, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer b.Stop()

	// Failed publishes must not disturb the client's receive loop.
	require.NoError(t, gw.SendEvent("chat", map[string]any{}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, client.StateConnected, c.State())
}
