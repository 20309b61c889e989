package bridge

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abeazam/pocketClaw/client"
	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/metric"
)

// Publisher is the messaging surface the bridge needs. *nats.Conn
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds the bridge settings.
type Config struct {
	// SubjectPrefix is prepended to the event name to form the subject.
	SubjectPrefix string `json:"subjectPrefix"`
	// Events limits republishing to the named events. Empty means all.
	Events []string `json:"events,omitempty"`
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix: "pocketclaw.events",
	}
}

// Validate checks the configuration for correctness.
func (c Config) Validate() error {
	if c.SubjectPrefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "Validate", "subject prefix cannot be empty")
	}
	if strings.ContainsAny(c.SubjectPrefix, " \t") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "Validate", "subject prefix cannot contain whitespace")
	}
	return nil
}

// envelope is the republished message body.
type envelope struct {
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Bridge republishes every gateway event dispatched by the client onto
// NATS subjects, one subject per event name. It observes events through a
// client listener, so it sees exactly the frames the dispatcher fan-out
// sees and never touches the socket itself.
type Bridge struct {
	cfg    Config
	pub    Publisher
	client *client.Client
	logger *slog.Logger

	allowed map[string]bool
	started atomic.Bool

	published *prometheus.CounterVec
	failed    prometheus.Counter
}

// BridgeOption is a functional option for configuring the Bridge
type BridgeOption func(*Bridge)

// WithLogger sets a custom structured logger for the bridge.
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetricsRegistry enables Prometheus metrics for the bridge.
func WithMetricsRegistry(registry *metric.MetricsRegistry) BridgeOption {
	return func(b *Bridge) {
		if registry == nil {
			return
		}
		b.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketclaw_bridge_events_published_total",
			Help: "Gateway events republished to NATS, by event name",
		}, []string{"event"})
		b.failed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketclaw_bridge_publish_failures_total",
			Help: "Republish attempts that failed",
		})
		_ = registry.Register("bridge", "events_published", b.published)
		_ = registry.Register("bridge", "publish_failures", b.failed)
	}
}

// listenerID is the bridge's registration key on the client dispatcher.
const listenerID = "bridge.republisher"

// New creates a bridge over an established client and publisher.
func New(c *client.Client, pub Publisher, cfg Config, opts ...BridgeOption) (*Bridge, error) {
	if c == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "client cannot be nil")
	}
	if pub == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "publisher cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:    cfg,
		pub:    pub,
		client: c,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if len(cfg.Events) > 0 {
		b.allowed = make(map[string]bool, len(cfg.Events))
		for _, ev := range cfg.Events {
			b.allowed[ev] = true
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Start registers the bridge on the client dispatcher. Events dispatched
// from then on are republished.
func (b *Bridge) Start() error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Start", "register listener")
	}
	b.client.AddListener(listenerID, b.handleEvent)
	b.logger.Info("event bridge started", "prefix", b.cfg.SubjectPrefix)
	return nil
}

// Stop unregisters the bridge. In-flight publishes complete; nothing new
// is republished afterwards.
func (b *Bridge) Stop() error {
	if !b.started.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "Bridge", "Stop", "unregister listener")
	}
	b.client.RemoveListener(listenerID)
	b.logger.Info("event bridge stopped")
	return nil
}

// handleEvent runs on the client's receive goroutine; the publish is a
// non-blocking buffered write inside the NATS client, so it does not
// stall frame processing.
func (b *Bridge) handleEvent(event string, payload json.RawMessage) {
	if b.allowed != nil && !b.allowed[event] {
		return
	}

	data, err := json.Marshal(envelope{
		Event:       event,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to encode event envelope", "event", event, "error", err)
		return
	}

	subject := b.cfg.SubjectPrefix + "." + event
	if err := b.pub.Publish(subject, data); err != nil {
		if b.failed != nil {
			b.failed.Inc()
		}
		b.logger.Error("failed to republish event", "subject", subject, "error", err)
		return
	}
	if b.published != nil {
		b.published.WithLabelValues(event).Inc()
	}
}

// ConnectNATS dials a NATS server with reconnect settings suited to a
// long-lived bridge.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("pocketclaw-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "Bridge", "ConnectNATS", "connect to NATS")
	}
	return nc, nil
}
