package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/abeazam/pocketClaw/message"
	"github.com/abeazam/pocketClaw/metric"
)

// Event names carrying turn narration.
const (
	// EventChat is the primary narration channel.
	EventChat = "chat"
	// EventAgent is the secondary narration channel.
	EventAgent = "agent"
)

// Primary channel states.
const (
	chatStateDelta = "delta"
	chatStateFinal = "final"
)

// Secondary channel streams and lifecycle phases.
const (
	agentStreamAssistant = "assistant"
	agentStreamLifecycle = "lifecycle"

	lifecyclePhaseEnd   = "end"
	lifecyclePhaseError = "error"
)

// Source identifies which narration channel owns the current turn.
type Source int

// Stream ownership values
const (
	SourceNone Source = iota
	SourcePrimary
	SourceSecondary
)

// String returns the string representation of Source
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourcePrimary:
		return "primary"
	case SourceSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// chatPayload is the primary narration event body.
type chatPayload struct {
	SessionKey string          `json:"sessionKey"`
	State      string          `json:"state"`
	Delta      string          `json:"delta"`
	Message    json.RawMessage `json:"message"`
}

// chatMessageMeta is the structured message attached to a terminal chat
// event. Content shape varies; message.ExtractContent handles it.
type chatMessageMeta struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Timestamp int64           `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
}

// agentPayload is the secondary narration event body.
type agentPayload struct {
	SessionKey string    `json:"sessionKey"`
	Stream     string    `json:"stream"`
	Data       agentData `json:"data"`
}

type agentData struct {
	Delta string `json:"delta"`
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// DraftFunc observes the growing in-progress message after each accepted chunk.
type DraftFunc func(msg message.Message)

// FinalFunc observes the finalized immutable message, exactly once per turn.
type FinalFunc func(msg message.Message)

// StreamErrorFunc observes a server-reported lifecycle error for the turn.
type StreamErrorFunc func(detail string)

// Session reconciles the two redundant narration channels for one
// conversation into a single coherent message per turn.
//
// Ownership is first-source-wins and exclusive: whichever channel delivers
// the first accepted chunk narrates the whole turn; the other channel's
// chunks are discarded until the turn finalizes. Events arrive serially
// from the dispatcher, but Reset and the snapshot accessors may be called
// from other goroutines, so all state is mutex-guarded.
type Session struct {
	key        string
	heartbeats *HeartbeatFilter
	logger     *slog.Logger
	metrics    *metric.Metrics

	onDraft DraftFunc
	onFinal FinalFunc
	onError StreamErrorFunc

	mu        sync.Mutex
	active    Source
	text      string
	reasoning string
	open      bool
}

// SessionOption is a functional option for configuring a Session
type SessionOption func(*Session)

// WithHeartbeatFilter replaces the default sentinel pattern set.
func WithHeartbeatFilter(f *HeartbeatFilter) SessionOption {
	return func(s *Session) {
		if f != nil {
			s.heartbeats = f
		}
	}
}

// WithSessionLogger sets a custom structured logger for the session.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionMetrics enables Prometheus metrics for the session.
func WithSessionMetrics(registry *metric.MetricsRegistry) SessionOption {
	return func(s *Session) {
		if registry != nil {
			s.metrics = registry.CoreMetrics()
		}
	}
}

// OnDraft sets the callback receiving in-progress drafts.
func OnDraft(fn DraftFunc) SessionOption {
	return func(s *Session) { s.onDraft = fn }
}

// OnFinal sets the callback receiving the finalized message.
func OnFinal(fn FinalFunc) SessionOption {
	return func(s *Session) { s.onFinal = fn }
}

// OnStreamError sets the callback receiving lifecycle error text.
func OnStreamError(fn StreamErrorFunc) SessionOption {
	return func(s *Session) { s.onError = fn }
}

// NewSession creates a reconciler for one conversation key.
func NewSession(key string, opts ...SessionOption) *Session {
	s := &Session{
		key:        key,
		heartbeats: NewHeartbeatFilter(DefaultHeartbeatPatterns()),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the conversation key this session reconciles.
func (s *Session) Key() string {
	return s.key
}

// HandleEvent routes a dispatched gateway event into the reconciler. It is
// shaped as a client.EventHandler so a Session can be registered directly
// as a listener. Events for other conversation keys are ignored; events
// carrying no key are accepted.
func (s *Session) HandleEvent(event string, payload json.RawMessage) {
	switch event {
	case EventChat:
		s.HandleChat(payload)
	case EventAgent:
		s.HandleAgent(payload)
	}
}

// HandleChat applies one primary-channel event.
func (s *Session) HandleChat(payload json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Debug("undecodable chat payload", "error", err)
		return
	}
	if p.SessionKey != "" && s.key != "" && p.SessionKey != s.key {
		return
	}

	switch p.State {
	case chatStateDelta:
		s.acceptChunk(SourcePrimary, p.Delta)
	case chatStateFinal:
		s.finalizePrimary(p.Message)
	default:
		s.logger.Debug("ignoring chat event with unknown state", "state", p.State)
	}
}

// HandleAgent applies one secondary-channel event.
func (s *Session) HandleAgent(payload json.RawMessage) {
	var p agentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Debug("undecodable agent payload", "error", err)
		return
	}
	if p.SessionKey != "" && s.key != "" && p.SessionKey != s.key {
		return
	}

	switch p.Stream {
	case agentStreamAssistant:
		s.acceptChunk(SourceSecondary, p.Data.Delta)
	case agentStreamLifecycle:
		s.lifecycle(p.Data)
	default:
		s.logger.Debug("ignoring agent event with unknown stream", "stream", p.Stream)
	}
}

// acceptChunk applies one incremental chunk from a channel, enforcing
// exclusive ownership and heartbeat filtering.
func (s *Session) acceptChunk(from Source, delta string) {
	s.mu.Lock()

	if s.active != SourceNone && s.active != from {
		s.mu.Unlock()
		s.logger.Debug("discarding chunk from non-owning source",
			"source", from.String(), "owner", s.active.String())
		return
	}
	if delta == "" {
		s.mu.Unlock()
		return
	}
	if s.heartbeats.IsHeartbeat(delta) {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.HeartbeatsFiltered.Inc()
		}
		return
	}

	// First accepted chunk claims the turn for its channel.
	s.active = from
	s.open = true
	s.text += delta
	draft := s.draftLocked()
	onDraft := s.onDraft
	s.mu.Unlock()

	if onDraft != nil {
		onDraft(draft)
	}
}

// finalizePrimary handles the primary channel's terminal event. When the
// secondary channel owns the turn, the terminal payload's content is
// ignored and the accumulated secondary text is promoted instead, so
// partial streams are never lost; the terminal event still closes the turn
// because the lifecycle end signal deliberately does not.
func (s *Session) finalizePrimary(rawMessage json.RawMessage) {
	var meta chatMessageMeta
	if len(rawMessage) > 0 {
		if err := json.Unmarshal(rawMessage, &meta); err != nil {
			s.logger.Debug("undecodable final message", "error", err)
		}
	}

	text, reasoning := message.ExtractContent(meta.Content)
	text = s.heartbeats.Filter(text)

	s.mu.Lock()

	usedDraft := false
	if s.active == SourceSecondary || text == "" {
		// Promote the draft rather than discarding a partial stream.
		text = s.text
		if reasoning == "" {
			reasoning = s.reasoning
		}
		usedDraft = true
	}

	finalSource := s.active
	onFinal := s.onFinal
	s.resetLocked()
	s.mu.Unlock()

	if text == "" && reasoning == "" {
		// Nothing streamed and nothing in the terminal payload.
		return
	}

	ts := time.Time{}
	if meta.Timestamp > 0 {
		ts = time.UnixMilli(meta.Timestamp)
	}
	role := meta.Role
	if role == "" {
		role = message.RoleAssistant
	}

	final := message.New(meta.ID, role, text, reasoning, ts)
	if s.metrics != nil {
		label := finalSource.String()
		if usedDraft && finalSource == SourceNone {
			label = "terminal"
		}
		s.metrics.TurnsFinalized.WithLabelValues(label).Inc()
	}
	s.logger.Debug("turn finalized", "key", s.key, "source", finalSource.String(), "chars", len(text))

	if onFinal != nil {
		onFinal(final)
	}
}

// lifecycle handles the secondary channel's lifecycle signals. Phase end
// is informational: finalization is left to the primary channel's terminal
// event, which carries the message id and timestamp. Phase error surfaces
// the server-supplied text.
func (s *Session) lifecycle(data agentData) {
	switch data.Phase {
	case lifecyclePhaseEnd:
		s.logger.Debug("turn lifecycle ended", "key", s.key)
	case lifecyclePhaseError:
		detail := data.Error
		if detail == "" {
			detail = "stream error"
		}
		s.logger.Warn("turn lifecycle error", "key", s.key, "error", detail)
		if s.onError != nil {
			s.onError(detail)
		}
	}
}

// Reset abandons the in-progress turn, clearing all accumulated state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.active = SourceNone
	s.text = ""
	s.reasoning = ""
	s.open = false
}

// ActiveSource returns which channel currently owns the turn.
func (s *Session) ActiveSource() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Draft returns the current in-progress message and whether a turn is open.
func (s *Session) Draft() (message.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return message.Message{}, false
	}
	return s.draftLocked(), true
}

func (s *Session) draftLocked() message.Message {
	return message.Message{
		Role:      message.RoleAssistant,
		Content:   s.text,
		Reasoning: s.reasoning,
	}
}
