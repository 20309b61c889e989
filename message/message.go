// Package message defines the immutable chat message record produced by a
// completed streaming turn, plus the decoding of the gateway's structured
// message content into plain text.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles carried on finalized messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one finalized conversation entry. A streaming turn produces
// exactly one Message; it is immutable once built.
type Message struct {
	ID        string
	Role      string
	Content   string
	Reasoning string
	Timestamp time.Time // zero when the server supplied none
}

// New builds a finalized message. An empty id is replaced with a generated
// one so downstream consumers can always key on it.
func New(id, role, content, reasoning string, ts time.Time) Message {
	if id == "" {
		id = uuid.NewString()
	}
	return Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Reasoning: reasoning,
		Timestamp: ts,
	}
}

// Empty reports whether the message carries no user-visible content at all.
// Reasoning counts: a reasoning-only turn is a valid, non-empty message.
func (m Message) Empty() bool {
	return m.Content == "" && m.Reasoning == ""
}
