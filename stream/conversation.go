package stream

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/abeazam/pocketClaw/client"
	"github.com/abeazam/pocketClaw/errors"
)

// MethodChatSend is the RPC that initiates an assistant turn.
const MethodChatSend = "chat.send"

// sendParams is the chat.send request body. The idempotency key lets the
// server drop duplicate submissions after a reconnect.
type sendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Conversation binds a gateway client and a reconciling session for one
// conversation key. It registers the session as an event listener on
// construction; Close unregisters it. The listener survives client
// reconnects, so one Conversation spans transport interruptions.
type Conversation struct {
	client     *client.Client
	session    *Session
	listenerID string
	logger     *slog.Logger
}

// NewConversation creates a conversation over the given client. Session
// options configure the underlying reconciler and its callbacks.
func NewConversation(c *client.Client, key string, opts ...SessionOption) *Conversation {
	session := NewSession(key, opts...)
	cv := &Conversation{
		client:     c,
		session:    session,
		listenerID: "conversation." + key,
		logger:     session.logger,
	}
	c.AddListener(cv.listenerID, session.HandleEvent)
	return cv
}

// Session returns the underlying reconciler.
func (cv *Conversation) Session() *Session {
	return cv.session
}

// Send submits one user message to the assistant. The RPC only
// acknowledges receipt; the reply arrives through the narration channels.
// A timeout on the acknowledgement is therefore the expected success case
// when the server starts streaming before acking, and is not reported as
// an error. Every other failure, including a server-side error response,
// is real.
func (cv *Conversation) Send(ctx context.Context, text string) error {
	params := sendParams{
		SessionKey:     cv.session.Key(),
		Message:        text,
		IdempotencyKey: uuid.NewString(),
	}

	_, err := cv.client.SendRequest(ctx, MethodChatSend, params)
	if err != nil {
		if stderrors.Is(err, errors.ErrRequestTimeout) {
			cv.logger.Debug("send acknowledgement timed out; reply arrives via streaming",
				"key", cv.session.Key())
			return nil
		}
		return err
	}
	return nil
}

// Close unregisters the event listener and abandons any in-progress turn.
func (cv *Conversation) Close() {
	cv.client.RemoveListener(cv.listenerID)
	cv.session.Reset()
}
