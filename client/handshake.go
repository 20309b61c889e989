package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/frame"
)

// Protocol constants shared with the gateway
const (
	// EventChallenge is the event the server emits immediately after the
	// socket opens, before it will accept a connect request.
	EventChallenge = "connect.challenge"

	// MethodConnect is the authentication handshake method.
	MethodConnect = "connect"

	// helloOKType is the payload type the server returns on a successful
	// handshake.
	helloOKType = "hello-ok"

	// The protocol version window this client speaks.
	minProtocolVersion = 1
	maxProtocolVersion = 1
)

// connectParams is the body of the connect request.
type connectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Role        string      `json:"role"`
	Client      Info        `json:"client"`
	Auth        *authParams `json:"auth,omitempty"`
}

type authParams struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// helloPayload is the successful handshake response body. Only the
// discriminator matters to the client.
type helloPayload struct {
	Type string `json:"type"`
}

// handshake waits for the server's challenge event and then performs the
// connect exchange. On failure it returns a human-readable detail for the
// state reason alongside the error.
func (c *Client) handshake(ctx context.Context, challenged *atomic.Bool) (string, error) {
	if err := c.awaitChallenge(ctx, challenged); err != nil {
		return "server did not send challenge", err
	}

	params := connectParams{
		MinProtocol: minProtocolVersion,
		MaxProtocol: maxProtocolVersion,
		Role:        "client",
		Client:      c.info,
	}
	switch {
	case c.auth.Token != "":
		params.Auth = &authParams{Token: c.auth.Token}
	case c.auth.Password != "":
		params.Auth = &authParams{Password: c.auth.Password}
	}

	raw, err := frame.Params(params)
	if err != nil {
		return "invalid handshake parameters", err
	}

	res, err := c.roundTrip(ctx, MethodConnect, raw, c.requestTimeout)
	if err != nil {
		return err.Error(), errors.AuthenticationFailed(err.Error())
	}
	if !res.OK {
		detail := res.ErrorMessage("authentication rejected")
		return detail, errors.AuthenticationFailed(detail)
	}

	var hello helloPayload
	if err := json.Unmarshal(res.Payload, &hello); err != nil {
		detail := "undecodable handshake response"
		return detail, fmt.Errorf("%w: %v", errors.ErrDecodingFailed, err)
	}
	if hello.Type != helloOKType {
		detail := fmt.Sprintf("Unexpected response type: %s", hello.Type)
		return detail, errors.AuthenticationFailed(detail)
	}

	return "", nil
}

// awaitChallenge polls until the challenge listener has observed the
// challenge event, or the wait window elapses.
func (c *Client) awaitChallenge(ctx context.Context, challenged *atomic.Bool) error {
	deadline := time.Now().Add(c.challengeWait)
	for {
		if challenged.Load() {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.WrapTransient(errors.ErrChallengeTimeout, "Client", "handshake", "await challenge")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.challengePoll):
		}
	}
}

// handshakeFailureReason maps a handshake error to a coarse metrics label.
func handshakeFailureReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrChallengeTimeout):
		return "no_challenge"
	case stderrors.Is(err, errors.ErrAuthenticationFailed):
		return "rejected"
	case stderrors.Is(err, errors.ErrDecodingFailed):
		return "bad_payload"
	default:
		return "other"
	}
}
