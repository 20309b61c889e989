package client

import (
	"log/slog"
	"time"

	"github.com/abeazam/pocketClaw/errors"
	"github.com/abeazam/pocketClaw/metric"
	"github.com/abeazam/pocketClaw/pkg/retry"
)

// AuthConfig holds the handshake credentials. Exactly one of Token or
// Password is sent; Token wins when both are configured.
type AuthConfig struct {
	Token    string
	Password string
}

// Info is the static client descriptor sent during the handshake.
type Info struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

// StateChangeCallback observes connection state transitions. reason is
// non-empty only for StateError.
type StateChangeCallback func(state State, reason string)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithAuthToken sets the handshake token credential.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) error {
		c.auth.Token = token
		return nil
	}
}

// WithPassword sets the handshake password credential.
func WithPassword(password string) ClientOption {
	return func(c *Client) error {
		c.auth.Password = password
		return nil
	}
}

// WithClientInfo sets the static client descriptor sent during the handshake.
func WithClientInfo(info Info) ClientOption {
	return func(c *Client) error {
		if info.ID == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithClientInfo", "client id cannot be empty")
		}
		c.info = info
		return nil
	}
}

// WithRequestTimeout sets the default per-request response deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithRequestTimeout", "timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithChallengeWait sets how long the handshake waits for the server's
// connect.challenge event before failing.
func WithChallengeWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithChallengeWait", "wait must be positive")
		}
		c.challengeWait = d
		return nil
	}
}

// WithChallengePollInterval sets the sleep between challenge checks. The
// challenge wait polls because it awaits a side-effecting event rather
// than a request/response pair.
func WithChallengePollInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithChallengePollInterval", "interval must be positive")
		}
		c.challengePoll = d
		return nil
	}
}

// WithDialTimeout sets the websocket dial handshake timeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.dialTimeout = d
		return nil
	}
}

// WithDialRetry enables retrying the websocket dial with backoff before
// the connection is declared failed.
func WithDialRetry(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		c.dialRetry = &cfg
		return nil
	}
}

// WithLogger sets a custom structured logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetricsRegistry enables Prometheus metrics for the client.
// Without a registry the client records nothing.
func WithMetricsRegistry(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}

// WithStateChangeCallback sets a callback invoked on every connection
// state transition.
func WithStateChangeCallback(fn StateChangeCallback) ClientOption {
	return func(c *Client) error {
		c.onStateChange = fn
		return nil
	}
}
