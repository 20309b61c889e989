package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/abeazam/pocketClaw/errors"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "POCKETCLAW"

// maxConfigSize caps how much of a config file is read, as a guard against
// a mistaken path pointing at a huge file.
const maxConfigSize = 1 << 20

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	Client    ClientConfig    `json:"client"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Bridge    BridgeConfig    `json:"bridge"`
	Metrics   MetricsConfig   `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig describes the gateway endpoint and protocol timing.
type ServerConfig struct {
	URL                    string `json:"url"`
	RequestTimeoutSeconds  int    `json:"requestTimeoutSeconds"`
	ChallengeWaitSeconds   int    `json:"challengeWaitSeconds"`
	DialTimeoutSeconds     int    `json:"dialTimeoutSeconds"`
	DialRetryAttempts      int    `json:"dialRetryAttempts"`
}

// RequestTimeout returns the per-request deadline.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ChallengeWait returns the handshake challenge wait window.
func (s ServerConfig) ChallengeWait() time.Duration {
	return time.Duration(s.ChallengeWaitSeconds) * time.Second
}

// DialTimeout returns the websocket dial timeout.
func (s ServerConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutSeconds) * time.Second
}

// AuthConfig carries the handshake credentials. Prefer the environment
// variables POCKETCLAW_TOKEN / POCKETCLAW_PASSWORD over the file so
// credentials stay out of version control.
type AuthConfig struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// ClientConfig is the static client descriptor sent on the handshake.
type ClientConfig struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

// HeartbeatConfig injects the sentinel pattern set. Empty means the
// built-in defaults.
type HeartbeatConfig struct {
	Patterns []string `json:"patterns,omitempty"`
}

// BridgeConfig configures the optional NATS event bridge.
type BridgeConfig struct {
	Enabled       bool     `json:"enabled"`
	NATSURL       string   `json:"natsUrl,omitempty"`
	SubjectPrefix string   `json:"subjectPrefix,omitempty"`
	Events        []string `json:"events,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the baseline configuration. The client id is
// generated so every installation is distinguishable to the server.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			RequestTimeoutSeconds: 30,
			ChallengeWaitSeconds:  10,
			DialTimeoutSeconds:    45,
		},
		Client: ClientConfig{
			ID:          "pocketclaw-" + uuid.NewString()[:8],
			DisplayName: "PocketClaw",
			Version:     "0.1.0",
			Mode:        "chat",
		},
		Bridge: BridgeConfig{
			SubjectPrefix: "pocketclaw.events",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (optional, empty path skips it), then environment overrides. A
// .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "stat config file")
	}
	if info.Size() > maxConfigSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Load",
			fmt.Sprintf("config file exceeds %d bytes", maxConfigSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "read config file")
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_SERVER_URL"); val != "" {
		cfg.Server.URL = val
	}
	if val := os.Getenv(envPrefix + "_TOKEN"); val != "" {
		cfg.Auth.Token = val
	}
	if val := os.Getenv(envPrefix + "_PASSWORD"); val != "" {
		cfg.Auth.Password = val
	}
	if val := os.Getenv(envPrefix + "_CLIENT_ID"); val != "" {
		cfg.Client.ID = val
	}
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.Bridge.NATSURL = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(envPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "server.url must use ws:// or wss://")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "server.requestTimeoutSeconds must be positive")
	}
	if c.Server.ChallengeWaitSeconds <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "server.challengeWaitSeconds must be positive")
	}
	if c.Server.DialRetryAttempts < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "server.dialRetryAttempts cannot be negative")
	}
	if c.Client.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "client.id is required")
	}
	if c.Bridge.Enabled && c.Bridge.NATSURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "bridge.natsUrl is required when the bridge is enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "metrics.port out of range")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	return nil
}

// String returns a JSON representation of the config with credentials
// redacted.
func (c *Config) String() string {
	clone := *c
	if clone.Auth.Token != "" {
		clone.Auth.Token = "***"
	}
	if clone.Auth.Password != "" {
		clone.Auth.Password = "***"
	}
	data, err := json.MarshalIndent(&clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
