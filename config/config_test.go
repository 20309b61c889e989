package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeazam/pocketClaw/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, 10*time.Second, cfg.Server.ChallengeWait())
	assert.Equal(t, 45*time.Second, cfg.Server.DialTimeout())
	assert.NotEmpty(t, cfg.Client.ID)
	assert.Equal(t, "chat", cfg.Client.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Generated client ids must differ between installations.
	assert.NotEqual(t, cfg.Client.ID, DefaultConfig().Client.ID)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"url": "wss://gateway.example.com/ws"},
		"client": {"id": "test-client", "displayName": "Test"},
		"logging": {"level": "debug", "format": "json"}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://gateway.example.com/ws", cfg.Server.URL)
	assert.Equal(t, "test-client", cfg.Client.ID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// File values merge over defaults, not replace them.
	assert.Equal(t, 30, cfg.Server.RequestTimeoutSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POCKETCLAW_SERVER_URL", "ws://env.example.com/ws")
	t.Setenv("POCKETCLAW_TOKEN", "env-token")
	t.Setenv("POCKETCLAW_CLIENT_ID", "env-client")
	t.Setenv("POCKETCLAW_LOG_LEVEL", "warn")
	t.Setenv("POCKETCLAW_METRICS_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://env.example.com/ws", cfg.Server.URL)
	assert.Equal(t, "env-token", cfg.Auth.Token)
	assert.Equal(t, "env-client", cfg.Client.ID)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"url": "ws://file.example.com/ws"},
		"auth": {"token": "file-token"}
	}`), 0o600))

	t.Setenv("POCKETCLAW_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://file.example.com/ws", cfg.Server.URL)
	assert.Equal(t, "env-token", cfg.Auth.Token)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Server.URL = "wss://gateway.example.com/ws"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }},
		{"http url", func(c *Config) { c.Server.URL = "https://example.com" }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeoutSeconds = 0 }},
		{"zero challenge wait", func(c *Config) { c.Server.ChallengeWaitSeconds = 0 }},
		{"negative dial retries", func(c *Config) { c.Server.DialRetryAttempts = -1 }},
		{"missing client id", func(c *Config) { c.Client.ID = "" }},
		{"bridge without nats url", func(c *Config) { c.Bridge.Enabled = true }},
		{"metrics port out of range", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStringRedactsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = "wss://gateway.example.com/ws"
	cfg.Auth.Token = "super-secret"
	cfg.Auth.Password = "hunter2"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "***")
	assert.Contains(t, s, "gateway.example.com")
}
