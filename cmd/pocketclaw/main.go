// Package main implements the pocketClaw command line client: it connects
// to an assistant gateway, sends one prompt, and streams the reconciled
// reply to stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/abeazam/pocketClaw/bridge"
	"github.com/abeazam/pocketClaw/client"
	"github.com/abeazam/pocketClaw/config"
	"github.com/abeazam/pocketClaw/message"
	"github.com/abeazam/pocketClaw/metric"
	"github.com/abeazam/pocketClaw/pkg/retry"
	"github.com/abeazam/pocketClaw/stream"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pocketclaw"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags win over file and environment for logging.
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, metricsServer, err := setupMetrics(cfg)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() { _ = metricsServer.Stop(5 * time.Second) }()
	}

	c, err := buildClient(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	slog.Info("Connecting to gateway", "url", cfg.Server.URL)
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = c.Disconnect() }()

	eventBridge, err := setupBridge(ctx, cfg, c, registry, logger)
	if err != nil {
		return err
	}
	if eventBridge != nil {
		defer func() { _ = eventBridge.Stop() }()
	}

	return chat(ctx, c, cfg, cliCfg, registry)
}

// setupMetrics starts the Prometheus endpoint when enabled. The registry
// is created either way so components can share one.
func setupMetrics(cfg *config.Config) (*metric.MetricsRegistry, *metric.Server, error) {
	registry := metric.NewMetricsRegistry()
	if !cfg.Metrics.Enabled {
		return registry, nil, nil
	}

	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	if err := server.Start(); err != nil {
		return nil, nil, fmt.Errorf("start metrics server: %w", err)
	}
	slog.Info("Metrics endpoint started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	return registry, server, nil
}

func buildClient(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*client.Client, error) {
	opts := []client.ClientOption{
		client.WithClientInfo(client.Info{
			ID:          cfg.Client.ID,
			DisplayName: cfg.Client.DisplayName,
			Version:     cfg.Client.Version,
			Platform:    platformName(cfg),
			Mode:        cfg.Client.Mode,
		}),
		client.WithRequestTimeout(cfg.Server.RequestTimeout()),
		client.WithChallengeWait(cfg.Server.ChallengeWait()),
		client.WithDialTimeout(cfg.Server.DialTimeout()),
		client.WithLogger(logger),
		client.WithMetricsRegistry(registry),
		client.WithStateChangeCallback(func(state client.State, reason string) {
			if reason != "" {
				slog.Warn("Connection state changed", "state", state.String(), "reason", reason)
				return
			}
			slog.Debug("Connection state changed", "state", state.String())
		}),
	}

	if cfg.Auth.Token != "" {
		opts = append(opts, client.WithAuthToken(cfg.Auth.Token))
	} else if cfg.Auth.Password != "" {
		opts = append(opts, client.WithPassword(cfg.Auth.Password))
	}

	if cfg.Server.DialRetryAttempts > 0 {
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = cfg.Server.DialRetryAttempts
		opts = append(opts, client.WithDialRetry(retryCfg))
	}

	return client.NewClient(cfg.Server.URL, opts...)
}

func platformName(cfg *config.Config) string {
	if cfg.Client.Platform != "" {
		return cfg.Client.Platform
	}
	return runtime.GOOS
}

func setupBridge(_ context.Context, cfg *config.Config, c *client.Client, registry *metric.MetricsRegistry, logger *slog.Logger) (*bridge.Bridge, error) {
	if !cfg.Bridge.Enabled {
		return nil, nil
	}

	nc, err := bridge.ConnectNATS(cfg.Bridge.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b, err := bridge.New(c, nc, bridge.Config{
		SubjectPrefix: cfg.Bridge.SubjectPrefix,
		Events:        cfg.Bridge.Events,
	}, bridge.WithLogger(logger), bridge.WithMetricsRegistry(registry))
	if err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("start bridge: %w", err)
	}
	slog.Info("Event bridge started", "nats_url", cfg.Bridge.NATSURL, "prefix", cfg.Bridge.SubjectPrefix)
	return b, nil
}

// chat sends the prompt and streams the reconciled reply to stdout until
// the turn finalizes, the wait times out, or a signal arrives.
func chat(ctx context.Context, c *client.Client, cfg *config.Config, cliCfg *CLIConfig, registry *metric.MetricsRegistry) error {
	key := cliCfg.SessionKey
	if key == "" {
		key = uuid.NewString()
	}

	final := make(chan message.Message, 1)
	streamErr := make(chan string, 1)
	printed := 0

	sessionOpts := []stream.SessionOption{
		stream.OnDraft(func(m message.Message) {
			// Print only the unseen suffix so the reply streams in place.
			if len(m.Content) > printed {
				fmt.Print(m.Content[printed:])
				printed = len(m.Content)
			}
		}),
		stream.OnFinal(func(m message.Message) {
			select {
			case final <- m:
			default:
			}
		}),
		stream.OnStreamError(func(detail string) {
			select {
			case streamErr <- detail:
			default:
			}
		}),
		stream.WithSessionMetrics(registry),
	}
	if len(cfg.Heartbeat.Patterns) > 0 {
		sessionOpts = append(sessionOpts,
			stream.WithHeartbeatFilter(stream.NewHeartbeatFilter(cfg.Heartbeat.Patterns)))
	}

	cv := stream.NewConversation(c, key, sessionOpts...)
	defer cv.Close()

	if err := cv.Send(ctx, cliCfg.Prompt); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}

	select {
	case m := <-final:
		// Anything the draft path did not already print.
		if len(m.Content) > printed {
			fmt.Print(m.Content[printed:])
		}
		fmt.Println()
		if m.Reasoning != "" && cliCfg.ShowReasoning {
			fmt.Printf("\n[reasoning]\n%s\n", m.Reasoning)
		}
		return nil
	case detail := <-streamErr:
		fmt.Println()
		return fmt.Errorf("stream error: %s", detail)
	case <-time.After(cliCfg.WaitTimeout):
		fmt.Println()
		return fmt.Errorf("no reply within %s", cliCfg.WaitTimeout)
	case <-ctx.Done():
		fmt.Println()
		slog.Info("Interrupted")
		return nil
	}
}
