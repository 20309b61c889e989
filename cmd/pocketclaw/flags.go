package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath    string
	LogLevel      string
	LogFormat     string
	Prompt        string
	SessionKey    string
	WaitTimeout   time.Duration
	ShowReasoning bool
	ShowVersion   bool
	ShowHelp      bool
	Validate      bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("POCKETCLAW_CONFIG", ""),
		"Path to configuration file (env: POCKETCLAW_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (overrides config)")

	flag.StringVar(&cfg.Prompt, "prompt", "",
		"Message to send to the assistant")

	flag.StringVar(&cfg.SessionKey, "session", "",
		"Conversation key to continue; a new one is generated when empty")

	flag.DurationVar(&cfg.WaitTimeout, "wait", 2*time.Minute,
		"How long to wait for the full reply")

	flag.BoolVar(&cfg.ShowReasoning, "reasoning", false,
		"Print the assistant's reasoning after the reply, when present")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if !cfg.Validate && cfg.Prompt == "" {
		return fmt.Errorf("a prompt is required (use -prompt)")
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - assistant gateway chat client

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Send a prompt using config from the environment
  export POCKETCLAW_SERVER_URL=wss://gateway.example.com/ws
  export POCKETCLAW_TOKEN=...
  %s -prompt "hello"

  # Continue a conversation with a config file
  %s -config=config.json -session=standup -prompt "what changed?"

  # Validate configuration only
  %s -config=config.json -validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
