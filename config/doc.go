// Package config loads and validates the application configuration:
// defaults, an optional JSON file, environment overrides, in that order.
// Credentials are expected through the environment (POCKETCLAW_TOKEN or
// POCKETCLAW_PASSWORD), optionally via a .env file.
package config
