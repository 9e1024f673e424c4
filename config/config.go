// Package config loads service configuration from the environment.
//
// A .env file in the working directory is loaded first when present;
// real environment variables always win over it.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	// HTTP ingestion API.
	APIHost string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort int    `env:"API_PORT" envDefault:"8000"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// QueueSize is the bus queue capacity.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"1024"`

	// Discord delivery. An empty webhook URL disables the channel; it is
	// not an error, the service just runs with console output only.
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`
	DiscordUsername   string `env:"DISCORD_USERNAME" envDefault:"Alert Bot"`
	DiscordMaxRetries int    `env:"DISCORD_MAX_RETRIES" envDefault:"3"`

	// DiscordRateRPS throttles outbound webhook posts to this many per
	// second, ahead of whatever the provider enforces. Zero disables the
	// proactive limiter and relies on 429 handling alone.
	DiscordRateRPS   float64 `env:"DISCORD_RATE_RPS" envDefault:"0"`
	DiscordRateBurst int     `env:"DISCORD_RATE_BURST" envDefault:"1"`

	// DedupWindow suppresses identical events within the window on the
	// Discord channel. Zero disables deduplication.
	DedupWindow time.Duration `env:"DEDUP_WINDOW" envDefault:"0s"`

	// Heartbeat liveness pings. Empty URL disables the monitor.
	HeartbeatURL      string        `env:"HEARTBEAT_URL"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"60s"`
}

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("invalid API_PORT %d", cfg.APIPort)
	}
	return cfg, nil
}

// APIAddr returns the listen address for the ingestion API.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// SlogLevel maps the configured log level to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DiscordEnabled reports whether the Discord channel is configured.
func (c *Config) DiscordEnabled() bool {
	return c.DiscordWebhookURL != ""
}

// HeartbeatEnabled reports whether the heartbeat monitor is configured.
func (c *Config) HeartbeatEnabled() bool {
	return c.HeartbeatURL != ""
}
