package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.APIAddr() != "0.0.0.0:8000" {
			t.Errorf("expected default addr 0.0.0.0:8000, got %q", cfg.APIAddr())
		}
		if cfg.QueueSize != 1024 {
			t.Errorf("expected default queue size 1024, got %d", cfg.QueueSize)
		}
		if cfg.DiscordEnabled() {
			t.Error("expected discord disabled without webhook URL")
		}
		if cfg.DiscordRateRPS != 0 {
			t.Errorf("expected proactive rate limit off by default, got %v", cfg.DiscordRateRPS)
		}
		if cfg.HeartbeatEnabled() {
			t.Error("expected heartbeat disabled without URL")
		}
		if cfg.HeartbeatInterval != 60*time.Second {
			t.Errorf("expected 60s heartbeat interval, got %v", cfg.HeartbeatInterval)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("API_HOST", "127.0.0.1")
		t.Setenv("API_PORT", "9090")
		t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/api/webhooks/1/token")
		t.Setenv("DISCORD_MAX_RETRIES", "5")
		t.Setenv("DISCORD_RATE_RPS", "0.5")
		t.Setenv("DISCORD_RATE_BURST", "2")
		t.Setenv("DEDUP_WINDOW", "5m")
		t.Setenv("HEARTBEAT_URL", "https://hc.example/ping/abc")
		t.Setenv("HEARTBEAT_INTERVAL", "30s")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.APIAddr() != "127.0.0.1:9090" {
			t.Errorf("unexpected addr %q", cfg.APIAddr())
		}
		if !cfg.DiscordEnabled() {
			t.Error("expected discord enabled")
		}
		if cfg.DiscordMaxRetries != 5 {
			t.Errorf("expected 5 retries, got %d", cfg.DiscordMaxRetries)
		}
		if cfg.DiscordRateRPS != 0.5 || cfg.DiscordRateBurst != 2 {
			t.Errorf("unexpected rate limit config: %v rps burst %d",
				cfg.DiscordRateRPS, cfg.DiscordRateBurst)
		}
		if cfg.DedupWindow != 5*time.Minute {
			t.Errorf("expected 5m dedup window, got %v", cfg.DedupWindow)
		}
		if !cfg.HeartbeatEnabled() || cfg.HeartbeatInterval != 30*time.Second {
			t.Errorf("unexpected heartbeat config: %q %v", cfg.HeartbeatURL, cfg.HeartbeatInterval)
		}
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		t.Setenv("API_PORT", "70000")
		if _, err := Load(); err == nil {
			t.Error("expected error for out-of-range port")
		}
	})

	t.Run("rejects non-numeric port", func(t *testing.T) {
		t.Setenv("API_PORT", "eight thousand")
		if _, err := Load(); err == nil {
			t.Error("expected error for non-numeric port")
		}
	})
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
