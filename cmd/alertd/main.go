// Command alertd runs the notification service: HTTP event ingestion,
// the in-memory bus, console output, and optional Discord delivery.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alertbus/alertbus"
	"github.com/alertbus/alertbus/config"
	"github.com/alertbus/alertbus/discord"
	"github.com/alertbus/alertbus/heartbeat"
	"github.com/alertbus/alertbus/httpapi"
	"github.com/alertbus/alertbus/ratelimit"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := alertbus.NewBus("alertbus",
		alertbus.WithLogger(logger),
		alertbus.WithQueueSize(cfg.QueueSize))

	bus.Register(alertbus.NewConsoleListener(nil))

	if cfg.DiscordEnabled() {
		opts := []discord.Option{
			discord.WithUsername(cfg.DiscordUsername),
			discord.WithMaxRetries(cfg.DiscordMaxRetries),
			discord.WithLogger(logger),
		}
		if cfg.DedupWindow > 0 {
			opts = append(opts, discord.WithFilters(alertbus.NewDedupFilter(cfg.DedupWindow)))
		}
		if cfg.DiscordRateRPS > 0 {
			opts = append(opts, discord.WithRateLimiter(
				ratelimit.NewTokenBucket(cfg.DiscordRateRPS, cfg.DiscordRateBurst)))
		}
		hook, err := discord.New(cfg.DiscordWebhookURL, opts...)
		if err != nil {
			return err
		}
		bus.Register(hook)
	} else {
		logger.Info("discord channel disabled, console output only")
	}

	if err := bus.Start(context.Background()); err != nil {
		return err
	}

	api := httpapi.NewServer(cfg.APIAddr(), bus, httpapi.WithLogger(logger))
	apiErr := make(chan error, 1)
	go func() { apiErr <- api.Start() }()

	if cfg.HeartbeatEnabled() {
		monitor := heartbeat.NewMonitor(cfg.HeartbeatURL,
			heartbeat.WithInterval(cfg.HeartbeatInterval),
			heartbeat.WithLogger(logger))
		go monitor.Run(ctx)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErr:
		if err != nil {
			return err
		}
	}

	// Stop taking new events first, then drain what was accepted.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown incomplete", "error", err)
	}
	if err := bus.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("bus drain incomplete", "error", err)
	}

	logger.Info("service stopped")
	return nil
}
