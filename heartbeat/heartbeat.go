// Package heartbeat pings an external liveness endpoint at an interval.
//
// Services such as healthchecks.io or an uptime monitor expose a URL that
// expects a periodic GET; a missed ping raises an alert. The monitor is
// fire-and-forget: a failed ping is logged and the loop keeps going.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 60 * time.Second

// Monitor periodically GETs a ping URL until its context is cancelled.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the ping interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) {
		if c != nil {
			m.client = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor for the given ping URL.
func NewMonitor(url string, opts ...Option) *Monitor {
	m := &Monitor{
		url:      url,
		interval: DefaultInterval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "heartbeat")
	return m
}

// Run pings immediately, then at every interval, until ctx is cancelled.
// It always returns ctx.Err(); ping failures never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("heartbeat started", "url", m.url, "interval", m.interval)

	m.ping(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ping(ctx)
		case <-ctx.Done():
			m.logger.Info("heartbeat stopped")
			return ctx.Err()
		}
	}
}

func (m *Monitor) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.logger.Warn("heartbeat ping failed", "error", err)
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("heartbeat ping failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		m.logger.Warn("heartbeat ping failed", "error", fmt.Errorf("status %d", resp.StatusCode))
		return
	}
	m.logger.Debug("heartbeat ping ok", "status", resp.StatusCode)
}
