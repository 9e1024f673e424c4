package alertbus

import "log/slog"

// DefaultQueueSize is the default capacity of the pending-event queue.
var DefaultQueueSize = 1024

// busOptions holds configuration for a bus (unexported)
type busOptions struct {
	logger          *slog.Logger
	queueSize       int
	recoveryEnabled bool
	metricsEnabled  bool
	tracingEnabled  bool
}

// BusOption option function for bus configuration
type BusOption func(*busOptions)

// newBusOptions creates options with defaults and applies provided options
func newBusOptions(opts ...BusOption) *busOptions {
	o := &busOptions{
		logger:          slog.Default(),
		queueSize:       DefaultQueueSize,
		recoveryEnabled: true,
		metricsEnabled:  true,
		tracingEnabled:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the bus
func WithLogger(l *slog.Logger) BusOption {
	return func(o *busOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithQueueSize sets the capacity of the pending-event queue.
// Publishers block once the queue is full rather than dropping events.
func WithQueueSize(n int) BusOption {
	return func(o *busOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithRecovery enables/disables panic recovery around listener handlers.
// Recovery should always be enabled; it can be disabled for testing.
func WithRecovery(v bool) BusOption {
	return func(o *busOptions) {
		o.recoveryEnabled = v
	}
}

// WithMetrics enables/disables OpenTelemetry metrics for the bus
func WithMetrics(v bool) BusOption {
	return func(o *busOptions) {
		o.metricsEnabled = v
	}
}

// WithTracing enables/disables OpenTelemetry tracing for the bus
func WithTracing(v bool) BusOption {
	return func(o *busOptions) {
		o.tracingEnabled = v
	}
}
