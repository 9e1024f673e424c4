package discord

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alertbus/alertbus"
	"github.com/alertbus/alertbus/ratelimit"
)

// Defaults for the webhook sender.
var (
	DefaultUsername    = "Alert Bot"
	DefaultMaxRetries  = 3
	DefaultTimeout     = 10 * time.Second
	DefaultBackoffBase = 1 * time.Second
)

// options holds configuration for a webhook sender (unexported)
type options struct {
	name        string
	username    string
	maxRetries  int
	backoffBase time.Duration
	client      *http.Client
	limiter     ratelimit.Limiter
	breaker     *alertbus.CircuitBreaker
	logger      *slog.Logger
	types       []string
	filters     []alertbus.Filter
}

// Option option function for webhook configuration
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		name:        "discord-webhook",
		username:    DefaultUsername,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithName sets the listener name used in logs.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithUsername sets the bot username shown on webhook messages.
func WithUsername(username string) Option {
	return func(o *options) {
		if username != "" {
			o.username = username
		}
	}
}

// WithMaxRetries sets the number of delivery attempts for transient
// failures. Non-positive values keep the default.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoffBase sets the base unit for exponential backoff between
// attempts. Mostly useful to shorten waits in tests.
func WithBackoffBase(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.backoffBase = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithRateLimiter sets a proactive outbound rate limiter, applied before
// every delivery attempt.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithCircuitBreaker guards delivery with a circuit breaker: while open,
// Handle fails fast without any network call.
func WithCircuitBreaker(cb *alertbus.CircuitBreaker) Option {
	return func(o *options) {
		o.breaker = cb
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventTypes sets the event-type allow-list. Empty means all types.
func WithEventTypes(types ...string) Option {
	return func(o *options) {
		o.types = types
	}
}

// WithFilters appends filters to the subscription chain.
func WithFilters(filters ...alertbus.Filter) Option {
	return func(o *options) {
		o.filters = append(o.filters, filters...)
	}
}
