// Package ratelimit provides local rate limiting for outbound delivery.
//
// Delivery channels use a rate limiter to smooth the rate at which
// notifications are pushed to a provider, instead of bursting until the
// provider answers 429. The limiter is a token bucket built on
// golang.org/x/time/rate:
//
//   - Tokens are added at the configured rate (rps)
//   - A maximum of 'burst' tokens can accumulate
//   - Each delivery attempt consumes one token
//
// Basic usage:
//
//	// 1 notification/second with burst of 5
//	limiter := ratelimit.NewTokenBucket(1, 5)
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // context cancelled
//	}
//	// perform delivery
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the interface for rate limiters.
//
// All implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if an event can happen right now.
	// This is a non-blocking check.
	Allow(ctx context.Context) bool

	// Wait blocks until an event is allowed or context is cancelled.
	// Returns context.Canceled or context.DeadlineExceeded if cancelled.
	Wait(ctx context.Context) error

	// Reserve returns a reservation for a future event.
	// The caller can check Delay() to know when the event can happen.
	Reserve(ctx context.Context) Reservation
}

// Reservation represents a rate limit reservation.
type Reservation interface {
	// OK returns whether the reservation was successful.
	OK() bool

	// Delay returns how long to wait before the event can happen.
	// Returns 0 if the event can happen immediately.
	Delay() time.Duration

	// Cancel cancels the reservation, returning its token.
	// Should be called if the event won't happen.
	Cancel()
}

// TokenBucket implements a local, in-memory token bucket rate limiter.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a new token bucket rate limiter.
//
// Parameters:
//   - rps: events per second (rate at which tokens are added)
//   - burst: maximum tokens that can accumulate
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow returns true if an event can happen right now.
// Consumes one token if available.
func (t *TokenBucket) Allow(ctx context.Context) bool {
	return t.limiter.Allow()
}

// Wait blocks until an event is allowed or context is cancelled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Reserve returns a reservation for a future event.
func (t *TokenBucket) Reserve(ctx context.Context) Reservation {
	return &tokenBucketReservation{r: t.limiter.Reserve()}
}

// SetLimit updates the rate limit dynamically.
func (t *TokenBucket) SetLimit(rps float64) {
	t.limiter.SetLimit(rate.Limit(rps))
}

// SetBurst updates the burst size dynamically.
func (t *TokenBucket) SetBurst(burst int) {
	t.limiter.SetBurst(burst)
}

// Limit returns the current rate limit (events per second).
func (t *TokenBucket) Limit() float64 {
	return float64(t.limiter.Limit())
}

// Burst returns the current burst size.
func (t *TokenBucket) Burst() int {
	return t.limiter.Burst()
}

type tokenBucketReservation struct {
	r *rate.Reservation
}

func (r *tokenBucketReservation) OK() bool {
	return r.r.OK()
}

func (r *tokenBucketReservation) Delay() time.Duration {
	return r.r.Delay()
}

func (r *tokenBucketReservation) Cancel() {
	r.r.Cancel()
}

// Compile-time check
var _ Limiter = (*TokenBucket)(nil)
