package alertbus

import (
	"errors"
	"fmt"
)

// Bus errors
var (
	// ErrBusNotRunning is returned by Publish when the bus has not been
	// started or has fully stopped.
	ErrBusNotRunning = errors.New("bus is not running")

	// ErrBusDraining is returned by Publish once Stop has been requested.
	// Rejecting new publishes while draining bounds shutdown time.
	ErrBusDraining = errors.New("bus is draining")

	// ErrBusAlreadyRunning is returned by Start if the bus was already
	// started.
	ErrBusAlreadyRunning = errors.New("bus is already running")

	// ErrNilEvent is returned by Publish for a nil event.
	ErrNilEvent = errors.New("event is nil")

	// ErrEmptyEventType is returned by New when the event type is empty.
	// This is the only construction error: an event type is an open set
	// and needs no registration beyond being non-empty.
	ErrEmptyEventType = errors.New("event type is empty")
)

// DeliveryError describes a failed delivery for one listener/event pair.
// The failure is isolated: it never affects sibling listeners.
type DeliveryError struct {
	Listener  string
	EventType string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed for event %q: %v", e.Listener, e.EventType, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError checks if an error is a delivery failure.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// RetryExhaustedError indicates all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error indicates retry exhaustion.
func IsRetryExhausted(err error) bool {
	var exhausted *RetryExhaustedError
	return errors.As(err, &exhausted)
}

// CircuitOpenError indicates a delivery channel's circuit breaker is open
// and the attempt was rejected without any network call.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsCircuitOpen checks if an error indicates an open circuit breaker.
func IsCircuitOpen(err error) bool {
	var circuitErr *CircuitOpenError
	return errors.As(err, &circuitErr)
}
