package alertbus

import (
	"context"
	"sync"
	"time"
)

// TestBus creates a bus configured for testing: small queue, recovery on,
// tracing and metrics off.
func TestBus(opts ...BusOption) *Bus {
	base := []BusOption{
		WithQueueSize(64),
		WithMetrics(false),
		WithTracing(false),
	}
	return NewBus("test-bus", append(base, opts...)...)
}

// RecordingListener records every event it handles. Useful for asserting
// what reached a listener during a test.
type RecordingListener struct {
	Subscription

	name string

	mu     sync.Mutex
	events []*Event
	err    error
	delay  time.Duration
}

// NewRecordingListener creates a listener that accepts everything and
// records handled events.
func NewRecordingListener(name string) *RecordingListener {
	return &RecordingListener{name: name}
}

func (l *RecordingListener) Name() string { return l.name }

func (l *RecordingListener) CanHandle(ev *Event) bool { return l.Matches(ev) }

func (l *RecordingListener) Handle(ctx context.Context, ev *Event) error {
	l.mu.Lock()
	delay := l.delay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return l.err
}

// Fail makes every subsequent Handle call return err.
func (l *RecordingListener) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Delay makes every subsequent Handle call sleep for d before recording.
func (l *RecordingListener) Delay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

// Events returns a copy of all recorded events in handling order.
func (l *RecordingListener) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// Count returns the number of events handled so far.
func (l *RecordingListener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Last returns the most recently handled event, or nil.
func (l *RecordingListener) Last() *Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	return l.events[len(l.events)-1]
}

// Reset clears all recorded events.
func (l *RecordingListener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// WaitFor polls until the listener has handled at least n events or the
// timeout elapses. Returns true if the count was reached.
func (l *RecordingListener) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if l.Count() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// PanickingListener panics on every Handle call. Useful for testing the
// bus's panic isolation.
type PanickingListener struct {
	Subscription
	name string
}

// NewPanickingListener creates a listener that always panics.
func NewPanickingListener(name string) *PanickingListener {
	return &PanickingListener{name: name}
}

func (l *PanickingListener) Name() string { return l.name }

func (l *PanickingListener) CanHandle(ev *Event) bool { return l.Matches(ev) }

func (l *PanickingListener) Handle(context.Context, *Event) error {
	panic("listener exploded")
}

// BlockingListener blocks in Handle until released. Useful for testing
// in-flight dispatch behavior such as Stop waiting for fan-out completion.
type BlockingListener struct {
	Subscription

	name string

	mu      sync.Mutex
	blockCh chan struct{}
	entered chan struct{}
	count   int
}

// NewBlockingListener creates a listener whose Handle blocks until
// Release is called.
func NewBlockingListener(name string) *BlockingListener {
	return &BlockingListener{
		name:    name,
		blockCh: make(chan struct{}),
		entered: make(chan struct{}, 64),
	}
}

func (l *BlockingListener) Name() string { return l.name }

func (l *BlockingListener) CanHandle(ev *Event) bool { return l.Matches(ev) }

func (l *BlockingListener) Handle(ctx context.Context, ev *Event) error {
	l.mu.Lock()
	ch := l.blockCh
	l.mu.Unlock()

	select {
	case l.entered <- struct{}{}:
	default:
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	l.count++
	l.mu.Unlock()
	return nil
}

// Entered returns a channel that receives a token each time Handle is
// entered, before it blocks.
func (l *BlockingListener) Entered() <-chan struct{} {
	return l.entered
}

// Release unblocks all current and future Handle calls.
func (l *BlockingListener) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.blockCh:
	default:
		close(l.blockCh)
	}
}

// Completed returns how many Handle calls have finished.
func (l *BlockingListener) Completed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
