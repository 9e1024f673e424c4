package alertbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RunState is the lifecycle state of a bus.
type RunState int32

const (
	// RunStateStopped means the dispatch loop is not running. This is
	// both the initial state and the final state after draining.
	RunStateStopped RunState = iota
	// RunStateRunning means the dispatch loop is consuming the queue.
	RunStateRunning
	// RunStateDraining means Stop was requested: the loop keeps
	// consuming until the queue is empty, but new publishes are
	// rejected.
	RunStateDraining
)

func (s RunState) String() string {
	switch s {
	case RunStateStopped:
		return "stopped"
	case RunStateRunning:
		return "running"
	case RunStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the bus, suitable for health
// endpoints and monitoring dashboards.
type Status struct {
	State     string `json:"state"`
	Pending   int    `json:"pending"`
	Listeners int    `json:"listeners"`
}

// Bus routes published events to registered listeners.
//
// A bus runs a single dispatch loop: events are consumed from the queue
// strictly in publish order (FIFO), and each event is fully fanned out to
// all matching listeners before the next event is dequeued. Fan-out within
// one dispatch cycle is concurrent across listeners; there is no pipelining
// across events. Priority never reorders the queue; it only affects
// notification content and decisioning. This is intentional.
//
// The bus is purely in-memory and at-most-once: a crash between dequeue and
// fan-out completion loses that event's remaining deliveries. This is a
// best-effort notification system, not a guaranteed-delivery log.
type Bus struct {
	name  string
	state int32

	queue     chan *Event
	listeners []Listener
	mu        sync.RWMutex

	drain    chan struct{}
	done     chan struct{}
	started  int32
	stopOnce sync.Once

	logger          *slog.Logger
	recoveryEnabled bool
	metricsEnabled  bool
	tracingEnabled  bool

	tracer     trace.Tracer
	published  metric.Int64Counter
	dispatched metric.Int64Counter
	failed     metric.Int64Counter
	unmatched  metric.Int64Counter
}

// NewBus creates a new event bus. The bus does not consume events until
// Start is called.
func NewBus(name string, opts ...BusOption) *Bus {
	o := newBusOptions(opts...)

	if name == "" {
		name = "alertbus"
	}

	meter := otel.Meter(name)
	published, _ := meter.Int64Counter("bus.events.published",
		metric.WithDescription("Total number of events published"))
	dispatched, _ := meter.Int64Counter("bus.events.dispatched",
		metric.WithDescription("Total number of events dispatched to listeners"))
	failed, _ := meter.Int64Counter("bus.listener.failures",
		metric.WithDescription("Total number of failed listener invocations"))
	unmatched, _ := meter.Int64Counter("bus.events.unmatched",
		metric.WithDescription("Total number of events no listener handled"))

	return &Bus{
		name:            name,
		queue:           make(chan *Event, o.queueSize),
		drain:           make(chan struct{}),
		done:            make(chan struct{}),
		logger:          o.logger.With("component", "bus>"+name),
		recoveryEnabled: o.recoveryEnabled,
		metricsEnabled:  o.metricsEnabled,
		tracingEnabled:  o.tracingEnabled,
		tracer:          otel.Tracer(name),
		published:       published,
		dispatched:      dispatched,
		failed:          failed,
		unmatched:       unmatched,
	}
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// State returns the current run state.
func (b *Bus) State() RunState {
	return RunState(atomic.LoadInt32(&b.state))
}

// Pending returns the number of events waiting in the queue.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Status returns a snapshot of the bus state for monitoring.
func (b *Bus) Status() Status {
	return Status{
		State:     b.State().String(),
		Pending:   b.Pending(),
		Listeners: b.ListenerCount(),
	}
}

// Register adds a listener to the bus. Safe to call while the dispatch
// loop is running: the change takes effect from the next dispatch cycle
// and never alters a cycle already in progress.
func (b *Bus) Register(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
	b.logger.Info("registered listener", "listener", l.Name())
}

// Unregister removes a previously registered listener. Like Register, the
// change takes effect from the next dispatch cycle.
func (b *Bus) Unregister(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	for i, cur := range b.listeners {
		if cur == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			b.mu.Unlock()
			b.logger.Info("unregistered listener", "listener", l.Name())
			return
		}
	}
	b.mu.Unlock()
}

// Start launches the dispatch loop. Returns ErrBusAlreadyRunning if the
// bus was already started. The context bounds the whole life of the loop:
// cancelling it aborts dispatch immediately without draining; use Stop for
// a graceful drain.
func (b *Bus) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.started, 0, 1) {
		return ErrBusAlreadyRunning
	}
	atomic.StoreInt32(&b.state, int32(RunStateRunning))
	go b.run(ctx)
	b.logger.Info("bus started")
	return nil
}

// Publish enqueues an event for dispatch. Safe to call concurrently from
// any goroutine. Publishing only fails when the bus cannot accept events:
// before Start, after Stop, or while draining — nothing that happens inside
// dispatch ever propagates back to the publisher.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	switch b.State() {
	case RunStateRunning:
	case RunStateDraining:
		return ErrBusDraining
	default:
		return ErrBusNotRunning
	}

	if b.tracingEnabled {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, fmt.Sprintf("%s.publish", ev.Type),
			trace.WithAttributes(
				attribute.String("event.id", ev.ID),
				attribute.String("event.type", ev.Type),
				attribute.String("event.priority", ev.Priority.String())),
			trace.WithSpanKind(trace.SpanKindProducer))
		defer span.End()
	}

	select {
	case b.queue <- ev:
	case <-b.done:
		return ErrBusNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	if b.metricsEnabled {
		b.published.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", ev.Type)))
	}
	b.logger.Debug("published event", "event_type", ev.Type, "event_id", ev.ID)
	return nil
}

// Stop drains the bus and waits for the dispatch loop to exit: the queue
// is emptied and the in-flight dispatch cycle, if any, runs to natural
// completion — Stop never cancels a fan-out halfway. New publishes are
// rejected as soon as draining begins, which bounds shutdown time.
// Idempotent: concurrent and repeated calls all wait for the same drain.
func (b *Bus) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&b.started) == 0 {
		return nil
	}
	b.stopOnce.Do(func() {
		atomic.CompareAndSwapInt32(&b.state, int32(RunStateRunning), int32(RunStateDraining))
		close(b.drain)
		b.logger.Info("bus draining", "pending", b.Pending())
	})
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the dispatch loop. Single consumer: no concurrent dequeuing.
func (b *Bus) run(ctx context.Context) {
	defer func() {
		atomic.StoreInt32(&b.state, int32(RunStateStopped))
		if ctx.Err() == nil {
			// A publisher that passed the state check can still win the
			// enqueue race while the loop is exiting; sweep those so an
			// accepted publish is never silently dropped. A cancelled
			// context skips this: cancellation aborts without draining.
			b.sweep(ctx)
		}
		close(b.done)
		b.logger.Info("bus stopped")
	}()

	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		case <-b.drain:
			b.sweep(ctx)
			return
		case <-ctx.Done():
			b.logger.Warn("bus context cancelled, aborting dispatch", "pending", b.Pending())
			return
		}
	}
}

// sweep dispatches whatever is queued right now and returns once the
// queue is empty.
func (b *Bus) sweep(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		default:
			return
		}
	}
}

// dispatch runs one dispatch cycle: snapshot listeners, fan out the event
// to every matching listener concurrently, and wait for all of them before
// returning. Failures are collected per listener and logged; they never
// cancel siblings or abort the loop.
func (b *Bus) dispatch(ctx context.Context, ev *Event) {
	if b.tracingEnabled {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, fmt.Sprintf("%s.dispatch", ev.Type),
			trace.WithAttributes(
				attribute.String("event.id", ev.ID),
				attribute.String("event.type", ev.Type)),
			trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
	}

	b.mu.RLock()
	snapshot := make([]Listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	matched := snapshot[:0:0]
	for _, l := range snapshot {
		if l.CanHandle(ev) {
			matched = append(matched, l)
		}
	}

	if len(matched) == 0 {
		b.logger.Warn("no listeners handled event", "event_type", ev.Type)
		if b.metricsEnabled {
			b.unmatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", ev.Type)))
		}
		return
	}

	results := make([]error, len(matched))
	var wg sync.WaitGroup
	for i, l := range matched {
		wg.Add(1)
		go func(i int, l Listener) {
			defer wg.Done()
			results[i] = b.invoke(ctx, l, ev)
		}(i, l)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			b.logger.Error("listener failed",
				"listener", matched[i].Name(),
				"event_type", ev.Type,
				"error", err)
			if b.metricsEnabled {
				b.failed.Add(ctx, 1, metric.WithAttributes(
					attribute.String("event.type", ev.Type),
					attribute.String("listener", matched[i].Name())))
			}
		}
	}

	if b.metricsEnabled {
		b.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", ev.Type)))
	}
}

// invoke calls a single listener, converting panics into errors so one
// faulty listener can never take down the bus or its siblings.
func (b *Bus) invoke(ctx context.Context, l Listener, ev *Event) (err error) {
	if b.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("listener panicked",
					"listener", l.Name(),
					"event_type", ev.Type,
					"panic", r,
					"stack", string(debug.Stack()))
				err = fmt.Errorf("listener %s panicked: %v", l.Name(), r)
			}
		}()
	}
	return l.Handle(ctx, ev)
}
