// Package alertbus provides an in-memory event bus with queued FIFO
// dispatch, per-listener subscription filtering and threshold-based
// notification decisioning.
//
// Events are typed records carrying a data payload, a priority and an
// optional notification rule. Publishers enqueue events on a Bus; a single
// dispatch loop consumes the queue in order and fans each event out
// concurrently to every registered listener whose subscription matches.
// One event is fully dispatched before the next begins.
//
// Basic usage:
//
//	bus := alertbus.NewBus("alerts")
//	bus.Register(alertbus.NewConsoleListener(nil))
//
//	if err := bus.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Stop(context.Background())
//
//	threshold := 2.0
//	ev, err := alertbus.New("price_alert",
//	    map[string]any{"symbol": "BTC/USDT", "change": "+5.3%"},
//	    alertbus.WithPriority(alertbus.PriorityHigh),
//	    alertbus.WithRule(&alertbus.Rule{Field: "change", AbsGTE: &threshold}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bus.Publish(ctx, ev)
//
// Listeners implement CanHandle/Handle/Name. Concrete listeners embed
// Subscription for the event-type allow-list and filter chain, and only
// implement the side effect:
//
//	type myListener struct {
//	    alertbus.Subscription
//	}
//
//	func (l *myListener) Name() string                  { return "my-listener" }
//	func (l *myListener) CanHandle(ev *alertbus.Event) bool { return l.Matches(ev) }
//	func (l *myListener) Handle(ctx context.Context, ev *alertbus.Event) error {
//	    ...
//	}
//
// A listener failure is isolated to that listener/event pair: it is logged
// with the listener name and event type, and never affects sibling
// listeners or the dispatch loop.
//
// Bus options:
//   - WithLogger: set the slog logger.
//   - WithQueueSize: capacity of the pending queue. Default 1024.
//   - WithRecovery: panic recovery around listeners. Default on.
//   - WithMetrics, WithTracing: OpenTelemetry instrumentation. Default on.
//
// Shutdown: Stop transitions the bus to draining, rejects new publishes,
// lets the queue empty and the in-flight fan-out complete, then stops.
// There is no persistence and no replay; delivery is at-most-once.
package alertbus
