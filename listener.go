package alertbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// Listener is a registered handler that conditionally reacts to events.
//
// CanHandle is consulted synchronously by the dispatch loop and must be
// cheap. Handle performs the listener's side effect and runs on its own
// goroutine during fan-out; it must report failures through its error
// return instead of panicking, though the bus recovers panics as a last
// line of defense.
type Listener interface {
	// CanHandle reports whether this listener subscribes to the event.
	CanHandle(ev *Event) bool

	// Handle processes the event. Errors are isolated to this
	// listener/event pair: they are logged by the bus and never affect
	// sibling listeners or the dispatch loop.
	Handle(ctx context.Context, ev *Event) error

	// Name returns a stable identity used for logs and diagnostics.
	Name() string
}

// Filter is an additional predicate applied by a Subscription after the
// event-type allow-list.
type Filter interface {
	// Keep reports whether the event passes the filter.
	Keep(ev *Event) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ev *Event) bool

func (f FilterFunc) Keep(ev *Event) bool { return f(ev) }

// PriorityFilter keeps events at or above a minimum priority.
type PriorityFilter struct {
	Min Priority
}

func (f PriorityFilter) Keep(ev *Event) bool {
	return ev.Priority >= f.Min
}

// Subscription describes which events a listener accepts: an event-type
// allow-list and an AND-combined filter chain. The zero value accepts
// everything. Concrete listeners embed Subscription and delegate
// CanHandle to Matches.
type Subscription struct {
	// Types is the event-type allow-list. Empty means all types.
	Types []string

	// Filters are applied in order; all must keep the event.
	Filters []Filter
}

// Matches reports whether the event passes the type allow-list and every
// filter in the chain.
func (s *Subscription) Matches(ev *Event) bool {
	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range s.Filters {
		if !f.Keep(ev) {
			return false
		}
	}
	return true
}

// DedupFilter suppresses repeats of an identical alert (same event type and
// data) within a time window. Useful in front of outward delivery channels
// to stop a flapping producer from spamming a channel.
//
// Unlike most filters DedupFilter is stateful: keeping an event records it,
// so the filter should be attached to exactly one listener.
type DedupFilter struct {
	mu      sync.Mutex
	seen    map[uint64]time.Time
	window  time.Duration
	maxSize int
}

// NewDedupFilter creates a dedup filter with the given suppression window.
// A non-positive window defaults to 5 minutes. At most 10000 distinct
// alerts are remembered; when full, expired then arbitrary entries are
// evicted.
func NewDedupFilter(window time.Duration) *DedupFilter {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &DedupFilter{
		seen:    make(map[uint64]time.Time),
		window:  window,
		maxSize: 10000,
	}
}

// Keep reports whether the event is the first occurrence of its content
// within the window, and records it if so.
func (f *DedupFilter) Keep(ev *Event) bool {
	key := contentHash(ev)
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if at, ok := f.seen[key]; ok && now.Sub(at) <= f.window {
		return false
	}

	if len(f.seen) >= f.maxSize {
		for k, at := range f.seen {
			if now.Sub(at) > f.window {
				delete(f.seen, k)
			}
		}
		// Still full: evict arbitrary entries to make room.
		for k := range f.seen {
			if len(f.seen) < f.maxSize {
				break
			}
			delete(f.seen, k)
		}
	}

	f.seen[key] = now
	return true
}

// contentHash hashes the event type and data with deterministic key order.
func contentHash(ev *Event) uint64 {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	h.Write([]byte(ev.Type))
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, ev.Data[k])
	}
	return h.Sum64()
}
