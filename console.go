package alertbus

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ConsoleListener prints events to a writer. Intended for local runs and
// smoke testing; it subscribes to everything by default.
type ConsoleListener struct {
	Subscription

	mu sync.Mutex
	w  io.Writer
}

// NewConsoleListener creates a console listener writing to w.
// A nil writer defaults to os.Stdout.
func NewConsoleListener(w io.Writer) *ConsoleListener {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleListener{w: w}
}

// Name returns the listener name.
func (c *ConsoleListener) Name() string {
	return "console"
}

// CanHandle reports whether the event matches the subscription.
func (c *ConsoleListener) CanHandle(ev *Event) bool {
	return c.Matches(ev)
}

// Handle prints the event as a readable block.
func (c *ConsoleListener) Handle(_ context.Context, ev *Event) error {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&sb, "\n%s\n", rule)
	fmt.Fprintf(&sb, "[%s] %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(ev.Type))
	fmt.Fprintf(&sb, "Priority: %s\n", ev.Priority)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %v\n", k, ev.Data[k])
	}
	fmt.Fprintf(&sb, "Should Notify: %t\n", ev.ShouldNotify())
	fmt.Fprintf(&sb, "%s\n", rule)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, sb.String())
	return err
}
