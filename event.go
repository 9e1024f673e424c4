package alertbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the severity of an event, ordered ascending.
// It affects notification content and decisioning only; the bus never
// reorders the queue based on priority.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the canonical upper-case name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParsePriority parses a priority name, case-insensitively.
// Parsing never fails: unknown or empty values degrade to PriorityMedium
// so that a malformed priority can never reject an otherwise valid event.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow
	case "MEDIUM":
		return PriorityMedium
	case "HIGH":
		return PriorityHigh
	case "CRITICAL":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// MarshalJSON encodes the priority as its name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a priority name, degrading to MEDIUM on unknown values.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = ParsePriority(s)
	return nil
}

// Event is an immutable record of something that happened.
//
// Events are constructed once at ingestion and must not be mutated
// afterwards: ownership passes from the publisher to the bus via the queue,
// and listeners only observe the event during dispatch.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event kind. The set of types is open: any
	// non-empty string is valid, no registration is required.
	Type string `json:"event_type"`

	// Timestamp is the creation instant, assigned by New.
	Timestamp time.Time `json:"timestamp"`

	// Data is the event payload. Values may be numbers or formatted
	// strings such as "+5.3%" or "$45,230.50"; see Rule for how they
	// are coerced during notification decisioning.
	Data map[string]any `json:"data"`

	// Priority is the event severity. Defaults to PriorityMedium.
	Priority Priority `json:"priority"`

	// Rule controls whether delivery channels should emit an outward
	// notification for this event. Nil means "always notify".
	Rule *Rule `json:"notify_threshold,omitempty"`

	// Metadata carries optional additional context, not shown in
	// notifications.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EventOption configures an event at construction time.
type EventOption func(*Event)

// WithPriority sets the event priority.
func WithPriority(p Priority) EventOption {
	return func(e *Event) {
		e.Priority = p
	}
}

// WithRule sets the notification rule for the event.
func WithRule(r *Rule) EventOption {
	return func(e *Event) {
		e.Rule = r
	}
}

// WithEventMetadata sets the event metadata.
func WithEventMetadata(m map[string]string) EventOption {
	return func(e *Event) {
		e.Metadata = m
	}
}

// New creates an event of the given type.
// Returns ErrEmptyEventType if eventType is empty; this is the only way
// event construction can fail. A nil data map is replaced by an empty one.
func New(eventType string, data map[string]any, opts ...EventOption) (*Event, error) {
	if eventType == "" {
		return nil, ErrEmptyEventType
	}
	if data == nil {
		data = make(map[string]any)
	}
	e := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Priority:  PriorityMedium,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ShouldNotify reports whether delivery channels should emit an outward
// notification for this event, per the event's rule. A nil rule means yes.
func (e *Event) ShouldNotify() bool {
	return e.Rule.ShouldNotify(e.Data)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s at %s - Priority: %s", e.Type, e.Timestamp.Format(time.RFC3339), e.Priority)
}
