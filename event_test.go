package alertbus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		ev, err := New("price_alert", map[string]any{"symbol": "AAPL"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if ev.ID == "" {
			t.Error("expected generated ID")
		}
		if ev.Priority != PriorityMedium {
			t.Errorf("expected MEDIUM default, got %v", ev.Priority)
		}
		if ev.Rule != nil {
			t.Error("expected nil rule by default")
		}
		if time.Since(ev.Timestamp) > time.Minute {
			t.Errorf("timestamp not recent: %v", ev.Timestamp)
		}
	})

	t.Run("empty type rejected", func(t *testing.T) {
		_, err := New("", nil)
		if !errors.Is(err, ErrEmptyEventType) {
			t.Errorf("expected ErrEmptyEventType, got %v", err)
		}
	})

	t.Run("nil data becomes empty map", func(t *testing.T) {
		ev, err := New("ping", nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if ev.Data == nil {
			t.Error("expected non-nil data map")
		}
	})

	t.Run("options apply", func(t *testing.T) {
		rule := &Rule{Always: true}
		ev, err := New("deploy", nil,
			WithPriority(PriorityCritical),
			WithRule(rule),
			WithEventMetadata(map[string]string{"source": "ci"}))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if ev.Priority != PriorityCritical {
			t.Errorf("expected CRITICAL, got %v", ev.Priority)
		}
		if ev.Rule != rule {
			t.Error("expected rule to be set")
		}
		if ev.Metadata["source"] != "ci" {
			t.Errorf("unexpected metadata: %v", ev.Metadata)
		}
	})

	t.Run("unique IDs", func(t *testing.T) {
		a, _ := New("x", nil)
		b, _ := New("x", nil)
		if a.ID == b.ID {
			t.Error("expected distinct IDs")
		}
	})
}

func TestEventShouldNotify(t *testing.T) {
	ev, _ := New("price_alert", map[string]any{"change_percent": "+5.3%"})
	if !ev.ShouldNotify() {
		t.Error("nil rule should notify")
	}

	ev.Rule = &Rule{Field: "change_percent", AbsGTE: f(10)}
	if ev.ShouldNotify() {
		t.Error("5.3 against abs_gte 10 should not notify")
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"LOW":      PriorityLow,
		"low":      PriorityLow,
		" medium ": PriorityMedium,
		"High":     PriorityHigh,
		"CRITICAL": PriorityCritical,
		"":         PriorityMedium,
		"urgent":   PriorityMedium,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPriorityJSON(t *testing.T) {
	b, err := json.Marshal(PriorityHigh)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"HIGH"` {
		t.Errorf("expected \"HIGH\", got %s", b)
	}

	var p Priority
	if err := json.Unmarshal([]byte(`"critical"`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p != PriorityCritical {
		t.Errorf("expected CRITICAL, got %v", p)
	}

	// Unknown names degrade instead of failing.
	if err := json.Unmarshal([]byte(`"whatever"`), &p); err != nil {
		t.Fatalf("unmarshal unknown: %v", err)
	}
	if p != PriorityMedium {
		t.Errorf("expected MEDIUM fallback, got %v", p)
	}
}

func TestEventJSON(t *testing.T) {
	ev, _ := New("price_alert",
		map[string]any{"symbol": "AAPL"},
		WithPriority(PriorityHigh),
		WithRule(&Rule{Field: "x", GT: f(1)}))

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if wire["event_type"] != "price_alert" {
		t.Errorf("expected event_type key, got %v", wire)
	}
	if wire["priority"] != "HIGH" {
		t.Errorf("expected priority name, got %v", wire["priority"])
	}
	if _, ok := wire["notify_threshold"]; !ok {
		t.Error("expected notify_threshold key")
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if diff := cmp.Diff(ev.Data, back.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if back.Priority != PriorityHigh {
		t.Errorf("expected HIGH, got %v", back.Priority)
	}
}
