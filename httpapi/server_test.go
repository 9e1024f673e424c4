package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alertbus/alertbus"
)

func newTestServer(t *testing.T) (*Server, *alertbus.Bus, *alertbus.RecordingListener) {
	t.Helper()

	bus := alertbus.TestBus()
	rec := alertbus.NewRecordingListener("recorder")
	bus.Register(rec)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		bus.Stop(stopCtx)
	})

	return NewServer("127.0.0.1:0", bus), bus, rec
}

func postEvent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleEvent(t *testing.T) {
	t.Run("publishes and reports decision", func(t *testing.T) {
		srv, _, rec := newTestServer(t)
		h := srv.Routes()

		w := postEvent(t, h, `{
			"event_type": "price_alert",
			"data": {"symbol": "AAPL", "change_percent": "+5.3%"},
			"priority": "high",
			"notify_threshold": {"field": "change_percent", "abs_gte": 2.0}
		}`)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp EventResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != "success" {
			t.Errorf("expected success status, got %q", resp.Status)
		}
		if resp.EventType != "price_alert" {
			t.Errorf("expected price_alert, got %q", resp.EventType)
		}
		if resp.Priority != "HIGH" {
			t.Errorf("expected HIGH, got %q", resp.Priority)
		}
		if !resp.WillNotify {
			t.Error("expected will_notify true for +5.3% against abs_gte 2.0")
		}

		if !rec.WaitFor(1, time.Second) {
			t.Fatal("event never reached the listener")
		}
		got := rec.Last()
		if got.Type != "price_alert" || got.Priority != alertbus.PriorityHigh {
			t.Errorf("unexpected dispatched event: %+v", got)
		}
	})

	t.Run("suppressed threshold still publishes", func(t *testing.T) {
		srv, _, rec := newTestServer(t)

		w := postEvent(t, srv.Routes(), `{
			"event_type": "price_alert",
			"data": {"change_percent": "+0.8%"},
			"notify_threshold": {"field": "change_percent", "abs_gte": 2.0}
		}`)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp EventResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.WillNotify {
			t.Error("expected will_notify false for +0.8% against abs_gte 2.0")
		}
		// The event is still delivered to listeners; only the outward
		// notification is suppressed.
		if !rec.WaitFor(1, time.Second) {
			t.Fatal("suppressed event never reached the listener")
		}
	})

	t.Run("defaults priority to MEDIUM", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		w := postEvent(t, srv.Routes(), `{"event_type": "deploy_finished"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp EventResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Priority != "MEDIUM" {
			t.Errorf("expected MEDIUM, got %q", resp.Priority)
		}
	})

	t.Run("rejects empty body", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		if w := postEvent(t, srv.Routes(), ""); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		if w := postEvent(t, srv.Routes(), `{"event_type":`); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("rejects missing event_type", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		w := postEvent(t, srv.Routes(), `{"data": {"x": 1}}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		var resp errorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Status != "error" {
			t.Errorf("expected error status, got %q", resp.Status)
		}
	})

	t.Run("returns 503 when bus is stopped", func(t *testing.T) {
		bus := alertbus.TestBus()
		srv := NewServer("127.0.0.1:0", bus)

		w := postEvent(t, srv.Routes(), `{"event_type": "price_alert"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})

	t.Run("returns 503 while draining", func(t *testing.T) {
		srv, bus, _ := newTestServer(t)
		h := srv.Routes()

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := bus.Stop(stopCtx); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}

		w := postEvent(t, h, `{"event_type": "price_alert"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy while running", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp struct {
			Status string          `json:"status"`
			Bus    alertbus.Status `json:"bus"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != "healthy" {
			t.Errorf("expected healthy, got %q", resp.Status)
		}
		if resp.Bus.State != "running" {
			t.Errorf("expected running, got %q", resp.Bus.State)
		}
		if resp.Bus.Listeners != 1 {
			t.Errorf("expected 1 listener, got %d", resp.Bus.Listeners)
		}
	})

	t.Run("unhealthy when stopped", func(t *testing.T) {
		bus := alertbus.TestBus()
		srv := NewServer("127.0.0.1:0", bus)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestHandleIndex(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["service"] != "alertbus" {
		t.Errorf("unexpected service name: %v", resp["service"])
	}
}
