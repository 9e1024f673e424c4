// Package httpapi exposes the event bus over HTTP.
//
// The API is the ingestion surface of the service: producers POST typed
// events to /event and the server constructs the event, publishes it to
// the bus, and answers with the notification decision. /health reports
// the bus state for monitoring.
//
// There is no authentication: the API is meant to sit on a private
// network or behind a gateway that handles it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alertbus/alertbus"
)

// EventRequest is the wire shape accepted by POST /event.
type EventRequest struct {
	EventType       string         `json:"event_type"`
	Data            map[string]any `json:"data"`
	Priority        string         `json:"priority"`
	NotifyThreshold *alertbus.Rule `json:"notify_threshold"`
}

// EventResponse is the wire shape returned by POST /event on success.
type EventResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	EventType  string `json:"event_type"`
	WillNotify bool   `json:"will_notify"`
	Priority   string `json:"priority"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server serves the ingestion API for a bus.
type Server struct {
	bus    *alertbus.Bus
	logger *slog.Logger
	srv    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an API server publishing to the given bus,
// listening on addr once Start is called.
func NewServer(addr string, bus *alertbus.Bus, opts ...Option) *Server {
	s := &Server{
		bus:    bus,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "httpapi")

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/event", s.handleEvent)
	return r
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called; a shutdown-initiated close returns nil.
func (s *Server) Start() error {
	s.logger.Info("api listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("api shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if req.EventType == "" {
		s.writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	ev, err := alertbus.New(req.EventType, req.Data,
		alertbus.WithPriority(alertbus.ParsePriority(req.Priority)),
		alertbus.WithRule(req.NotifyThreshold))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.bus.Publish(r.Context(), ev); err != nil {
		switch {
		case errors.Is(err, alertbus.ErrBusDraining), errors.Is(err, alertbus.ErrBusNotRunning):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, EventResponse{
		Status:     "success",
		Message:    "event published",
		EventType:  ev.Type,
		WillNotify: ev.ShouldNotify(),
		Priority:   ev.Priority.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.bus.Status()
	code := http.StatusOK
	if status.State != alertbus.RunStateRunning.String() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, struct {
		Status string          `json:"status"`
		Bus    alertbus.Status `json:"bus"`
	}{
		Status: healthWord(code),
		Bus:    status,
	})
}

func healthWord(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "alertbus",
		"endpoints": map[string]string{
			"POST /event": "publish an event: {event_type, data, priority, notify_threshold}",
			"GET /health": "bus health and queue depth",
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Status: "error", Message: msg})
}

// logRequests logs one line per request after it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
