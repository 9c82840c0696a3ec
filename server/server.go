package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wailbentafat/showbus/bus"
	"github.com/wailbentafat/showbus/logging"
)

var log = logging.For("server")

const shutdownTimeout = 15 * time.Second

// StateSource reports the bus subscription state. *bus.Bus implements it.
type StateSource interface {
	ID() string
	State() bus.State
	Channels() []string
	Pending() int
}

// Server serves the process's operational endpoints: /healthz and,
// when a metrics handler is given, /metrics.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, src StateSource, metricsHandler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(src))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

type health struct {
	Node     string   `json:"node"`
	State    string   `json:"state"`
	Channels []string `json:"channels"`
	Pending  int      `json:"pending"`
}

// healthHandler answers 200 while the bus is subscribed and 503 otherwise.
func healthHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := src.State()
		body := health{
			Node:     src.ID(),
			State:    state.String(),
			Channels: src.Channels(),
			Pending:  src.Pending(),
		}
		if body.Channels == nil {
			body.Channels = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		if state != bus.StateSubscribed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.WithError(err).Debug("Failed to write health response")
		}
	}
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

// Shutdown stops accepting requests, then closes the bus.
func (s *Server) Shutdown(ctx context.Context, b *bus.Bus) {
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	log.Info("Closing message bus...")
	if err := b.Close(); err != nil {
		log.WithError(err).Error("Bus closure error")
	}

	log.Info("Shutdown complete")
}
