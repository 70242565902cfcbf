// Package health serves the liveness endpoint and the Prometheus metrics of
// a running listener.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger verifies a backing service, typically the lemma server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides /healthz and /metrics over HTTP.
// It runs in a background goroutine and can be gracefully shut down.
type Server struct {
	server *http.Server
	pinger Pinger
	state  func() string
}

// Response is the JSON body of /healthz.
type Response struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewServer creates a health server listening on all interfaces.
//
// Parameters:
//   - port: port number to listen on
//   - registry: metrics served on /metrics; nil disables the endpoint
//   - pinger: checked on every /healthz request; nil skips the check
//   - state: reports the channel state; nil omits it
func NewServer(port int, registry *prometheus.Registry, pinger Pinger, state func() string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		pinger: pinger,
		state:  state,
	}

	mux.HandleFunc("/healthz", s.handleHealthz)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// ListenAndServe serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("[DEBUG] Health server starting on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	log.Printf("[DEBUG] Health server stopped")
	return nil
}

// Shutdown gracefully shuts down the HTTP server. The context bounds the
// wait for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealthz returns 200 when the pinger (if any) answers and 503
// otherwise.
//
// Response format:
//   - Success: {"status": "healthy", "state": "idle"}
//   - Failure: {"status": "unhealthy", "state": "idle", "error": "connection refused"}
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	response := Response{Status: "healthy"}
	statusCode := http.StatusOK

	if s.state != nil {
		response.State = s.state()
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[ERROR] Failed to encode health response: %v", err)
	}
}
