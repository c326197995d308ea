// Package httpserver exposes the /healthz, /readyz and /metrics HTTP
// endpoints served alongside the gRPC listener. Grounded on the
// teacher's pkg/api/health.go (HealthServer, its mux.Handle("/metrics",
// metrics.Handler()) wiring) generalized to a single readiness
// predicate instead of raft/storage-specific checks.
package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/ankaios-core/internal/metrics"
)

// ReadyFunc reports whether the process is ready to accept connections,
// plus a human-readable reason when it is not.
type ReadyFunc func() (ready bool, reason string)

// Server serves /healthz, /readyz and /metrics.
type Server struct {
	mux   *http.ServeMux
	ready ReadyFunc
}

// New builds a Server. ready may be nil, in which case /readyz always
// reports ready.
func New(ready ReadyFunc) *Server {
	if ready == nil {
		ready = func() (bool, string) { return true, "" }
	}
	s := &Server{mux: http.NewServeMux(), ready: ready}
	s.mux.HandleFunc("/healthz", s.healthz)
	s.mux.HandleFunc("/readyz", s.readyz)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// Handler returns the server's http.Handler for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type statusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ready, reason := s.ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "not ready", Reason: reason})
		return
	}
	_ = json.NewEncoder(w).Encode(statusResponse{Status: "ready"})
}
