// Package api exposes the Engine over plain HTTP health and readiness
// endpoints, plus the Prometheus metrics handler, for hosts that run
// corestate as a standalone process rather than linking it in-process.
// Grounded on warren's pkg/api health server, with the Raft
// leader/follower readiness check replaced by a check that the Engine
// has been constructed (this engine has no cluster to be a follower of).
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/corestate/pkg/engine"
	"github.com/cuemby/corestate/pkg/metrics"
)

// HealthServer provides HTTP health check endpoints over an Engine.
type HealthServer struct {
	engine *engine.Engine
	mux    *http.ServeMux
}

// NewHealthServer creates a health check HTTP server over eng.
func NewHealthServer(eng *engine.Engine) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		engine: eng,
		mux:    mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse is the /health endpoint's body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready endpoint's body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 if the process is alive.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler reports ready when the engine is constructed; the
// "stores" and "containers" checks report "ok" on that basis alone.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.engine != nil {
		checks["stores"] = "ok"
		checks["containers"] = "ok"
	} else {
		checks["stores"] = "not initialized"
		ready = false
		message = "Engine not initialized"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
