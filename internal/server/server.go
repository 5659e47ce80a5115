// Package server exposes the wrapper's HTTP API: a single workflow endpoint
// that answers with a simplified SSE stream, plus health checks.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/config"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/dify"
	nats "github.com/nats-io/nats.go"
)

const (
	APITitle   = "Dify SSE Simplified Proxy API"
	APIVersion = "1.0.0"
)

type Server struct {
	cfg  *config.Config
	dify *dify.Client
	js   nats.JetStreamContext
}

// New wires the API. js may be nil, in which case run outcomes are not
// published.
func New(cfg *config.Config, client *dify.Client, js nats.JetStreamContext) *Server {
	return &Server{cfg: cfg, dify: client, js: js}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /dify", s.handleDify)
	return withCORS(mux)
}

// WorkflowExecutionRequest is the only input the endpoint takes; every other
// upstream parameter is fixed server-side.
type WorkflowExecutionRequest struct {
	UserQuery string `json:"user_query"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withCORS allows any origin; the wrapper sits behind browsers calling it
// directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
