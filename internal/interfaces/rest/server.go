// Package rest provides the HTTP surface for the MCP server.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

// UptimeReporter supplies the healthcheck endpoint with the process uptime.
type UptimeReporter interface {
	Uptime() time.Duration
}

// Server mounts the MCP endpoint and the healthcheck and owns the listening
// socket's lifecycle.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer builds the HTTP server. The mcpHandler serves POST/GET/DELETE
// on /mcp; /healthcheck reports liveness and uptime.
func NewServer(addr string, mcpHandler http.Handler, uptime UptimeReporter, logger *logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"uptime":    uptime.Uptime().String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			logger.Error("failed to write healthcheck response", logging.Fields{"error": err.Error()})
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logging.Fields{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
