package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/crossfire-map/internal/domain"
)

// MapSource exposes the result of the last pipeline run.
type MapSource interface {
	CheckReadiness(ctx context.Context) error
	Map() ([]byte, bool)
	Summary() (domain.RunSummary, bool)
}

// Server exposes the rendered map, the run summary, and health, readiness
// and metrics endpoints.
type Server struct {
	httpServer *http.Server
	maps       MapSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /map.svg, /summary, /healthz, /readyz
// and /metrics routes.
func NewServer(addr string, maps MapSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		maps:   maps,
		logger: logger,
	}

	mux.HandleFunc("GET /map.svg", s.handleMap)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(maps))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	svg, ok := s.maps.Map()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no map has been rendered"})
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(svg); err != nil {
		s.logger.Debug("write map response", "error", err)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.maps.Summary()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run has completed"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, summary)
}
