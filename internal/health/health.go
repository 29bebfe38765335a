// Package health serves the /healthz endpoint of a long-running atelier process.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dyluth/atelier/internal/loader"
)

// Pinger checks catalog connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports template cache counters.
type StatsSource interface {
	Stats() loader.Stats
}

// Server provides HTTP health check endpoints.
type Server struct {
	catalog Pinger
	cache   StatsSource
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a health server. cache may be nil.
func NewServer(catalog Pinger, cache StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		catalog: catalog,
		cache:   cache,
		logger:  logger.With("component", "health"),
	}
}

// Handler returns the mux serving /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	return mux
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server stopped", "addr", addr, "error", err.Error())
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Response is the JSON body of /healthz.
type Response struct {
	Status  string        `json:"status"`
	Catalog string        `json:"catalog"`
	Cache   *loader.Stats `json:"cache,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// healthCheckHandler returns 200 when the catalog answers a ping within two
// seconds and 503 otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := Response{Status: "healthy", Catalog: "connected"}
	if s.cache != nil {
		stats := s.cache.Stats()
		response.Cache = &stats
	}

	code := http.StatusOK
	if err := s.catalog.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Catalog = "disconnected"
		response.Error = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
