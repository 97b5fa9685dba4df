// Package httpapi serves the monitoring endpoints: liveness, prometheus
// metrics and pipeline stats.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/candlecache"
	"github.com/sigvet/sigvet/internal/exchange"
	"github.com/sigvet/sigvet/internal/factcheck"
)

// HealthChecker reports dependency health (database pool).
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Server is the monitoring HTTP server.
type Server struct {
	aggregator   *exchange.Aggregator
	cache        *candlecache.Cache
	filter       *factcheck.Filter
	orchestrator *factcheck.Orchestrator
	health       HealthChecker
	registry     *prometheus.Registry
	srv          *http.Server
}

// New builds the server; nil collaborators disable their sections.
func New(addr string, agg *exchange.Aggregator, cache *candlecache.Cache, filter *factcheck.Filter, orch *factcheck.Orchestrator, health HealthChecker, registry *prometheus.Registry) *Server {
	s := &Server{
		aggregator:   agg,
		cache:        cache,
		filter:       filter,
		orchestrator: orch,
		health:       health,
		registry:     registry,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Always returns a non-nil error (ErrServerClosed
// after a clean shutdown).
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Monitoring server listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if s.health != nil {
		if s.health.Healthy(r.Context()) {
			status["database"] = "ok"
		} else {
			status["database"] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{}
	if s.aggregator != nil {
		stats["exchange"] = s.aggregator.Stats()
	}
	if s.cache != nil {
		stats["candle_cache_entries"] = s.cache.Len()
	}
	if s.filter != nil {
		stats["filter"] = s.filter.Stats()
	}
	if s.orchestrator != nil {
		if last := s.orchestrator.LastRun(); last != nil {
			// details are unbounded; the stats endpoint serves counters only
			trimmed := *last
			trimmed.Details = nil
			stats["last_run"] = trimmed
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Write response failed")
	}
}
