package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnrirwin/nordicwire/internal/aggregator"
	"github.com/johnrirwin/nordicwire/internal/auth"
	"github.com/johnrirwin/nordicwire/internal/enrich"
	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

const (
	cycleRequestTimeout   = 2 * time.Minute
	cleanupRequestTimeout = 30 * time.Second
	manualTriggerKey      = "manual-cycle"
)

// Pipeline is the part of the aggregator the HTTP surface drives.
type Pipeline interface {
	RunCycle(ctx context.Context) (models.CycleReport, error)
	Cleanup(ctx context.Context, now time.Time) (models.CleanupReport, error)
	LastReport() (models.CycleReport, bool)
	Sources() []models.SourceInfo
}

type EnrichmentStatus interface {
	Status() enrich.Status
}

type Server struct {
	pipeline       Pipeline
	enrichment     EnrichmentStatus
	triggerLimiter ratelimit.RateLimiter
	authMiddleware *auth.Middleware
	logger         *logging.Logger
	server         *http.Server
	now            func() time.Time
}

// New builds the server. enrichment and triggerLimiter may be nil.
func New(pipeline Pipeline, enrichment EnrichmentStatus, triggerLimiter ratelimit.RateLimiter, authMiddleware *auth.Middleware, logger *logging.Logger) *Server {
	return &Server{
		pipeline:       pipeline,
		enrichment:     enrichment,
		triggerLimiter: triggerLimiter,
		authMiddleware: authMiddleware,
		logger:         logger,
		now:            time.Now,
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Trigger routes
	mux.HandleFunc("/api/cycles", s.corsMiddleware(s.authMiddleware.RequireAuth(s.handleRunCycle)))
	mux.HandleFunc("/api/cleanup", s.corsMiddleware(s.authMiddleware.RequireAuth(s.handleCleanup)))

	// Read-only routes
	mux.HandleFunc("/api/cycles/last", s.corsMiddleware(s.handleLastCycle))
	mux.HandleFunc("/api/enrichment/status", s.corsMiddleware(s.handleEnrichmentStatus))
	mux.HandleFunc("/api/sources", s.corsMiddleware(s.handleGetSources))

	// Health check
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cycleRequestTimeout + 15*time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.triggerLimiter != nil && !s.triggerLimiter.Allow(manualTriggerKey) {
		s.writeError(w, http.StatusTooManyRequests, "rate_limited", "a cycle was triggered recently, try again later")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cycleRequestTimeout)
	defer cancel()

	report, err := s.pipeline.RunCycle(ctx)
	switch {
	case errors.Is(err, aggregator.ErrCycleInProgress):
		s.writeError(w, http.StatusConflict, "in_progress", "a cycle is already running")
		return
	case err != nil:
		s.logger.Error("Triggered cycle failed", logging.WithField("error", err.Error()))
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "error",
			"message": err.Error(),
			"report":  report,
		})
		return
	}

	s.logger.Info("Triggered cycle finished", logging.WithFields(map[string]interface{}{
		"subject": auth.GetSubject(r.Context()),
		"written": report.Written,
	}))

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": report.Summary(),
		"report":  report,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cleanupRequestTimeout)
	defer cancel()

	report, err := s.pipeline.Cleanup(ctx, s.now())
	if err != nil {
		s.logger.Error("Cleanup failed", logging.WithField("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cleanup_failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, ok := s.pipeline.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no cycle has run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEnrichmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.enrichment == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"status":  s.enrichment.Status(),
	})
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sources := s.pipeline.Sources()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
