// Package api provides the HTTP server for Fluentia's progression engine.
// The caller's identity arrives in the X-User-ID header, set by the
// gateway in front of this service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/health"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// UserHeader carries the authenticated user ID.
const UserHeader = "X-User-ID"

// Server is the Fluentia HTTP API server.
type Server struct {
	awards         *engagement.Orchestrator
	health         *health.Checker
	log            *logger.Logger
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(awards *engagement.Orchestrator, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{awards: awards, log: log.With("service", "api"), timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth reports checker results on /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetTimeout bounds each request. Zero keeps the default.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/badges", s.handleCatalog)

	r.Route("/api/progress", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/award", s.handleAward)
		r.Get("/level", s.handleLevel)
		r.Get("/streak", s.handleStreak)
		r.Get("/badges", s.handleBadges)
		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/{id}/shown", s.handleNotificationShown)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeDomainError maps an error kind to a status. Storage detail is logged,
// never returned.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch kind := domain.Kind(err); kind {
	case "invalid_argument":
		writeError(w, http.StatusBadRequest, err.Error(), kind)
	case "not_found":
		writeError(w, http.StatusNotFound, err.Error(), kind)
	case "conflict":
		writeError(w, http.StatusConflict, err.Error(), kind)
	default:
		s.log.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", domain.Kind(domain.ErrStorage))
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
