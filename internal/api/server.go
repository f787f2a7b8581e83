// Package api provides the IdeaForge HTTP server.
// It exposes the generation workflow, the credit ledger, and a live progress
// feed to the desktop UI and CLI.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ideaforge/ideaforge/internal/app/orchestrator"
	"github.com/ideaforge/ideaforge/internal/domain"
)

// AccountProvisioner creates a credit account with the signup grant the first
// time a user is seen. Implemented by the sqlite layer.
type AccountProvisioner interface {
	EnsureAccount(ctx context.Context, userID string, signupGrant int64) error
}

// Server is the IdeaForge HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	ledger         domain.CreditLedger
	ideas          domain.IdeaStore
	artifacts      domain.ArtifactStore
	accounts       AccountProvisioner
	signupGrant    int64
	metricsEnabled bool
	progressHub    *ProgressHub
	logger         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(orch *orchestrator.Orchestrator, ledger domain.CreditLedger, ideas domain.IdeaStore, artifacts domain.ArtifactStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:        orch,
		ledger:      ledger,
		ideas:       ideas,
		artifacts:   artifacts,
		progressHub: NewProgressHub(),
		logger:      logger,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetAccountProvisioner enables first-touch account creation with a signup grant.
func (s *Server) SetAccountProvisioner(p AccountProvisioner, signupGrant int64) {
	s.accounts = p
	s.signupGrant = signupGrant
}

// ProgressHub returns the live progress hub (for broadcasting samples).
func (s *Server) ProgressHub() *ProgressHub { return s.progressHub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	// Health check for Railway/Render
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": "0.1.0",
		})
	})

	r.Route("/api", func(r chi.Router) {
		// Feature catalog and generation
		r.Get("/features", s.handleListFeatures)
		r.Post("/features/{feature}/generate", s.handleGenerate)
		r.Get("/features/{feature}/latest", s.handleLatestRun)

		// Run lifecycle
		r.Get("/runs/{id}", s.handleGetRun)
		r.Post("/runs/{id}/reset", s.handleResetRun)
		r.Post("/runs/{id}/view-state", s.handleViewState)

		// Live progress feed for the generation dialog
		r.Get("/progress/{feature}", s.handleProgressSSE)

		// Credit ledger
		r.Get("/credits/balance", s.handleBalance)
		r.Get("/credits/ledger", s.handleLedger)
		r.Post("/credits/grant", s.handleGrant)

		// Stored ideas and saved artifacts
		r.Get("/ideas", s.handleListIdeas)
		r.Post("/ideas", s.handleCreateIdea)
		r.Get("/ideas/{id}", s.handleGetIdea)
		r.Get("/artifacts", s.handleListArtifacts)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// principal resolves the requesting user. IdeaForge runs single-user by
// default; a gateway in front of it can set X-User-ID per account.
func principal(r *http.Request) domain.Principal {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = "local"
	}
	return domain.Principal{UserID: userID}
}

// ensureAccount provisions the credit account on first touch.
func (s *Server) ensureAccount(r *http.Request, p domain.Principal) {
	if s.accounts == nil {
		return
	}
	if err := s.accounts.EnsureAccount(r.Context(), p.UserID, s.signupGrant); err != nil {
		s.logger.Warn("account provisioning failed", "user_id", p.UserID, "error", err)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
