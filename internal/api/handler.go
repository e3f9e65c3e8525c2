// Package api provides HTTP handlers for the reviewer2 API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/jaydahhei/reviewer2/internal/config"
	"github.com/jaydahhei/reviewer2/internal/quota"
	"github.com/jaydahhei/reviewer2/internal/session"
	"github.com/jaydahhei/reviewer2/internal/tally"
)

// Handler provides common handler dependencies for the session endpoints.
type Handler struct {
	registry     *session.Registry
	orchestrator *session.Orchestrator
	quota        *quota.Tracker
	tally        *tally.Service
	rateLimiter  *RateLimiter
	cfg          *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *session.Registry, orchestrator *session.Orchestrator, tracker *quota.Tracker, counters *tally.Service, cfg *config.Config) *Handler {
	return &Handler{
		registry:     registry,
		orchestrator: orchestrator,
		quota:        tracker,
		tally:        counters,
		rateLimiter:  NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		cfg:          cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
