package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/jaydahhei/reviewer2/internal/completion"
	"github.com/jaydahhei/reviewer2/internal/domain"
	"github.com/jaydahhei/reviewer2/internal/identity"
	"github.com/jaydahhei/reviewer2/internal/quota"
	"github.com/jaydahhei/reviewer2/internal/session"
)

// maxRequestBody caps submission payload size (1MB).
const maxRequestBody = 1 << 20

type createSessionRequest struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type submitRequest struct {
	Text string `json:"text"`
}

type sessionView struct {
	SessionID   string           `json:"session_id"`
	Stage       session.Stage    `json:"stage"`
	Temperature float64          `json:"temperature"`
	Messages    []domain.Message `json:"messages"`
	Verdict     string           `json:"verdict,omitempty"`
	Accepted    *bool            `json:"accepted,omitempty"`
}

func viewOf(s *session.Session) sessionView {
	view := s.View()
	v := sessionView{
		SessionID:   view.ID,
		Stage:       view.Stage,
		Temperature: view.Temperature,
		Messages:    view.Messages,
	}
	if view.Stage == session.StageClosed && view.Verdict != "" {
		v.Verdict = view.Verdict
		accepted := view.Accepted
		v.Accepted = &accepted
	}
	return v
}

// RegisterRoutes registers the session, quota, and tally routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.Get("/session", h.GetSession)
		r.Post("/session/abstract", h.SubmitAbstract)
		r.Post("/session/rebuttal", h.SubmitRebuttal)
		r.Post("/session/decision/retry", h.RetryDecision)
		r.Post("/session/abort", h.AbortSession)
		r.Get("/quota", h.GetQuota)
		r.Get("/tally", h.GetTally)
	})
}

// CreateSession starts a fresh session for the device, replacing any
// existing one. Temperature is optional; out-of-range values fall back to
// the default.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	temperature := session.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	s := h.registry.Create(userID, temperature)
	JSON(w, http.StatusOK, viewOf(s))
}

// GetSession returns the device's live session transcript and stage.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	s := h.registry.Get(userID)
	if s == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}
	JSON(w, http.StatusOK, viewOf(s))
}

// SubmitAbstract handles the Review-stage submission.
func (h *Handler) SubmitAbstract(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.orchestrator.SubmitAbstract)
}

// SubmitRebuttal handles the Rebuttal-stage submission; the Decision stage
// runs automatically on success.
func (h *Handler) SubmitRebuttal(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.orchestrator.SubmitRebuttal)
}

// submit is the shared path for the two text-bearing stage submissions:
// identity, rate limit, input validation, then the orchestrator transition.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, run func(context.Context, *session.Session, string) error) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s := h.registry.Get(userID)
	if s == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Pre-conditions run before the state machine: never submit blank or
	// oversized text to the provider. The length cap counts characters, not
	// bytes, so multibyte text is not penalized.
	text := strings.TrimSpace(req.Text)
	if text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}
	if utf8.RuneCountInString(text) > h.cfg.MaxInputChars {
		Error(w, http.StatusRequestEntityTooLarge, "input too long")
		return
	}

	if err := run(r.Context(), s, text); err != nil {
		h.writeStageError(w, s, err)
		return
	}

	JSON(w, http.StatusOK, viewOf(s))
}

// RetryDecision re-runs a failed Decision-stage completion.
func (h *Handler) RetryDecision(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s := h.registry.Get(userID)
	if s == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}

	if err := h.orchestrator.RetryDecision(r.Context(), s); err != nil {
		h.writeStageError(w, s, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(s))
}

// AbortSession closes a session parked in the Decision stage without a verdict.
func (h *Handler) AbortSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s := h.registry.Get(userID)
	if s == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}

	if err := h.orchestrator.Abort(s); err != nil {
		h.writeStageError(w, s, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(s))
}

// GetQuota returns the device's remaining attempts and token usage.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	state, err := h.quota.Snapshot(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load quota")
		return
	}

	dailyMax, monthlyCeiling := h.quota.Ceilings()
	JSON(w, http.StatusOK, map[string]interface{}{
		"attempts_remaining":    state.AttemptsRemaining,
		"daily_max_attempts":    dailyMax,
		"tokens_used_month":     state.TokensUsedMonth,
		"monthly_token_ceiling": monthlyCeiling,
	})
}

// GetTally returns a snapshot of the shared counters.
func (h *Handler) GetTally(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.tally.Snapshot(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load tally")
		return
	}
	JSON(w, http.StatusOK, snapshot)
}

// writeStageError maps orchestrator errors onto the HTTP surface. The body
// always carries the current stage so the client can re-enable the right
// input without a second round trip.
func (h *Handler) writeStageError(w http.ResponseWriter, s *session.Session, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, quota.ErrDailyLimitExceeded):
		status = http.StatusTooManyRequests
		message = "You have reached the maximum number of submissions for today."
	case errors.Is(err, quota.ErrMonthlyTokenLimitExceeded):
		status = http.StatusTooManyRequests
		message = "Monthly token limit reached. Please try again next month."
	case errors.Is(err, session.ErrWrongStage):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, session.ErrSubmissionInFlight):
		status = http.StatusConflict
		message = "a submission is already in progress"
	case completion.IsProviderError(err):
		status = http.StatusBadGateway
		message = "There was an error processing your request."
	}

	JSON(w, status, map[string]interface{}{
		"error": message,
		"stage": s.CurrentStage(),
	})
}
