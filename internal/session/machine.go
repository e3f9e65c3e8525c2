package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaydahhei/reviewer2/internal/completion"
	"github.com/jaydahhei/reviewer2/internal/config"
	"github.com/jaydahhei/reviewer2/internal/domain"
	"github.com/jaydahhei/reviewer2/internal/quota"
	"github.com/jaydahhei/reviewer2/internal/tally"
)

var (
	// ErrWrongStage is returned when an operation does not match the
	// session's current stage.
	ErrWrongStage = errors.New("operation not valid for current stage")
	// ErrSubmissionInFlight is returned when a submission overlaps an
	// outstanding external call for the same session.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
)

// Orchestrator drives sessions through Review → Rebuttal → Decision → Closed.
// All transitions happen here; handlers only validate input and translate
// errors.
type Orchestrator struct {
	completions completion.Client
	quota       *quota.Tracker
	tally       *tally.Service
	provider    config.ProviderConfig
}

// NewOrchestrator wires the state machine to its collaborators.
func NewOrchestrator(completions completion.Client, tracker *quota.Tracker, counters *tally.Service, provider config.ProviderConfig) *Orchestrator {
	return &Orchestrator{
		completions: completions,
		quota:       tracker,
		tally:       counters,
		provider:    provider,
	}
}

// SubmitAbstract runs the Review stage: persona prompt (once), the abstract,
// a completion with the review model, quota consumption, and the submissions
// tally increment. Advances to Rebuttal on success.
//
// On any provider failure the stage does not advance and neither quota nor
// tally state is mutated; the caller re-enables input for a manual resubmit.
func (o *Orchestrator) SubmitAbstract(ctx context.Context, s *Session, abstract string) error {
	if !s.mu.TryLock() {
		return ErrSubmissionInFlight
	}
	defer s.mu.Unlock()

	if s.Stage != StageReview {
		return fmt.Errorf("%w: stage %s", ErrWrongStage, s.Stage)
	}

	// The quota gate runs before any external request.
	if err := o.quota.CheckAndReserve(ctx, s.UserID); err != nil {
		return err
	}

	if !s.Buffer.HasSystemMessage() {
		s.Buffer.Append(domain.Message{Role: domain.RoleSystem, Text: personaPrompt})
	}
	s.Buffer.Append(domain.Message{Role: domain.RoleUser, Text: abstract})
	s.Abstract = abstract
	s.touch()

	review, err := o.completions.Complete(ctx, completion.Request{
		Messages:    s.Buffer.Snapshot(),
		Model:       o.provider.ReviewModel,
		Temperature: s.Temperature,
		MaxTokens:   o.provider.MaxResponseTokens,
	})
	if err != nil {
		slog.Error("Review completion failed", "user_id", s.UserID, "session_id", s.ID, "error", err)
		return fmt.Errorf("review completion: %w", err)
	}

	s.Buffer.Append(domain.Message{Role: domain.RoleReviewer, Text: review})
	o.commitQuota(ctx, s, review, true)
	o.tally.Increment(ctx, domain.CounterSubmissions)

	s.setStage(StageRebuttal)
	slog.Info("Review stage complete", "user_id", s.UserID, "session_id", s.ID, "review_words", quota.EstimateTokens(review))
	return nil
}

// SubmitRebuttal runs the Rebuttal stage and then the Decision stage
// automatically. A rebuttal does not consume an attempt. If the rebuttal
// completion fails the stage stays at Rebuttal; if only the decision
// completion fails the session parks in Decision for retry or abort.
func (o *Orchestrator) SubmitRebuttal(ctx context.Context, s *Session, rebuttal string) error {
	if !s.mu.TryLock() {
		return ErrSubmissionInFlight
	}
	defer s.mu.Unlock()

	if s.Stage != StageRebuttal {
		return fmt.Errorf("%w: stage %s", ErrWrongStage, s.Stage)
	}

	s.Buffer.Append(domain.Message{Role: domain.RoleUser, Text: rebuttal})
	s.Rebuttal = rebuttal
	s.touch()

	reply, err := o.completions.Complete(ctx, completion.Request{
		Messages:    s.Buffer.Snapshot(),
		Model:       o.provider.DecisionModel,
		Temperature: s.Temperature,
		MaxTokens:   o.provider.MaxResponseTokens,
	})
	if err != nil {
		slog.Error("Rebuttal completion failed", "user_id", s.UserID, "session_id", s.ID, "error", err)
		return fmt.Errorf("rebuttal completion: %w", err)
	}

	s.Buffer.Append(domain.Message{Role: domain.RoleReviewer, Text: reply})
	o.commitQuota(ctx, s, reply, false)

	s.setStage(StageDecision)
	slog.Info("Rebuttal stage complete", "user_id", s.UserID, "session_id", s.ID)

	return o.runDecision(ctx, s)
}

// RetryDecision re-runs only the verdict completion for a session parked in
// the Decision stage. No quota or submissions side effects are repeated.
func (o *Orchestrator) RetryDecision(ctx context.Context, s *Session) error {
	if !s.mu.TryLock() {
		return ErrSubmissionInFlight
	}
	defer s.mu.Unlock()

	if s.Stage != StageDecision {
		return fmt.Errorf("%w: stage %s", ErrWrongStage, s.Stage)
	}
	return o.runDecision(ctx, s)
}

// Abort closes a session parked in the Decision stage without recording a
// verdict. The accepted/rejected counters are left untouched.
func (o *Orchestrator) Abort(s *Session) error {
	if !s.mu.TryLock() {
		return ErrSubmissionInFlight
	}
	defer s.mu.Unlock()

	if s.Stage != StageDecision {
		return fmt.Errorf("%w: stage %s", ErrWrongStage, s.Stage)
	}

	s.Buffer.Append(domain.Message{Role: domain.RoleSystem, Text: "Decision aborted; no verdict was recorded."})
	s.setStage(StageClosed)
	slog.Info("Session aborted at decision stage", "user_id", s.UserID, "session_id", s.ID)
	return nil
}

// runDecision synthesizes the one-shot editorial prompt, classifies the
// verdict, updates the tally, and closes the session. Caller holds the gate.
func (o *Orchestrator) runDecision(ctx context.Context, s *Session) error {
	prompt := decisionPrompt(
		s.Buffer.FirstUserMessage(),
		s.Buffer.ReviewMessage(),
		s.Buffer.LastUserMessage(),
	)

	// A single user-role message, no conversation history.
	verdict, err := o.completions.Complete(ctx, completion.Request{
		Messages:    []domain.Message{{Role: domain.RoleUser, Text: prompt}},
		Model:       o.provider.DecisionModel,
		Temperature: s.Temperature,
		MaxTokens:   o.provider.MaxVerdictTokens,
	})
	if err != nil {
		slog.Error("Decision completion failed", "user_id", s.UserID, "session_id", s.ID, "error", err)
		return fmt.Errorf("decision completion: %w", err)
	}

	accepted := ClassifyVerdict(verdict)
	o.commitQuota(ctx, s, verdict, false)
	if accepted {
		o.tally.Increment(ctx, domain.CounterAccepted)
	} else {
		o.tally.Increment(ctx, domain.CounterRejected)
	}

	s.setVerdict(verdict, accepted)
	s.Buffer.Append(domain.Message{Role: domain.RoleSystem, Text: verdict})
	s.setStage(StageClosed)
	slog.Info("Decision recorded", "user_id", s.UserID, "session_id", s.ID, "accepted", accepted)
	return nil
}

// commitQuota records token usage (and optionally an attempt) after a
// successful completion. Storage failures are logged, never fatal.
func (o *Orchestrator) commitQuota(ctx context.Context, s *Session, responseText string, consumeAttempt bool) {
	if err := o.quota.Commit(ctx, s.UserID, responseText, consumeAttempt); err != nil {
		slog.Warn("Quota commit failed", "user_id", s.UserID, "session_id", s.ID, "error", err)
	}
}

// ClassifyVerdict maps raw verdict text to accept (true) or reject (false)
// by case-insensitive substring match on "accept". Absence of the substring
// means reject; there is no ambiguous outcome. Note the known hazard:
// "unacceptable" contains "accept" and classifies as accepted.
func ClassifyVerdict(verdict string) bool {
	return strings.Contains(strings.ToLower(verdict), "accept")
}
