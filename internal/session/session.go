// Package session implements the review session orchestrator: the stage
// state machine that sequences the review, rebuttal, and editorial decision
// exchanges for one submitter.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaydahhei/reviewer2/internal/domain"
)

// Stage is the orchestrator's current phase. One authoritative field; every
// transition goes through the orchestrator.
type Stage string

const (
	// StageReview awaits the abstract submission.
	StageReview Stage = "review"
	// StageRebuttal awaits the single rebuttal.
	StageRebuttal Stage = "rebuttal"
	// StageDecision means the verdict completion failed and may be retried or
	// aborted. A successful decision moves straight to Closed.
	StageDecision Stage = "decision"
	// StageClosed is terminal.
	StageClosed Stage = "closed"
)

// DefaultTemperature matches the original deployment's slider default.
const DefaultTemperature = 0.7

// Session is the live state for one submitter's review flow. Exactly one
// session is live per device; it is not persisted across restarts (only the
// quota counters survive, in the store).
//
// Two locks with distinct jobs: mu is the single-flight submit gate held for
// the duration of an external call, stateMu guards the mutable fields so the
// HTTP surface and the sweeper can read them while a submission is in flight.
type Session struct {
	ID          string
	UserID      string
	Stage       Stage
	Buffer      *Buffer
	Abstract    string
	Rebuttal    string
	Temperature float64
	Verdict     string
	Accepted    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// mu is the single-flight submit gate: one outstanding external call per
	// session. Acquired with TryLock so an overlapping submit fails fast.
	mu sync.Mutex

	// stateMu guards Stage, Verdict, Accepted, and UpdatedAt.
	stateMu sync.RWMutex
}

// View is a point-in-time read of session state, safe to take while a
// submission is in flight.
type View struct {
	ID          string
	Stage       Stage
	Temperature float64
	Messages    []domain.Message
	Verdict     string
	Accepted    bool
}

// New creates a session in the Review stage, opening with the reviewer's
// canned greeting.
func New(userID string, temperature float64) *Session {
	if temperature < 0 || temperature > 1 {
		temperature = DefaultTemperature
	}
	now := time.Now()
	buf := NewBuffer()
	buf.Append(domain.Message{Role: domain.RoleReviewer, Text: Greeting})
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Stage:       StageReview,
		Buffer:      buf,
		Temperature: temperature,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// View returns a consistent snapshot of the fields the HTTP surface renders.
func (s *Session) View() View {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return View{
		ID:          s.ID,
		Stage:       s.Stage,
		Temperature: s.Temperature,
		Messages:    s.Buffer.Snapshot(),
		Verdict:     s.Verdict,
		Accepted:    s.Accepted,
	}
}

// CurrentStage returns the stage under the state lock.
func (s *Session) CurrentStage() Stage {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.Stage
}

// LastActive returns the last update time under the state lock.
func (s *Session) LastActive() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.UpdatedAt
}

// Closed reports whether the session reached its terminal stage.
func (s *Session) Closed() bool {
	return s.CurrentStage() == StageClosed
}

func (s *Session) setStage(stage Stage) {
	s.stateMu.Lock()
	s.Stage = stage
	s.UpdatedAt = time.Now()
	s.stateMu.Unlock()
}

func (s *Session) setVerdict(verdict string, accepted bool) {
	s.stateMu.Lock()
	s.Verdict = verdict
	s.Accepted = accepted
	s.stateMu.Unlock()
}

func (s *Session) touch() {
	s.stateMu.Lock()
	s.UpdatedAt = time.Now()
	s.stateMu.Unlock()
}
