// Package quota enforces the per-device daily attempt and monthly token
// ceilings that gate review submissions.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jaydahhei/reviewer2/internal/config"
	"github.com/jaydahhei/reviewer2/internal/domain"
	"github.com/jaydahhei/reviewer2/internal/store"
)

var (
	// ErrDailyLimitExceeded is returned when the device has no attempts left today.
	ErrDailyLimitExceeded = errors.New("daily submission limit reached")
	// ErrMonthlyTokenLimitExceeded is returned when the rolling token budget is spent.
	ErrMonthlyTokenLimitExceeded = errors.New("monthly token limit reached")
)

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
)

// Tracker maintains quota state for each device against fixed ceilings.
// Single-writer per device: one live session, one outstanding call at a time.
type Tracker struct {
	repo store.Repository
	cfg  config.QuotaConfig
}

// NewTracker creates a tracker backed by the given repository.
func NewTracker(repo store.Repository, cfg config.QuotaConfig) *Tracker {
	return &Tracker{repo: repo, cfg: cfg}
}

// Snapshot loads the device's quota state, applying day and month rollover.
// Rollover is persisted immediately so repeated loads are stable.
func (t *Tracker) Snapshot(ctx context.Context, userID string) (*domain.QuotaState, error) {
	now := time.Now()
	state, err := t.repo.GetQuota(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load quota state: %w", err)
	}

	if state == nil {
		state = &domain.QuotaState{
			UserID:            userID,
			DayKey:            now.Format(dayKeyLayout),
			MonthKey:          now.Format(monthKeyLayout),
			AttemptsRemaining: t.cfg.DailyMaxAttempts,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := t.repo.UpsertQuota(ctx, state); err != nil {
			return nil, fmt.Errorf("initialize quota state: %w", err)
		}
		return state, nil
	}

	changed := false
	if state.DayKey != now.Format(dayKeyLayout) {
		state.DayKey = now.Format(dayKeyLayout)
		state.AttemptsRemaining = t.cfg.DailyMaxAttempts
		changed = true
	}
	if state.MonthKey != now.Format(monthKeyLayout) {
		state.MonthKey = now.Format(monthKeyLayout)
		state.TokensUsedMonth = 0
		changed = true
	}
	if changed {
		state.UpdatedAt = now
		if err := t.repo.UpsertQuota(ctx, state); err != nil {
			return nil, fmt.Errorf("persist quota rollover: %w", err)
		}
	}

	return state, nil
}

// CheckAndReserve gates a Review submission. It must run before any external
// call; a denial means no provider request is made.
func (t *Tracker) CheckAndReserve(ctx context.Context, userID string) error {
	state, err := t.Snapshot(ctx, userID)
	if err != nil {
		return err
	}

	if state.AttemptsRemaining <= 0 {
		return ErrDailyLimitExceeded
	}
	if state.TokensUsedMonth >= t.cfg.MonthlyTokenCeiling() {
		return ErrMonthlyTokenLimitExceeded
	}
	return nil
}

// Commit records a completed exchange: the response's estimated tokens are
// added to the monthly total, and one attempt is consumed when consumeAttempt
// is set (Review stage only; a rebuttal does not cost a fresh try).
func (t *Tracker) Commit(ctx context.Context, userID, responseText string, consumeAttempt bool) error {
	state, err := t.Snapshot(ctx, userID)
	if err != nil {
		return err
	}

	state.TokensUsedMonth += int64(EstimateTokens(responseText))
	if consumeAttempt && state.AttemptsRemaining > 0 {
		state.AttemptsRemaining--
	}
	state.UpdatedAt = time.Now()

	if err := t.repo.UpsertQuota(ctx, state); err != nil {
		return fmt.Errorf("persist quota commit: %w", err)
	}
	return nil
}

// Ceilings exposes the configured limits for display.
func (t *Tracker) Ceilings() (dailyMax int, monthlyTokens int64) {
	return t.cfg.DailyMaxAttempts, t.cfg.MonthlyTokenCeiling()
}

// EstimateTokens approximates token usage by whitespace-split word count.
// This is a deliberate simplification, not tokenizer output; it only feeds
// the budget ceiling, never billing.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
