package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaydahhei/reviewer2/internal/config"
	"github.com/jaydahhei/reviewer2/internal/domain"
)

type fakeRepo struct {
	mu     sync.Mutex
	states map[string]*domain.QuotaState
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{states: make(map[string]*domain.QuotaState)}
}

func (f *fakeRepo) GetQuota(_ context.Context, userID string) (*domain.QuotaState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[userID]
	if state == nil {
		return nil, nil
	}
	out := *state
	return &out, nil
}

func (f *fakeRepo) UpsertQuota(_ context.Context, state *domain.QuotaState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *state
	f.states[state.UserID] = &stored
	return nil
}

func (f *fakeRepo) IncrementCounter(_ context.Context, _ string) (int64, error) { return 0, nil }
func (f *fakeRepo) GetCounter(_ context.Context, _ string) (int64, error)      { return 0, nil }
func (f *fakeRepo) GetTally(_ context.Context) (*domain.Tally, error)          { return &domain.Tally{}, nil }
func (f *fakeRepo) Ping(_ context.Context) error                               { return nil }
func (f *fakeRepo) Close() error                                               { return nil }

func testQuotaConfig() config.QuotaConfig {
	return config.QuotaConfig{
		DailyMaxAttempts:     10,
		MonthlyBudgetUSD:     15,
		CostPerMillionTokens: 0.88,
	}
}

func TestSnapshotInitializesFreshState(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(newFakeRepo(), testQuotaConfig())

	state, err := tracker.Snapshot(context.Background(), "anon-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if state.AttemptsRemaining != 10 {
		t.Errorf("expected 10 attempts, got %d", state.AttemptsRemaining)
	}
	if state.TokensUsedMonth != 0 {
		t.Errorf("expected 0 tokens used, got %d", state.TokensUsedMonth)
	}
	if state.DayKey != time.Now().Format("2006-01-02") {
		t.Errorf("unexpected day key %q", state.DayKey)
	}
}

func TestDayRolloverResetsAttempts(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.states["anon-1"] = &domain.QuotaState{
		UserID:            "anon-1",
		DayKey:            "2020-01-01",
		MonthKey:          time.Now().Format("2006-01"),
		AttemptsRemaining: 0,
		TokensUsedMonth:   500,
	}
	tracker := NewTracker(repo, testQuotaConfig())

	state, err := tracker.Snapshot(context.Background(), "anon-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if state.AttemptsRemaining != 10 {
		t.Errorf("expected attempts reset to 10, got %d", state.AttemptsRemaining)
	}
	if state.DayKey != time.Now().Format("2006-01-02") {
		t.Errorf("expected day key updated, got %q", state.DayKey)
	}
	// Day rollover must not touch the monthly token total.
	if state.TokensUsedMonth != 500 {
		t.Errorf("expected tokens unchanged at 500, got %d", state.TokensUsedMonth)
	}
}

func TestMonthRolloverResetsTokens(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.states["anon-1"] = &domain.QuotaState{
		UserID:            "anon-1",
		DayKey:            "2020-01-01",
		MonthKey:          "2020-01",
		AttemptsRemaining: 3,
		TokensUsedMonth:   999_999,
	}
	tracker := NewTracker(repo, testQuotaConfig())

	state, err := tracker.Snapshot(context.Background(), "anon-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if state.TokensUsedMonth != 0 {
		t.Errorf("expected tokens reset to 0, got %d", state.TokensUsedMonth)
	}
	if state.MonthKey != time.Now().Format("2006-01") {
		t.Errorf("expected month key updated, got %q", state.MonthKey)
	}
}

func TestCheckAndReserveDeniesAtZeroAttempts(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.states["anon-1"] = &domain.QuotaState{
		UserID:            "anon-1",
		DayKey:            time.Now().Format("2006-01-02"),
		MonthKey:          time.Now().Format("2006-01"),
		AttemptsRemaining: 0,
	}
	tracker := NewTracker(repo, testQuotaConfig())

	err := tracker.CheckAndReserve(context.Background(), "anon-1")
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}
}

func TestCheckAndReserveDeniesAtMonthlyCeiling(t *testing.T) {
	t.Parallel()

	cfg := testQuotaConfig()
	repo := newFakeRepo()
	repo.states["anon-1"] = &domain.QuotaState{
		UserID:            "anon-1",
		DayKey:            time.Now().Format("2006-01-02"),
		MonthKey:          time.Now().Format("2006-01"),
		AttemptsRemaining: 5,
		TokensUsedMonth:   cfg.MonthlyTokenCeiling(),
	}
	tracker := NewTracker(repo, cfg)

	err := tracker.CheckAndReserve(context.Background(), "anon-1")
	if !errors.Is(err, ErrMonthlyTokenLimitExceeded) {
		t.Fatalf("expected ErrMonthlyTokenLimitExceeded, got %v", err)
	}
}

func TestCommitConsumesAttemptOnlyWhenAsked(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	tracker := NewTracker(repo, testQuotaConfig())
	ctx := context.Background()

	// Review-stage commit: attempt consumed, tokens added.
	if err := tracker.Commit(ctx, "anon-1", "one two three", true); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	state, _ := tracker.Snapshot(ctx, "anon-1")
	if state.AttemptsRemaining != 9 {
		t.Errorf("expected 9 attempts after review commit, got %d", state.AttemptsRemaining)
	}
	if state.TokensUsedMonth != 3 {
		t.Errorf("expected 3 tokens after review commit, got %d", state.TokensUsedMonth)
	}

	// Rebuttal-stage commit: tokens added, attempts untouched.
	if err := tracker.Commit(ctx, "anon-1", "four five", false); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	state, _ = tracker.Snapshot(ctx, "anon-1")
	if state.AttemptsRemaining != 9 {
		t.Errorf("expected attempts unchanged at 9, got %d", state.AttemptsRemaining)
	}
	if state.TokensUsedMonth != 5 {
		t.Errorf("expected 5 tokens total, got %d", state.TokensUsedMonth)
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"We study X.", 3},
		{"  spaced   out\twords\nhere ", 4},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestMonthlyTokenCeiling(t *testing.T) {
	t.Parallel()

	// $15 at $0.88 per million tokens ≈ 17,045,454 tokens.
	ceiling := testQuotaConfig().MonthlyTokenCeiling()
	if ceiling < 17_000_000 || ceiling > 17_100_000 {
		t.Errorf("unexpected monthly ceiling %d", ceiling)
	}
}
