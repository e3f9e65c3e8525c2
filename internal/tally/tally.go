// Package tally maintains the shared accept/reject/submission counters and
// their live subscription feed.
package tally

import (
	"context"
	"log/slog"

	"github.com/jaydahhei/reviewer2/internal/domain"
	"github.com/jaydahhei/reviewer2/internal/store"
)

// Update is one pushed counter value. Counters are pushed independently;
// there is no ordering guarantee across the three counters.
type Update struct {
	Counter string `json:"counter"`
	Value   int64  `json:"value"`
}

// Service owns access to the shared counters. Increments are best-effort:
// a store failure is logged and never surfaced to the user or allowed to
// block stage progression.
type Service struct {
	repo store.Repository
	hub  *Hub
}

// NewService creates a tally service backed by the given repository.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, hub: NewHub()}
}

// Increment atomically adds one to a named counter and pushes the new value
// to subscribers. Failures are logged only.
func (s *Service) Increment(ctx context.Context, counter string) {
	value, err := s.repo.IncrementCounter(ctx, counter)
	if err != nil {
		slog.Warn("tally increment failed", "counter", counter, "error", err)
		return
	}
	s.hub.Broadcast(Update{Counter: counter, Value: value})
}

// Snapshot returns the current value of all counters.
func (s *Service) Snapshot(ctx context.Context) (*domain.Tally, error) {
	return s.repo.GetTally(ctx)
}

// Subscribe registers a live feed of counter updates. The returned cancel
// function must be called when the subscriber disconnects.
func (s *Service) Subscribe() (<-chan Update, func()) {
	return s.hub.Subscribe()
}
