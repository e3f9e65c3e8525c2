// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

// Repository defines the interface for persisting device quota state and the
// shared decision tally.
type Repository interface {
	// GetQuota retrieves stored quota state for a device. Returns nil when the
	// device has no stored state yet.
	GetQuota(ctx context.Context, userID string) (*domain.QuotaState, error)

	// UpsertQuota creates or updates a device's quota state.
	UpsertQuota(ctx context.Context, state *domain.QuotaState) error

	// IncrementCounter atomically adds one to a named tally counter and
	// returns the new value. Concurrent increments never lose an update.
	IncrementCounter(ctx context.Context, counter string) (int64, error)

	// GetCounter returns the current value of a named tally counter.
	GetCounter(ctx context.Context, counter string) (int64, error)

	// GetTally returns a snapshot of all tally counters.
	GetTally(ctx context.Context) (*domain.Tally, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
