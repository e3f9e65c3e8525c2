package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

// Registry holds the live in-memory sessions, one per device. Sessions are
// deliberately not persisted; a restart clears them while quota counters
// survive in the store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Get returns the live session for a device, or nil.
func (r *Registry) Get(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// Create starts a fresh session for a device, replacing any existing one.
func (r *Registry) Create(userID string, temperature float64) *Session {
	s := New(userID, temperature)

	r.mu.Lock()
	r.sessions[userID] = s
	r.mu.Unlock()

	slog.Info("Session created", "user_id", userID, "session_id", s.ID, "temperature", s.Temperature)
	return s
}

// Delete removes a device's session.
func (r *Registry) Delete(userID string) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper runs a background goroutine that drops sessions idle past the
// TTL, until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", r.ttl)

		for {
			select {
			case <-ticker.C:
				if swept := r.sweep(time.Now()); swept > 0 {
					slog.Info("Swept expired sessions", "count", swept)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for userID, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, userID)
			swept++
		}
	}
	return swept
}
