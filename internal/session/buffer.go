package session

import (
	"sync"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

// Buffer is an append-only ordered log of transcript messages. Past entries
// are never mutated or removed; the transcript is permanent for the session's
// lifetime and doubles as the literal prompt history. Safe for concurrent
// use: the HTTP surface reads snapshots while a submission is appending.
type Buffer struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a message to the end of the log.
func (b *Buffer) Append(m domain.Message) {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()
}

// Snapshot returns a copy of the full ordered sequence for prompt construction.
func (b *Buffer) Snapshot() []domain.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of messages in the buffer.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// HasSystemMessage reports whether a system message has been appended.
// The persona prompt is sent exactly once per session.
func (b *Buffer) HasSystemMessage() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.messages {
		if m.Role == domain.RoleSystem {
			return true
		}
	}
	return false
}

// FirstUserMessage returns the first user-role message (the original
// abstract), or empty string if none exists.
func (b *Buffer) FirstUserMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.messages {
		if m.Role == domain.RoleUser {
			return m.Text
		}
	}
	return ""
}

// LastUserMessage returns the most recent user-role message (the latest
// rebuttal), or empty string if none exists.
func (b *Buffer) LastUserMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].Role == domain.RoleUser {
			return b.messages[i].Text
		}
	}
	return ""
}

// ReviewMessage returns the reviewer's critique: the first reviewer-role
// message that follows the first user message. The canned greeting that opens
// a session precedes any user message and is therefore never selected.
func (b *Buffer) ReviewMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seenUser := false
	for _, m := range b.messages {
		if m.Role == domain.RoleUser {
			seenUser = true
			continue
		}
		if seenUser && m.Role == domain.RoleReviewer {
			return m.Text
		}
	}
	return ""
}
