package domain

import (
	"time"
)

// QuotaState holds a device's daily attempt count and rolling monthly token
// usage. Mutated only through the quota tracker's gate-and-commit operations.
type QuotaState struct {
	UserID            string
	DayKey            string
	MonthKey          string
	AttemptsRemaining int
	TokensUsedMonth   int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasAttempts returns true if the device may start another review today.
func (q *QuotaState) HasAttempts() bool {
	return q.AttemptsRemaining > 0
}
