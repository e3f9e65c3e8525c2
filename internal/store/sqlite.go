package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaydahhei/reviewer2/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS quota_state (
		user_id TEXT PRIMARY KEY,
		day_key TEXT NOT NULL,
		month_key TEXT NOT NULL,
		attempts_remaining INTEGER NOT NULL,
		tokens_used_month INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tally (
		counter TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Seed the shared counters so increments always have a row to update.
	for _, counter := range domain.Counters {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO tally (counter, value) VALUES (?, 0)`, counter); err != nil {
			return fmt.Errorf("seed counter %s: %w", counter, err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetQuota retrieves stored quota state for a device.
func (s *SQLiteStore) GetQuota(ctx context.Context, userID string) (*domain.QuotaState, error) {
	query := `
		SELECT user_id, day_key, month_key, attempts_remaining,
		       tokens_used_month, created_at, updated_at
		FROM quota_state WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var state domain.QuotaState
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.UserID, &state.DayKey, &state.MonthKey,
		&state.AttemptsRemaining, &state.TokensUsedMonth,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan quota row: %w", err)
	}

	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// UpsertQuota creates or updates a device's quota state.
func (s *SQLiteStore) UpsertQuota(ctx context.Context, state *domain.QuotaState) error {
	query := `
	INSERT INTO quota_state (user_id, day_key, month_key, attempts_remaining, tokens_used_month, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		day_key = excluded.day_key,
		month_key = excluded.month_key,
		attempts_remaining = excluded.attempts_remaining,
		tokens_used_month = excluded.tokens_used_month,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		state.UserID, state.DayKey, state.MonthKey,
		state.AttemptsRemaining, state.TokensUsedMonth,
		state.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert quota state: %w", err)
	}
	return nil
}

// IncrementCounter atomically adds one to a named tally counter.
// The add happens inside the database engine, never read-modify-write in Go,
// so concurrent sessions cannot lose an increment. Retries on SQLITE_BUSY.
func (s *SQLiteStore) IncrementCounter(ctx context.Context, counter string) (int64, error) {
	query := `
		INSERT INTO tally (counter, value) VALUES (?, 1)
		ON CONFLICT(counter) DO UPDATE SET value = value + 1
		RETURNING value`

	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var value int64
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.db.QueryRowContext(ctx, query, counter).Scan(&value)
		if err == nil {
			return value, nil
		}
		if isSQLiteConflict(err) && i < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<i))
			continue
		}
		break
	}
	return 0, fmt.Errorf("increment counter %s: %w", counter, err)
}

// GetCounter returns the current value of a named tally counter.
func (s *SQLiteStore) GetCounter(ctx context.Context, counter string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM tally WHERE counter = ?`, counter).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", counter, err)
	}
	return value, nil
}

// GetTally returns a snapshot of all tally counters.
func (s *SQLiteStore) GetTally(ctx context.Context) (*domain.Tally, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT counter, value FROM tally`)
	if err != nil {
		return nil, fmt.Errorf("query tally: %w", err)
	}
	defer rows.Close()

	var tally domain.Tally
	for rows.Next() {
		var counter string
		var value int64
		if err := rows.Scan(&counter, &value); err != nil {
			return nil, fmt.Errorf("scan tally row: %w", err)
		}
		switch counter {
		case domain.CounterSubmissions:
			tally.Submissions = value
		case domain.CounterAccepted:
			tally.Accepted = value
		case domain.CounterRejected:
			tally.Rejected = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tally rows: %w", err)
	}

	return &tally, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isSQLiteConflict checks for SQLITE_BUSY / "database is locked" errors,
// which warrant a short retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
