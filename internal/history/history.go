package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"rbz-rates-watcher/internal/calendar"
)

const dayFormat = "2006-01-02"

// Coverage records which halves of a day's observation have been confirmed
// in the canonical store.
type Coverage struct {
	Exchange bool
	Gold     bool
}

// Complete reports whether both halves are covered.
func (c Coverage) Complete() bool {
	return c.Exchange && c.Gold
}

// Store keeps per-day scrape coverage, the credential profile, and the
// public-holiday cache in a local SQLite file. A single connection is used;
// the pipeline is single-flight so contention is not a concern.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS scrape_history (
			scrape_date TEXT PRIMARY KEY,
			exchange_done INTEGER NOT NULL DEFAULT 0,
			gold_done INTEGER NOT NULL DEFAULT 0,
			last_run_id TEXT,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS holiday_cache (
			holiday_date TEXT NOT NULL,
			year INTEGER NOT NULL,
			name TEXT,
			local_name TEXT,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (holiday_date, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

// HasRecordFor reports whether both halves of the given date have already
// been confirmed. Partial coverage returns false so a later run can still
// complete the day.
func (s *Store) HasRecordFor(ctx context.Context, day time.Time) (bool, error) {
	cov, err := s.CoverageFor(ctx, day)
	if err != nil {
		return false, err
	}
	return cov.Complete(), nil
}

// CoverageFor returns the recorded coverage for a date. An unknown date
// yields zero coverage.
func (s *Store) CoverageFor(ctx context.Context, day time.Time) (Coverage, error) {
	var cov Coverage
	err := s.db.QueryRowContext(ctx,
		`SELECT exchange_done, gold_done FROM scrape_history WHERE scrape_date = ?`,
		day.Format(dayFormat),
	).Scan(&cov.Exchange, &cov.Gold)
	if errors.Is(err, sql.ErrNoRows) {
		return Coverage{}, nil
	}
	if err != nil {
		return Coverage{}, fmt.Errorf("query scrape history: %w", err)
	}
	return cov, nil
}

// MarkRecorded merges coverage for a date. Coverage is monotone: once a half
// is marked done it stays done regardless of later runs.
func (s *Store) MarkRecorded(ctx context.Context, day time.Time, cov Coverage, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_history (scrape_date, exchange_done, gold_done, last_run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scrape_date) DO UPDATE SET
			exchange_done = MAX(exchange_done, excluded.exchange_done),
			gold_done = MAX(gold_done, excluded.gold_done),
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at
	`, day.Format(dayFormat), cov.Exchange, cov.Gold, runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mark scrape history: %w", err)
	}
	return nil
}

// Credential looks up a credential value. The second return is false when
// the key is not present.
func (s *Store) Credential(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query credential: %w", err)
	}
	return value, true, nil
}

// SetCredential stores or replaces a credential.
func (s *Store) SetCredential(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// DeleteCredential removes a credential if present.
func (s *Store) DeleteCredential(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// StoreHolidays replaces the cached holidays for a year.
func (s *Store) StoreHolidays(ctx context.Context, year int, holidays []calendar.Holiday) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM holiday_cache WHERE year = ?`, year); err != nil {
		return fmt.Errorf("clear holiday cache: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, h := range holidays {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO holiday_cache (holiday_date, year, name, local_name, fetched_at)
			VALUES (?, ?, ?, ?, ?)
		`, h.Date, year, h.Name, h.LocalName, now); err != nil {
			return fmt.Errorf("cache holiday: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit holiday cache: %w", err)
	}
	return nil
}

// CachedHolidays returns cached holiday dates for a year, regardless of age.
func (s *Store) CachedHolidays(ctx context.Context, year int) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT holiday_date FROM holiday_cache WHERE year = ? ORDER BY holiday_date`, year)
	if err != nil {
		return nil, fmt.Errorf("query holiday cache: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		day, parseErr := time.Parse(dayFormat, raw)
		if parseErr != nil {
			continue
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// HasFreshHolidays reports whether the cached holidays for a year are
// younger than ttl.
func (s *Store) HasFreshHolidays(ctx context.Context, year int, ttl time.Duration) (bool, error) {
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM holiday_cache WHERE year = ? LIMIT 1`, year,
	).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query holiday cache age: %w", err)
	}

	ts, parseErr := time.Parse(time.RFC3339, fetchedAt)
	if parseErr != nil {
		return false, nil
	}
	return time.Since(ts) < ttl, nil
}
