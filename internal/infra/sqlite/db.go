// Package sqlite provides SQLite-based persistent storage for Fluentia.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/fluentia/fluentia/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.ProgressStore and domain.NotificationStore.
type DB struct {
	db *sql.DB
}

var (
	_ domain.ProgressStore     = (*DB)(nil)
	_ domain.NotificationStore = (*DB)(nil)
)

// Open creates or opens the SQLite database at dir/progress.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return OpenPath(filepath.Join(dir, "progress.db"))
}

// OpenPath opens the database file at path.
func OpenPath(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Cumulative XP per user; level is a cached projection of xp_total.
		`CREATE TABLE IF NOT EXISTS user_xp_totals (
			user_id    TEXT PRIMARY KEY,
			xp_total   INTEGER NOT NULL DEFAULT 0 CHECK (xp_total >= 0),
			level      INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		)`,

		// Award ledger. The unique pair is the idempotence guarantee.
		`CREATE TABLE IF NOT EXISTS award_records (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			dedupe_key  TEXT NOT NULL,
			source      TEXT NOT NULL,
			source_slug TEXT NOT NULL DEFAULT '',
			session_id  TEXT NOT NULL DEFAULT '',
			xp_awarded  INTEGER NOT NULL CHECK (xp_awarded >= 0),
			created_at  INTEGER NOT NULL,
			UNIQUE (user_id, dedupe_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_awards_user_source ON award_records(user_id, source)`,

		// One row per (user, badge) unlock
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id    TEXT NOT NULL,
			badge_id   TEXT NOT NULL,
			awarded_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,

		`CREATE TABLE IF NOT EXISTS streaks (
			user_id            TEXT PRIMARY KEY,
			current_streak     INTEGER NOT NULL CHECK (current_streak >= 0),
			best_streak        INTEGER NOT NULL CHECK (best_streak >= current_streak),
			last_activity_date TEXT NOT NULL
		)`,

		// Notification log (policy: daily cap, quiet hours)
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user_created ON notifications(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAward(s scanner) (*domain.AwardRecord, error) {
	var r domain.AwardRecord
	var createdAt int64
	err := s.Scan(&r.ID, &r.UserID, &r.DedupeKey, &r.Source, &r.SourceSlug,
		&r.SessionID, &r.XPAwarded, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return t, nil
}
