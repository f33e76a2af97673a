// Package postgres provides a PostgreSQL-backed progress store for
// deployments that run more than one API process against shared state.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluentia/fluentia/internal/domain"
)

// Store implements domain.ProgressStore and domain.NotificationStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProgressStore     = (*Store)(nil)
	_ domain.NotificationStore = (*Store)(nil)
)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_xp_totals (
			user_id    TEXT PRIMARY KEY,
			xp_total   BIGINT NOT NULL DEFAULT 0 CHECK (xp_total >= 0),
			level      INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS award_records (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			dedupe_key  TEXT NOT NULL,
			source      TEXT NOT NULL,
			source_slug TEXT NOT NULL DEFAULT '',
			session_id  TEXT NOT NULL DEFAULT '',
			xp_awarded  BIGINT NOT NULL CHECK (xp_awarded >= 0),
			created_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, dedupe_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_awards_user_source ON award_records(user_id, source)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id    TEXT NOT NULL,
			badge_id   TEXT NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			user_id            TEXT PRIMARY KEY,
			current_streak     INTEGER NOT NULL CHECK (current_streak >= 0),
			best_streak        INTEGER NOT NULL CHECK (best_streak >= current_streak),
			last_activity_date DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			shown      BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user_created ON notifications(user_id, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Award Ledger ───────────────────────────────────────────────────────────

const awardColumns = `id, user_id, dedupe_key, source, source_slug, session_id, xp_awarded, created_at`

func (s *Store) InsertAwardRecord(ctx context.Context, rec domain.AwardRecord) (domain.AwardRecord, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO award_records (`+awardColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, dedupe_key) DO NOTHING`,
		rec.ID, rec.UserID, rec.DedupeKey, rec.Source, rec.SourceSlug,
		rec.SessionID, rec.XPAwarded, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: %w", mapError(err))
	}

	stored := rec
	inserted := tag.RowsAffected() > 0
	if !inserted {
		existing, err := scanAward(tx.QueryRow(ctx,
			`SELECT `+awardColumns+` FROM award_records WHERE user_id = $1 AND dedupe_key = $2`,
			rec.UserID, rec.DedupeKey,
		))
		if err != nil {
			return domain.AwardRecord{}, false, fmt.Errorf("insert award: select existing: %w", err)
		}
		if existing == nil {
			return domain.AwardRecord{}, false, fmt.Errorf("insert award: conflict on %s but no row", rec.DedupeKey)
		}
		stored = *existing
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: commit: %w", err)
	}
	return stored, inserted, nil
}

func (s *Store) GetAwardRecord(ctx context.Context, userID, dedupeKey string) (*domain.AwardRecord, error) {
	return scanAward(s.pool.QueryRow(ctx,
		`SELECT `+awardColumns+` FROM award_records WHERE user_id = $1 AND dedupe_key = $2`,
		userID, dedupeKey,
	))
}

func (s *Store) ActivityCounts(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, COUNT(*) FROM award_records WHERE user_id = $1 GROUP BY source`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

// ─── XP Totals ──────────────────────────────────────────────────────────────

// IncrementXP relies on the row lock taken by the upsert; concurrent
// increments for the same user queue behind it until commit.
func (s *Store) IncrementXP(ctx context.Context, userID string, delta int64, levelFor func(int64) int) (domain.UserXPTotal, error) {
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	err = tx.QueryRow(ctx,
		`INSERT INTO user_xp_totals (user_id, xp_total, level, updated_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
			xp_total = user_xp_totals.xp_total + EXCLUDED.xp_total,
			updated_at = EXCLUDED.updated_at
		 RETURNING xp_total`,
		userID, delta, now,
	).Scan(&total)
	if err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: %w", mapError(err))
	}

	level := levelFor(total)
	if _, err := tx.Exec(ctx,
		`UPDATE user_xp_totals SET level = $1 WHERE user_id = $2`, level, userID,
	); err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: cache level: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: commit: %w", mapError(err))
	}
	return domain.UserXPTotal{UserID: userID, XPTotal: total, Level: level, UpdatedAt: now}, nil
}

func (s *Store) GetXPTotal(ctx context.Context, userID string) (domain.UserXPTotal, error) {
	t := domain.UserXPTotal{UserID: userID, Level: 1}
	err := s.pool.QueryRow(ctx,
		`SELECT xp_total, level, updated_at FROM user_xp_totals WHERE user_id = $1`, userID,
	).Scan(&t.XPTotal, &t.Level, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, nil
	}
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, err
}

func (s *Store) LedgerDiscrepancies(ctx context.Context) ([]domain.XPDiscrepancy, error) {
	rows, err := s.pool.Query(ctx, discrepancyQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPDiscrepancy
	for rows.Next() {
		var x domain.XPDiscrepancy
		if err := rows.Scan(&x.UserID, &x.LedgerXP, &x.TotalXP); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// Postgres SUM(bigint) yields numeric; cast back so it scans into int64.
const discrepancyQuery = `
	SELECT t.user_id, COALESCE(SUM(a.xp_awarded), 0)::BIGINT, t.xp_total
	  FROM user_xp_totals t
	  LEFT JOIN award_records a ON a.user_id = t.user_id
	 GROUP BY t.user_id, t.xp_total
	HAVING COALESCE(SUM(a.xp_awarded), 0) <> t.xp_total
	UNION ALL
	SELECT a.user_id, SUM(a.xp_awarded)::BIGINT, 0::BIGINT
	  FROM award_records a
	 WHERE NOT EXISTS (SELECT 1 FROM user_xp_totals t WHERE t.user_id = a.user_id)
	 GROUP BY a.user_id
	HAVING SUM(a.xp_awarded) <> 0
	ORDER BY 1`

// ─── Badges ─────────────────────────────────────────────────────────────────

func (s *Store) InsertUserBadge(ctx context.Context, ub domain.UserBadge) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_badges (user_id, badge_id, awarded_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		ub.UserID, ub.BadgeID, ub.AwardedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, badge_id, awarded_at FROM user_badges
		 WHERE user_id = $1 ORDER BY awarded_at ASC, badge_id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []domain.UserBadge
	for rows.Next() {
		var b domain.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeID, &b.AwardedAt); err != nil {
			return nil, err
		}
		b.AwardedAt = b.AwardedAt.UTC()
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Store) GetStreak(ctx context.Context, userID string) (*domain.StreakRecord, error) {
	var rec domain.StreakRecord
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, current_streak, best_streak, last_activity_date FROM streaks WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.CurrentStreak, &rec.BestStreak, &rec.LastActivityDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := rec.LastActivityDate
	rec.LastActivityDate = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &rec, nil
}

func (s *Store) PutStreak(ctx context.Context, rec domain.StreakRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO streaks (user_id, current_streak, best_streak, last_activity_date)
		 VALUES ($1, $2, $3, $4::DATE)
		 ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak,
			last_activity_date = EXCLUDED.last_activity_date`,
		rec.UserID, rec.CurrentStreak, rec.BestStreak, rec.LastActivityDate.UTC().Format(domain.DateLayout),
	)
	return err
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, body, created_at, shown)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		n.UserID, string(n.Type), n.Title, n.Body, n.CreatedAt.UTC(), n.Shown,
	).Scan(&id)
	return id, err
}

func (s *Store) NotificationCountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC(),
	).Scan(&count)
	return count, err
}

func (s *Store) ListPendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown
		 FROM notifications WHERE user_id = $1 AND shown = FALSE
		 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.CreatedAt, &n.Shown); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = n.CreatedAt.UTC()
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func (s *Store) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET shown = TRUE WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func scanAward(row pgx.Row) (*domain.AwardRecord, error) {
	var r domain.AwardRecord
	err := row.Scan(&r.ID, &r.UserID, &r.DedupeKey, &r.Source, &r.SourceSlug,
		&r.SessionID, &r.XPAwarded, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}

// mapError tags unique violations as conflicts. Serialization failures and
// deadlocks stay plain storage errors.
func mapError(err error) error {
	if isUniqueViolation(err) {
		return errors.Join(domain.ErrConflict, err)
	}
	return err
}
