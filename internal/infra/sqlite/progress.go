package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
)

// ─── Badges ─────────────────────────────────────────────────────────────────

// InsertUserBadge records a badge as awarded.
// Returns false if already awarded (idempotent).
func (d *DB) InsertUserBadge(ctx context.Context, ub domain.UserBadge) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_id, awarded_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, badge_id) DO NOTHING`,
		ub.UserID, ub.BadgeID, ub.AwardedAt.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil // true = newly awarded
}

// ListUserBadges returns the user's badges, oldest first.
func (d *DB) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, badge_id, awarded_at FROM user_badges
		 WHERE user_id = ? ORDER BY awarded_at ASC, badge_id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []domain.UserBadge
	for rows.Next() {
		var b domain.UserBadge
		var at int64
		if err := rows.Scan(&b.UserID, &b.BadgeID, &at); err != nil {
			return nil, err
		}
		b.AwardedAt = time.Unix(at, 0).UTC()
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// GetStreak loads a user's streak. Returns nil if the user has none.
func (d *DB) GetStreak(ctx context.Context, userID string) (*domain.StreakRecord, error) {
	var s domain.StreakRecord
	var last string
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id, current_streak, best_streak, last_activity_date FROM streaks WHERE user_id = ?`,
		userID,
	).Scan(&s.UserID, &s.CurrentStreak, &s.BestStreak, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.LastActivityDate, err = parseDate(last); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutStreak replaces the user's streak record.
func (d *DB) PutStreak(ctx context.Context, rec domain.StreakRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO streaks (user_id, current_streak, best_streak, last_activity_date)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			current_streak=excluded.current_streak,
			best_streak=excluded.best_streak,
			last_activity_date=excluded.last_activity_date`,
		rec.UserID, rec.CurrentStreak, rec.BestStreak, rec.LastActivityDate.UTC().Format(domain.DateLayout),
	)
	return err
}
