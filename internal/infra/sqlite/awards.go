package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
)

const awardColumns = `id, user_id, dedupe_key, source, source_slug, session_id, xp_awarded, created_at`

// ─── Award Ledger ───────────────────────────────────────────────────────────

// InsertAwardRecord inserts a ledger entry, or returns the existing one.
// Uses ON CONFLICT(user_id, dedupe_key) DO NOTHING; the insert is the
// synchronization point. When no row was inserted the existing record is
// read back in the same transaction.
func (d *DB) InsertAwardRecord(ctx context.Context, rec domain.AwardRecord) (domain.AwardRecord, bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx,
		`INSERT INTO award_records (`+awardColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, dedupe_key) DO NOTHING`,
		rec.ID, rec.UserID, rec.DedupeKey, rec.Source, rec.SourceSlug,
		rec.SessionID, rec.XPAwarded, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: rows affected: %w", err)
	}

	stored := rec
	inserted := n > 0
	if !inserted {
		existing, err := scanAward(tx.QueryRowContext(ctx,
			`SELECT `+awardColumns+` FROM award_records WHERE user_id = ? AND dedupe_key = ?`,
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

	if err := tx.Commit(); err != nil {
		return domain.AwardRecord{}, false, fmt.Errorf("insert award: commit: %w", err)
	}
	return stored, inserted, nil
}

// GetAwardRecord retrieves a ledger entry. Returns nil if absent.
func (d *DB) GetAwardRecord(ctx context.Context, userID, dedupeKey string) (*domain.AwardRecord, error) {
	return scanAward(d.db.QueryRowContext(ctx,
		`SELECT `+awardColumns+` FROM award_records WHERE user_id = ? AND dedupe_key = ?`,
		userID, dedupeKey,
	))
}

// ActivityCounts returns completed awards grouped by source.
func (d *DB) ActivityCounts(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM award_records WHERE user_id = ? GROUP BY source`, userID,
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

// IncrementXP adds delta with an upsert-and-return, then caches the level.
// Both statements run in one transaction, so the cached level always
// matches the committed total.
func (d *DB) IncrementXP(ctx context.Context, userID string, delta int64, levelFor func(int64) int) (domain.UserXPTotal, error) {
	now := time.Now().UTC()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_xp_totals (user_id, xp_total, level, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			xp_total = xp_total + excluded.xp_total,
			updated_at = excluded.updated_at
		 RETURNING xp_total`,
		userID, delta, now.Unix(),
	).Scan(&total)
	if err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: %w", err)
	}

	level := levelFor(total)
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_xp_totals SET level = ? WHERE user_id = ?`, level, userID,
	); err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: cache level: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.UserXPTotal{}, fmt.Errorf("increment xp: commit: %w", err)
	}
	return domain.UserXPTotal{UserID: userID, XPTotal: total, Level: level, UpdatedAt: now.Truncate(time.Second)}, nil
}

// GetXPTotal returns the user's total, or a zero total at level 1.
func (d *DB) GetXPTotal(ctx context.Context, userID string) (domain.UserXPTotal, error) {
	t := domain.UserXPTotal{UserID: userID, Level: 1}
	var updatedAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT xp_total, level, updated_at FROM user_xp_totals WHERE user_id = ?`, userID,
	).Scan(&t.XPTotal, &t.Level, &updatedAt)
	if err == sql.ErrNoRows {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return t, nil
}

// LedgerDiscrepancies lists users whose ledger sum differs from xp_total.
// Awards still in flight between ledger insert and increment show up too.
func (d *DB) LedgerDiscrepancies(ctx context.Context) ([]domain.XPDiscrepancy, error) {
	rows, err := d.db.QueryContext(ctx, discrepancyQuery)
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

// discrepancyQuery is portable between SQLite and Postgres.
const discrepancyQuery = `
	SELECT t.user_id, COALESCE(SUM(a.xp_awarded), 0), t.xp_total
	  FROM user_xp_totals t
	  LEFT JOIN award_records a ON a.user_id = t.user_id
	 GROUP BY t.user_id, t.xp_total
	HAVING COALESCE(SUM(a.xp_awarded), 0) <> t.xp_total
	UNION ALL
	SELECT a.user_id, SUM(a.xp_awarded), 0
	  FROM award_records a
	 WHERE NOT EXISTS (SELECT 1 FROM user_xp_totals t WHERE t.user_id = a.user_id)
	 GROUP BY a.user_id
	HAVING SUM(a.xp_awarded) <> 0
	ORDER BY 1`
