package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProgressStore is the persistent store collaborator.
// Implemented by infra/sqlite.DB and infra/postgres.Store.
//
// Every mutating method is a single atomic operation at the store level;
// no caller performs check-then-insert or read-modify-write.
type ProgressStore interface {
	// InsertAwardRecord attempts the unique-constrained insert on
	// (user_id, dedupe_key). On conflict it returns the pre-existing
	// record and inserted=false.
	InsertAwardRecord(ctx context.Context, rec AwardRecord) (stored AwardRecord, inserted bool, err error)

	// GetAwardRecord returns nil when no record exists.
	GetAwardRecord(ctx context.Context, userID, dedupeKey string) (*AwardRecord, error)

	// IncrementXP atomically adds delta to the user's total, creating the
	// row on first award, and caches levelFor(newTotal) in the same transaction.
	IncrementXP(ctx context.Context, userID string, delta int64, levelFor func(int64) int) (UserXPTotal, error)

	// GetXPTotal returns the zero total (level 1) for an unknown user.
	GetXPTotal(ctx context.Context, userID string) (UserXPTotal, error)

	// ActivityCounts returns completed awards per source.
	ActivityCounts(ctx context.Context, userID string) (map[string]int64, error)

	// InsertUserBadge returns inserted=false when the badge was already awarded.
	InsertUserBadge(ctx context.Context, ub UserBadge) (inserted bool, err error)
	ListUserBadges(ctx context.Context, userID string) ([]UserBadge, error)

	// GetStreak returns nil when the user has no streak yet.
	GetStreak(ctx context.Context, userID string) (*StreakRecord, error)
	PutStreak(ctx context.Context, rec StreakRecord) error

	// LedgerDiscrepancies lists users whose ledger sum differs from xp_total.
	LedgerDiscrepancies(ctx context.Context) ([]XPDiscrepancy, error)

	Ping(ctx context.Context) error
	Close() error
}

// NotificationStore persists per-user notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (int64, error)
	NotificationCountSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListPendingNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	// MarkNotificationShown returns ErrNotFound if no such notification belongs to userID.
	MarkNotificationShown(ctx context.Context, userID string, id int64) error
}

// EventPublisher fans award events out to other processes.
// Implemented by infra/events.
type EventPublisher interface {
	Publish(ctx context.Context, ev AwardEvent) error
	Close() error
}
