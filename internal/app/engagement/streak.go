// Package engagement implements the Fluentia progression engine.
// Levels, streaks, the award ledger, badges, and notifications.
// Correctness under concurrency is delegated to the store's atomic
// operations; nothing here holds a lock.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// CivilDate truncates t to midnight of its UTC calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", domain.ErrInvalidArgument, s, err)
	}
	return t, nil
}

// AdvanceStreak applies one day of activity to prev, which may be nil.
//
//   - no previous record: streak of 1
//   - same day: unchanged
//   - the day after: +1, best raised if needed
//   - anything else, including a last date after today: reset to 1
func AdvanceStreak(prev *domain.StreakRecord, today time.Time) (domain.StreakRecord, error) {
	if today.IsZero() {
		return domain.StreakRecord{}, fmt.Errorf("%w: activity date is required", domain.ErrInvalidArgument)
	}
	today = CivilDate(today)

	if prev == nil {
		return domain.StreakRecord{CurrentStreak: 1, BestStreak: 1, LastActivityDate: today}, nil
	}

	next := *prev
	last := CivilDate(prev.LastActivityDate)
	switch days := int(today.Sub(last).Hours() / 24); {
	case days == 0:
		return next, nil
	case days == 1:
		next.CurrentStreak = prev.CurrentStreak + 1
	default:
		next.CurrentStreak = 1
	}
	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}
	next.LastActivityDate = today
	return next, nil
}

// StreakService persists per-user daily streaks.
// Streaks break silently; nothing nags the user about an expiring streak.
type StreakService struct {
	store domain.ProgressStore
	log   *logger.Logger
}

// NewStreakService creates a streak service.
func NewStreakService(store domain.ProgressStore, log *logger.Logger) *StreakService {
	if log == nil {
		log = logger.Nop()
	}
	return &StreakService{store: store, log: log.With("service", "streak")}
}

// Current returns the user's streak, or a zero record if they have none.
func (s *StreakService) Current(ctx context.Context, userID string) (domain.StreakRecord, error) {
	if userID == "" {
		return domain.StreakRecord{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}
	rec, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("%w: get streak: %w", domain.ErrStorage, err)
	}
	if rec == nil {
		return domain.StreakRecord{UserID: userID}, nil
	}
	return *rec, nil
}

// Record advances the user's streak for day and persists it.
// A second call on the same day does not write.
func (s *StreakService) Record(ctx context.Context, userID string, day time.Time) (domain.StreakRecord, error) {
	if userID == "" {
		return domain.StreakRecord{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}
	prev, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return domain.StreakRecord{}, fmt.Errorf("%w: get streak: %w", domain.ErrStorage, err)
	}

	next, err := AdvanceStreak(prev, day)
	if err != nil {
		return domain.StreakRecord{}, err
	}
	next.UserID = userID

	if prev != nil && *prev == next {
		return next, nil
	}
	if err := s.store.PutStreak(ctx, next); err != nil {
		return domain.StreakRecord{}, fmt.Errorf("%w: put streak: %w", domain.ErrStorage, err)
	}

	if prev != nil && next.CurrentStreak == 1 && prev.CurrentStreak > 1 {
		s.log.Debug("streak reset", "user_id", userID, "previous", prev.CurrentStreak)
	}
	return next, nil
}
