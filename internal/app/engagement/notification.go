package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
)

// NotificationService creates level-up and badge notifications.
// Policy:
//   - at most MaxPerDay per user per UTC day
//   - nothing between QuietStart and QuietEnd (UTC)
//   - only level-ups and badge unlocks; never streak reminders
type NotificationService struct {
	store  domain.NotificationStore
	policy domain.NotificationPolicy
	now    func() time.Time
}

// NewNotificationService creates a notification service with default policy.
func NewNotificationService(store domain.NotificationStore) *NotificationService {
	return NewNotificationServiceWithPolicy(store, domain.DefaultNotificationPolicy())
}

// NewNotificationServiceWithPolicy creates a notification service with custom policy.
func NewNotificationServiceWithPolicy(store domain.NotificationStore, policy domain.NotificationPolicy) *NotificationService {
	return &NotificationService{store: store, policy: policy, now: time.Now}
}

// SetClock replaces the time source used for quiet hours and the daily cap.
func (n *NotificationService) SetClock(now func() time.Time) {
	n.now = now
}

// Create stores notif if policy allows it.
// Returns the notification ID, or 0 when suppressed.
func (n *NotificationService) Create(ctx context.Context, notif domain.Notification) (int64, error) {
	now := n.now().UTC()

	if n.isQuietHour(now) {
		return 0, nil
	}

	dayStart := CivilDate(now)
	count, err := n.store.NotificationCountSince(ctx, notif.UserID, dayStart)
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}
	if n.policy.MaxPerDay > 0 && count >= n.policy.MaxPerDay {
		return 0, nil
	}

	notif.CreatedAt = now
	notif.Shown = false

	id, err := n.store.InsertNotification(ctx, notif)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

// LevelUp notifies the user of a new level.
func (n *NotificationService) LevelUp(ctx context.Context, userID string, level int) (int64, error) {
	return n.Create(ctx, domain.Notification{
		UserID: userID,
		Type:   domain.NotifyLevelUp,
		Title:  fmt.Sprintf("Level %d reached", level),
		Body:   fmt.Sprintf("You are now level %d. Keep practicing!", level),
	})
}

// BadgeUnlocked notifies the user of a new badge.
func (n *NotificationService) BadgeUnlocked(ctx context.Context, userID string, badge domain.BadgeSummary) (int64, error) {
	return n.Create(ctx, domain.Notification{
		UserID: userID,
		Type:   domain.NotifyBadge,
		Title:  "Badge unlocked: " + badge.Title,
		Body:   badge.Description,
	})
}

// Pending returns unshown notifications, newest first.
func (n *NotificationService) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return n.store.ListPendingNotifications(ctx, userID, limit)
}

// MarkShown marks a notification as shown.
func (n *NotificationService) MarkShown(ctx context.Context, userID string, id int64) error {
	return n.store.MarkNotificationShown(ctx, userID, id)
}

// Policy returns the current notification policy.
func (n *NotificationService) Policy() domain.NotificationPolicy {
	return n.policy
}

// isQuietHour reports whether t falls within quiet hours.
func (n *NotificationService) isQuietHour(t time.Time) bool {
	startHour, startMin := parseHHMM(n.policy.QuietStart)
	endHour, endMin := parseHHMM(n.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes == endMinutes {
		return false // no quiet window
	}
	if startMinutes > endMinutes {
		// Wraps midnight: e.g. 22:00 to 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// ValidateClock checks an "HH:MM" string.
func ValidateClock(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q is not HH:MM", domain.ErrInvalidArgument, s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%w: %q is not HH:MM", domain.ErrInvalidArgument, s)
	}
	return nil
}
