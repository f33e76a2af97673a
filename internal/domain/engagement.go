// Package domain holds the progression engine's core types.
// XP totals, the award ledger, badges, streaks, and notifications.
// No infrastructure dependency: stores and transports import this package,
// never the other way round.
package domain

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire and storage format for civil (UTC) dates.
const DateLayout = "2006-01-02"

// ─── XP / Level Types ───────────────────────────────────────────────────────

// UserXPTotal is the per-user cumulative XP row. Level is cached for reads.
type UserXPTotal struct {
	UserID    string    `json:"user_id"`
	XPTotal   int64     `json:"xp_total"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LevelProgress is the Level Curve's answer for a given XP total.
type LevelProgress struct {
	Level            int   `json:"level"`
	XPInCurrentLevel int64 `json:"xp_in_current_level"`
	XPToNextLevel    int64 `json:"xp_to_next_level"`
}

// ─── Award Ledger Types ─────────────────────────────────────────────────────

// AwardRecord is one ledger entry. (UserID, DedupeKey) is unique.
type AwardRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DedupeKey  string    `json:"dedupe_key"` // "<source>:<content_slug>"
	Source     string    `json:"source"`
	SourceSlug string    `json:"source_slug"`
	SessionID  string    `json:"session_id"`
	XPAwarded  int64     `json:"xp_awarded"`
	CreatedAt  time.Time `json:"created_at"`
}

// XPDiscrepancy reports a user whose ledger sum differs from the XP total.
type XPDiscrepancy struct {
	UserID   string `json:"user_id"`
	LedgerXP int64  `json:"ledger_xp"`
	TotalXP  int64  `json:"total_xp"`
}

// ─── Badge Types ────────────────────────────────────────────────────────────

// RuleKind tags an unlock predicate.
type RuleKind string

const (
	RuleXPAtLeast         RuleKind = "xp_at_least"
	RuleLevelAtLeast      RuleKind = "level_at_least"
	RuleStreakAtLeast     RuleKind = "streak_at_least"
	RuleBestStreakAtLeast RuleKind = "best_streak_at_least"
	RuleActivitiesAtLeast RuleKind = "activities_at_least"
)

// UnlockRule is a small tagged predicate over ProgressFacts.
// Source narrows activities_at_least to one activity type.
type UnlockRule struct {
	Kind   RuleKind `json:"kind" yaml:"kind"`
	Value  int64    `json:"value" yaml:"value"`
	Source string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// BadgeDefinition is read-only reference data owned by content administration.
type BadgeDefinition struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Rule        UnlockRule `json:"unlock_rule"`
	Active      bool       `json:"is_active"`
}

// Summary returns the wire shape used in award responses.
func (b BadgeDefinition) Summary() BadgeSummary {
	return BadgeSummary{Slug: b.Slug, Title: b.Title, Description: b.Description}
}

// BadgeSummary is the {slug, title, description} triple returned to clients.
type BadgeSummary struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UserBadge marks an unlock. (UserID, BadgeID) is unique; BadgeID is the slug.
type UserBadge struct {
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// ProgressFacts is the snapshot fed to badge predicates.
type ProgressFacts struct {
	XPTotal       int64            `json:"xp_total"`
	Level         int              `json:"level"`
	CurrentStreak int              `json:"current_streak"`
	BestStreak    int              `json:"best_streak"`
	Activities    map[string]int64 `json:"activities"` // completed awards per source
}

// TotalActivities sums completed awards across all sources.
func (f ProgressFacts) TotalActivities() int64 {
	var n int64
	for _, c := range f.Activities {
		n += c
	}
	return n
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakRecord tracks consecutive UTC civil days with at least one activity.
// BestStreak >= CurrentStreak always holds.
type StreakRecord struct {
	UserID           string    `json:"user_id"`
	CurrentStreak    int       `json:"current_streak"`
	BestStreak       int       `json:"best_streak"`
	LastActivityDate time.Time `json:"-"` // UTC midnight
}

// MarshalJSON renders LastActivityDate as a civil date.
func (s StreakRecord) MarshalJSON() ([]byte, error) {
	type alias StreakRecord
	var last string
	if !s.LastActivityDate.IsZero() {
		last = s.LastActivityDate.UTC().Format(DateLayout)
	}
	return json.Marshal(struct {
		alias
		LastActivityDate string `json:"last_activity_date"`
	}{alias(s), last})
}

// ─── Award Orchestration Types ──────────────────────────────────────────────

// AwardResult describes everything one award changed.
type AwardResult struct {
	XPAwarded          int64          `json:"xp_awarded"`
	XPTotal            int64          `json:"xp_total"`
	Level              int            `json:"level"`
	XPInCurrentLevel   int64          `json:"xp_in_current_level"`
	XPToNextLevel      int64          `json:"xp_to_next_level"`
	NewlyAwardedBadges []BadgeSummary `json:"newly_awarded_badges"`
	AlreadyCompleted   bool           `json:"already_completed"`
	Streak             *StreakRecord  `json:"streak,omitempty"`
}

// AwardEvent is published after a non-duplicate award.
type AwardEvent struct {
	UserID     string         `json:"user_id"`
	DedupeKey  string         `json:"dedupe_key"`
	Source     string         `json:"source"`
	XPAwarded  int64          `json:"xp_awarded"`
	XPTotal    int64          `json:"xp_total"`
	Level      int            `json:"level"`
	LeveledUp  bool           `json:"leveled_up"`
	Badges     []BadgeSummary `json:"badges"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyLevelUp NotificationType = "level_up"
	NotifyBadge   NotificationType = "badge"
)

// Notification is a user-facing message.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}

// NotificationPolicy governs how often notifications are created per user.
type NotificationPolicy struct {
	MaxPerDay  int    `json:"max_per_day"`
	QuietStart string `json:"quiet_start"` // "22:00", UTC
	QuietEnd   string `json:"quiet_end"`   // "08:00", UTC
}

// DefaultNotificationPolicy returns the default policy: a few per day, quiet overnight.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay:  3,
		QuietStart: "22:00",
		QuietEnd:   "08:00",
	}
}
