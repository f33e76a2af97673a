package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/infra/metrics"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// AwardRequest is one completed unit of practice.
type AwardRequest struct {
	UserID     string
	Source     string
	SourceSlug string
	SessionID  string
	DedupeKey  string
	Inputs     XPInputs
	// CompletedOn is the activity's completion time, used as the streak day.
	// Zero means now.
	CompletedOn time.Time
}

// DefaultDedupeKey builds the conventional "<source>:<slug>" key.
func DefaultDedupeKey(source, slug string) string {
	return source + ":" + slug
}

// Orchestrator runs the award sequence: ledger insert, atomic XP
// increment, level, badges. It holds no per-user state; concurrent awards
// are serialized by the store.
type Orchestrator struct {
	store   domain.ProgressStore
	curve   Curve
	policy  Policy
	ledger  *Ledger
	badges  *BadgeEvaluator
	streaks *StreakService
	notify  *NotificationService
	events  domain.EventPublisher
	log     *logger.Logger
	now     func() time.Time
}

// NewOrchestrator wires the award path over store.
func NewOrchestrator(store domain.ProgressStore, curve Curve, policy Policy, catalog []domain.BadgeDefinition, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		store:   store,
		curve:   curve,
		policy:  policy,
		ledger:  NewLedger(store),
		badges:  NewBadgeEvaluator(store, catalog, log),
		streaks: NewStreakService(store, log),
		log:     log.With("service", "award"),
		now:     time.Now,
	}
}

// SetNotifications enables level-up and badge notifications.
func (o *Orchestrator) SetNotifications(n *NotificationService) { o.notify = n }

// SetPublisher enables award events.
func (o *Orchestrator) SetPublisher(p domain.EventPublisher) { o.events = p }

// SetClock replaces the time source for ledger timestamps, badge unlocks
// and default completion dates.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	o.ledger.now = now
	o.badges.now = now
}

func (o *Orchestrator) Curve() Curve                        { return o.curve }
func (o *Orchestrator) Policy() Policy                      { return o.policy }
func (o *Orchestrator) Badges() *BadgeEvaluator             { return o.badges }
func (o *Orchestrator) Streaks() *StreakService             { return o.streaks }
func (o *Orchestrator) Notifications() *NotificationService { return o.notify }
func (o *Orchestrator) Store() domain.ProgressStore         { return o.store }

// outcome is what one award changed, before announcements.
type outcome struct {
	result    domain.AwardResult
	record    domain.AwardRecord
	leveledUp bool
}

// Award grants XP for req at most once per (user, dedupe key).
// A repeated key returns AlreadyCompleted with the current totals.
func (o *Orchestrator) Award(ctx context.Context, req AwardRequest) (domain.AwardResult, error) {
	start := time.Now()
	out, err := o.award(ctx, req)
	o.observe(req.Source, out, err, start)
	if err != nil {
		return domain.AwardResult{}, err
	}
	if !out.result.AlreadyCompleted {
		o.announce(ctx, req, out)
	}
	return out.result, nil
}

// Complete is Award followed, for a new award, by advancing the streak to
// the completion day and evaluating badges again so streak badges unlock.
func (o *Orchestrator) Complete(ctx context.Context, req AwardRequest) (domain.AwardResult, error) {
	start := time.Now()
	out, err := o.award(ctx, req)
	if err == nil && !out.result.AlreadyCompleted {
		o.advanceStreak(ctx, req, &out)
	}
	o.observe(req.Source, out, err, start)
	if err != nil {
		return domain.AwardResult{}, err
	}
	if !out.result.AlreadyCompleted {
		o.announce(ctx, req, out)
	}
	return out.result, nil
}

func (o *Orchestrator) award(ctx context.Context, req AwardRequest) (outcome, error) {
	// 1. Validate and price the activity.
	if req.UserID == "" {
		return outcome{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}
	if req.DedupeKey == "" {
		return outcome{}, fmt.Errorf("%w: dedupe_key is required", domain.ErrInvalidArgument)
	}
	delta, err := o.policy.XPFor(req.Source, req.Inputs)
	if err != nil {
		return outcome{}, err
	}

	// 2. Ledger insert. A duplicate short-circuits with current totals.
	lr, err := o.ledger.TryRecordAward(ctx, domain.AwardRecord{
		UserID:     req.UserID,
		DedupeKey:  req.DedupeKey,
		Source:     req.Source,
		SourceSlug: req.SourceSlug,
		SessionID:  req.SessionID,
		XPAwarded:  delta,
	})
	if err != nil {
		return outcome{}, err
	}
	if !lr.Inserted {
		return o.duplicate(ctx, req, lr.Record)
	}
	rec := lr.Record

	// 3. Atomic increment; the store caches the level in the same transaction.
	total, err := o.store.IncrementXP(ctx, req.UserID, delta, o.curve.LevelForXP)
	if err != nil {
		return outcome{}, o.fatal("increment xp", rec, err)
	}

	// 4. Level progress for the new total.
	progress, err := o.curve.Compute(total.XPTotal)
	if err != nil {
		return outcome{}, o.fatal("compute level", rec, err)
	}
	prevLevel := o.curve.LevelForXP(total.XPTotal - delta)

	// 5. Badges against a fresh snapshot. The XP is committed by now, so a
	// failure here is logged and the award still succeeds. Missed badges
	// unlock on the user's next award.
	unlocked, err := o.evaluate(ctx, req.UserID, total)
	if err != nil {
		o.degraded("evaluate badges", rec, err)
		unlocked = nil
	}

	o.log.Info("award granted",
		"user_id", req.UserID, "dedupe_key", req.DedupeKey, "award_id", rec.ID,
		"xp", delta, "xp_total", total.XPTotal, "level", progress.Level)

	// 6. Result.
	return outcome{
		result: domain.AwardResult{
			XPAwarded:          delta,
			XPTotal:            total.XPTotal,
			Level:              progress.Level,
			XPInCurrentLevel:   progress.XPInCurrentLevel,
			XPToNextLevel:      progress.XPToNextLevel,
			NewlyAwardedBadges: summaries(unlocked),
		},
		record:    rec,
		leveledUp: progress.Level > prevLevel,
	}, nil
}

func (o *Orchestrator) duplicate(ctx context.Context, req AwardRequest, existing domain.AwardRecord) (outcome, error) {
	total, err := o.store.GetXPTotal(ctx, req.UserID)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: read xp total: %w", domain.ErrStorage, err)
	}
	progress, err := o.curve.Compute(total.XPTotal)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: compute level: %w", domain.ErrStorage, err)
	}
	o.log.Debug("award already completed",
		"user_id", req.UserID, "dedupe_key", req.DedupeKey, "award_id", existing.ID)

	return outcome{
		result: domain.AwardResult{
			XPTotal:            total.XPTotal,
			Level:              progress.Level,
			XPInCurrentLevel:   progress.XPInCurrentLevel,
			XPToNextLevel:      progress.XPToNextLevel,
			NewlyAwardedBadges: []domain.BadgeSummary{},
			AlreadyCompleted:   true,
		},
		record: existing,
	}, nil
}

// advanceStreak runs after the XP is committed. Its failures are logged and
// leave Streak nil or the streak badges unevaluated; the award stands.
func (o *Orchestrator) advanceStreak(ctx context.Context, req AwardRequest, out *outcome) {
	day := req.CompletedOn
	if day.IsZero() {
		day = o.now()
	}
	streak, err := o.streaks.Record(ctx, req.UserID, day)
	if err != nil {
		o.degraded("advance streak", out.record, err)
		return
	}
	out.result.Streak = &streak

	total, err := o.store.GetXPTotal(ctx, req.UserID)
	if err != nil {
		o.degraded("read xp total", out.record, err)
		return
	}
	more, err := o.evaluate(ctx, req.UserID, total)
	if err != nil {
		o.degraded("evaluate streak badges", out.record, err)
		return
	}
	out.result.NewlyAwardedBadges = append(out.result.NewlyAwardedBadges, summaries(more)...)
}

func (o *Orchestrator) evaluate(ctx context.Context, userID string, total domain.UserXPTotal) ([]domain.BadgeDefinition, error) {
	facts, err := Facts(ctx, o.store, userID)
	if err != nil {
		return nil, err
	}
	// The snapshot may already include a later concurrent award; never go below ours.
	if facts.XPTotal < total.XPTotal {
		facts.XPTotal = total.XPTotal
		facts.Level = total.Level
	}
	return o.badges.EvaluateNewBadges(ctx, userID, facts)
}

// fatal reports a failure after the ledger insert committed. The award
// record stays without its XP; the reconciler surfaces it. No retry.
func (o *Orchestrator) fatal(step string, rec domain.AwardRecord, err error) error {
	o.log.Error("award failed after ledger insert",
		"step", step, "award_id", rec.ID, "user_id", rec.UserID,
		"dedupe_key", rec.DedupeKey, "xp", rec.XPAwarded, "error", err)
	if errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%s for award %s: %w", step, rec.ID, err)
	}
	return fmt.Errorf("%w: %s for award %s: %w", domain.ErrStorage, step, rec.ID, err)
}

// degraded reports a failure after the XP increment committed.
func (o *Orchestrator) degraded(step string, rec domain.AwardRecord, err error) {
	o.log.Error("award follow-up failed",
		"step", step, "award_id", rec.ID, "user_id", rec.UserID,
		"dedupe_key", rec.DedupeKey, "error", err)
}

// announce sends notifications and the award event. Failures are logged
// and never affect the award.
func (o *Orchestrator) announce(ctx context.Context, req AwardRequest, out outcome) {
	res := out.result
	for _, b := range res.NewlyAwardedBadges {
		metrics.BadgesUnlocked.WithLabelValues(b.Slug).Inc()
	}

	if o.notify != nil {
		if out.leveledUp {
			if _, err := o.notify.LevelUp(ctx, req.UserID, res.Level); err != nil {
				o.log.Warn("level-up notification failed", "user_id", req.UserID, "error", err)
			}
		}
		for _, b := range res.NewlyAwardedBadges {
			if _, err := o.notify.BadgeUnlocked(ctx, req.UserID, b); err != nil {
				o.log.Warn("badge notification failed", "user_id", req.UserID, "badge", b.Slug, "error", err)
			}
		}
	}

	if o.events != nil {
		ev := domain.AwardEvent{
			UserID:     req.UserID,
			DedupeKey:  req.DedupeKey,
			Source:     req.Source,
			XPAwarded:  res.XPAwarded,
			XPTotal:    res.XPTotal,
			Level:      res.Level,
			LeveledUp:  out.leveledUp,
			Badges:     res.NewlyAwardedBadges,
			OccurredAt: o.now().UTC(),
		}
		if err := o.events.Publish(ctx, ev); err != nil {
			o.log.Warn("publish award event failed", "user_id", req.UserID, "error", err)
		}
	}
}

func (o *Orchestrator) observe(source string, out outcome, err error, start time.Time) {
	metrics.AwardLatency.Observe(time.Since(start).Seconds())
	if _, ok := o.policy.Sources[source]; !ok {
		source = "unknown"
	}
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.AwardsTotal.WithLabelValues(source, metrics.OutcomeInvalid).Inc()
	case err != nil:
		metrics.AwardsTotal.WithLabelValues(source, metrics.OutcomeFailed).Inc()
	case out.result.AlreadyCompleted:
		metrics.AwardsTotal.WithLabelValues(source, metrics.OutcomeDuplicate).Inc()
	default:
		metrics.AwardsTotal.WithLabelValues(source, metrics.OutcomeGranted).Inc()
		metrics.XPAwarded.WithLabelValues(source).Add(float64(out.result.XPAwarded))
	}
}

func summaries(defs []domain.BadgeDefinition) []domain.BadgeSummary {
	out := make([]domain.BadgeSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Summary())
	}
	return out
}
