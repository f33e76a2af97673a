package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// EvaluateRule interprets one unlock rule against facts.
// Unknown kinds never match.
func EvaluateRule(rule domain.UnlockRule, facts domain.ProgressFacts) bool {
	switch rule.Kind {
	case domain.RuleXPAtLeast:
		return facts.XPTotal >= rule.Value
	case domain.RuleLevelAtLeast:
		return int64(facts.Level) >= rule.Value
	case domain.RuleStreakAtLeast:
		return int64(facts.CurrentStreak) >= rule.Value
	case domain.RuleBestStreakAtLeast:
		return int64(facts.BestStreak) >= rule.Value
	case domain.RuleActivitiesAtLeast:
		if rule.Source != "" {
			return facts.Activities[rule.Source] >= rule.Value
		}
		return facts.TotalActivities() >= rule.Value
	default:
		return false
	}
}

// BadgeEvaluator unlocks badges whose rules hold.
// Safe to call after every award; each call reports only new unlocks.
type BadgeEvaluator struct {
	store       domain.ProgressStore
	definitions []domain.BadgeDefinition
	log         *logger.Logger
	now         func() time.Time
}

// NewBadgeEvaluator creates an evaluator over a catalog.
func NewBadgeEvaluator(store domain.ProgressStore, definitions []domain.BadgeDefinition, log *logger.Logger) *BadgeEvaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &BadgeEvaluator{
		store:       store,
		definitions: definitions,
		log:         log.With("service", "badges"),
		now:         time.Now,
	}
}

// EvaluateNewBadges inserts a UserBadge for every active definition that
// facts satisfy and returns those that were actually inserted. A concurrent
// evaluation that wins the insert keeps the badge out of this result.
func (b *BadgeEvaluator) EvaluateNewBadges(ctx context.Context, userID string, facts domain.ProgressFacts) ([]domain.BadgeDefinition, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}

	// Skips inserts for badges already held. The insert below is the guard.
	held, err := b.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list badges: %w", domain.ErrStorage, err)
	}
	earned := make(map[string]bool, len(held))
	for _, ub := range held {
		earned[ub.BadgeID] = true
	}

	unlocked := []domain.BadgeDefinition{}
	for _, def := range b.definitions {
		if !def.Active || earned[def.Slug] || !EvaluateRule(def.Rule, facts) {
			continue
		}
		isNew, err := b.store.InsertUserBadge(ctx, domain.UserBadge{
			UserID:    userID,
			BadgeID:   def.Slug,
			AwardedAt: b.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: insert badge %s: %w", domain.ErrStorage, def.Slug, err)
		}
		if isNew {
			b.log.Info("badge unlocked", "user_id", userID, "badge", def.Slug)
			unlocked = append(unlocked, def)
		}
	}
	return unlocked, nil
}

// Earned returns the definitions of badges the user holds, oldest first.
// Badges no longer in the catalog are reported by slug only.
func (b *BadgeEvaluator) Earned(ctx context.Context, userID string) ([]domain.BadgeDefinition, error) {
	held, err := b.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list badges: %w", domain.ErrStorage, err)
	}
	out := make([]domain.BadgeDefinition, 0, len(held))
	for _, ub := range held {
		def, ok := b.Lookup(ub.BadgeID)
		if !ok {
			def = domain.BadgeDefinition{Slug: ub.BadgeID, Title: ub.BadgeID}
		}
		out = append(out, def)
	}
	return out, nil
}

// Lookup finds a definition by slug.
func (b *BadgeEvaluator) Lookup(slug string) (domain.BadgeDefinition, bool) {
	for _, def := range b.definitions {
		if def.Slug == slug {
			return def, true
		}
	}
	return domain.BadgeDefinition{}, false
}

// Definitions returns the active catalog (for display).
func (b *BadgeEvaluator) Definitions() []domain.BadgeDefinition {
	out := make([]domain.BadgeDefinition, 0, len(b.definitions))
	for _, def := range b.definitions {
		if def.Active {
			out = append(out, def)
		}
	}
	return out
}

// Facts snapshots what badge rules can see for a user.
func Facts(ctx context.Context, store domain.ProgressStore, userID string) (domain.ProgressFacts, error) {
	total, err := store.GetXPTotal(ctx, userID)
	if err != nil {
		return domain.ProgressFacts{}, fmt.Errorf("%w: get xp total: %w", domain.ErrStorage, err)
	}
	streak, err := store.GetStreak(ctx, userID)
	if err != nil {
		return domain.ProgressFacts{}, fmt.Errorf("%w: get streak: %w", domain.ErrStorage, err)
	}
	counts, err := store.ActivityCounts(ctx, userID)
	if err != nil {
		return domain.ProgressFacts{}, fmt.Errorf("%w: activity counts: %w", domain.ErrStorage, err)
	}

	facts := domain.ProgressFacts{XPTotal: total.XPTotal, Level: total.Level, Activities: counts}
	if streak != nil {
		facts.CurrentStreak = streak.CurrentStreak
		facts.BestStreak = streak.BestStreak
	}
	return facts, nil
}
