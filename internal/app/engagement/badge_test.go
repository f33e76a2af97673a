package engagement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/domain"
)

func TestEvaluateRule(t *testing.T) {
	facts := domain.ProgressFacts{
		XPTotal:       150,
		Level:         4,
		CurrentStreak: 3,
		BestStreak:    8,
		Activities:    map[string]int64{"grammar": 2, "vocabulary": 5},
	}

	tests := []struct {
		rule domain.UnlockRule
		want bool
	}{
		{domain.UnlockRule{Kind: domain.RuleXPAtLeast, Value: 150}, true},
		{domain.UnlockRule{Kind: domain.RuleXPAtLeast, Value: 151}, false},
		{domain.UnlockRule{Kind: domain.RuleLevelAtLeast, Value: 4}, true},
		{domain.UnlockRule{Kind: domain.RuleLevelAtLeast, Value: 5}, false},
		{domain.UnlockRule{Kind: domain.RuleStreakAtLeast, Value: 3}, true},
		{domain.UnlockRule{Kind: domain.RuleStreakAtLeast, Value: 7}, false},
		{domain.UnlockRule{Kind: domain.RuleBestStreakAtLeast, Value: 7}, true},
		{domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 7}, true},
		{domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 8}, false},
		{domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 5, Source: "vocabulary"}, true},
		{domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 3, Source: "grammar"}, false},
		{domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 1, Source: "story"}, false},
		{domain.UnlockRule{Kind: "moon_phase", Value: 0}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engagement.EvaluateRule(tt.rule, facts), "rule %+v", tt.rule)
	}
}

func TestParseCatalog(t *testing.T) {
	defs, err := engagement.ParseCatalog([]byte(`
badges:
  - slug: first-steps
    title: First Steps
    description: Complete your first activity.
    rule: {kind: activities_at_least, value: 1}
  - slug: retired
    title: Retired
    rule: {kind: xp_at_least, value: 1}
    active: false
`))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.True(t, defs[0].Active)
	assert.Equal(t, domain.RuleActivitiesAtLeast, defs[0].Rule.Kind)
	assert.False(t, defs[1].Active)
}

func TestParseCatalog_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `badges: [{slug: a, rule: {kind: moon_phase, value: 1}}]`,
		"no slug":      `badges: [{title: A, rule: {kind: xp_at_least, value: 1}}]`,
		"duplicate":    `badges: [{slug: a, rule: {kind: xp_at_least, value: 1}}, {slug: a, rule: {kind: xp_at_least, value: 2}}]`,
		"negative":     `badges: [{slug: a, rule: {kind: xp_at_least, value: -1}}]`,
		"not yaml":     `badges: [`,
	}
	for name, doc := range cases {
		_, err := engagement.ParseCatalog([]byte(doc))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, name)
	}
}

func TestDefaultCatalog(t *testing.T) {
	defs, err := engagement.DefaultCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, defs)

	slugs := make(map[string]bool)
	for _, d := range defs {
		slugs[d.Slug] = true
	}
	assert.True(t, slugs["first-steps"])
	assert.True(t, slugs["streak-7"])
}

func testCatalog() []domain.BadgeDefinition {
	return []domain.BadgeDefinition{
		{Slug: "first-steps", Title: "First Steps", Description: "Complete your first activity.",
			Rule: domain.UnlockRule{Kind: domain.RuleActivitiesAtLeast, Value: 1}, Active: true},
		{Slug: "xp-100", Title: "Century", Description: "Earn 100 XP.",
			Rule: domain.UnlockRule{Kind: domain.RuleXPAtLeast, Value: 100}, Active: true},
		{Slug: "streak-2", Title: "Two Days", Description: "Practice two days in a row.",
			Rule: domain.UnlockRule{Kind: domain.RuleStreakAtLeast, Value: 2}, Active: true},
		{Slug: "hidden", Title: "Hidden", Description: "Inactive.",
			Rule: domain.UnlockRule{Kind: domain.RuleXPAtLeast, Value: 0}, Active: false},
	}
}

func TestEvaluateNewBadges_NonRepetition(t *testing.T) {
	db := testDB(t)
	ev := engagement.NewBadgeEvaluator(db, testCatalog(), nil)
	ctx := context.Background()
	facts := domain.ProgressFacts{XPTotal: 120, Level: 3, Activities: map[string]int64{"grammar": 1}}

	first, err := ev.EvaluateNewBadges(ctx, "u1", facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first-steps", "xp-100"}, slugsOf(first))

	second, err := ev.EvaluateNewBadges(ctx, "u1", facts)
	require.NoError(t, err)
	assert.Empty(t, second)

	earned, err := ev.Earned(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, earned, 2)
}

func TestEvaluateNewBadges_InactiveNeverAwarded(t *testing.T) {
	db := testDB(t)
	ev := engagement.NewBadgeEvaluator(db, testCatalog(), nil)

	got, err := ev.EvaluateNewBadges(context.Background(), "u1", domain.ProgressFacts{})
	require.NoError(t, err)
	assert.NotContains(t, slugsOf(got), "hidden")
	assert.Len(t, ev.Definitions(), 3)
}

func TestEvaluateNewBadges_PerUser(t *testing.T) {
	db := testDB(t)
	ev := engagement.NewBadgeEvaluator(db, testCatalog(), nil)
	ctx := context.Background()
	facts := domain.ProgressFacts{Activities: map[string]int64{"grammar": 1}}

	a, err := ev.EvaluateNewBadges(ctx, "u1", facts)
	require.NoError(t, err)
	b, err := ev.EvaluateNewBadges(ctx, "u2", facts)
	require.NoError(t, err)
	assert.Equal(t, slugsOf(a), slugsOf(b))
}

func slugsOf(defs []domain.BadgeDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Slug)
	}
	return out
}
