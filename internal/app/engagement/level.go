package engagement

import (
	"fmt"
	"math"
	"sort"

	"github.com/fluentia/fluentia/internal/domain"
)

// Curve is the exponential XP curve. Level 1 starts at 0 XP, level 2 at
// FirstThreshold, and every further level needs Growth times the previous
// threshold, rounded down. Levels are uncapped.
type Curve struct {
	FirstThreshold int64
	Growth         float64
}

// DefaultCurve is 100 XP for level 2, growing 20% per level.
var DefaultCurve = Curve{FirstThreshold: 100, Growth: 1.2}

// NewCurve validates a curve. It rejects parameters that would let two
// consecutive thresholds collapse onto the same integer.
func NewCurve(firstThreshold int64, growth float64) (Curve, error) {
	c := Curve{FirstThreshold: firstThreshold, Growth: growth}
	return c, c.Validate()
}

// Validate reports whether thresholds are strictly increasing.
func (c Curve) Validate() error {
	switch {
	case c.FirstThreshold < 1:
		return fmt.Errorf("%w: first threshold must be >= 1, got %d", domain.ErrInvalidArgument, c.FirstThreshold)
	case math.IsNaN(c.Growth) || math.IsInf(c.Growth, 0) || c.Growth <= 1:
		return fmt.Errorf("%w: growth must be > 1, got %v", domain.ErrInvalidArgument, c.Growth)
	case float64(c.FirstThreshold)*(c.Growth-1) < 1:
		return fmt.Errorf("%w: first threshold %d too small for growth %v", domain.ErrInvalidArgument, c.FirstThreshold, c.Growth)
	}
	return nil
}

// XPForLevel returns the cumulative XP required to reach level.
// Saturates at math.MaxInt64.
func (c Curve) XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	f := float64(c.FirstThreshold) * math.Pow(c.Growth, float64(level-2))
	if f >= math.MaxInt64 || math.IsInf(f, 0) {
		return math.MaxInt64
	}
	return int64(math.Floor(f + 1e-9))
}

// LevelForXP returns the highest level whose threshold is <= xp.
// Saturated thresholds are treated as unreachable.
func (c Curve) LevelForXP(xp int64) int {
	if xp < c.FirstThreshold {
		return 1
	}
	reached := func(level int) bool {
		t := c.XPForLevel(level)
		return t < math.MaxInt64 && t <= xp
	}

	// Exponential search for an upper bound, then binary search below it.
	hi := 2
	for reached(hi) {
		hi *= 2
	}
	lo := hi / 2
	// sort.Search finds the first level in [lo, hi) that is not reached.
	first := lo + sort.Search(hi-lo, func(i int) bool { return !reached(lo + i) })
	return first - 1
}

// Compute returns the level and in-level progress for xp.
func (c Curve) Compute(xp int64) (domain.LevelProgress, error) {
	if xp < 0 {
		return domain.LevelProgress{}, fmt.Errorf("%w: xp must be >= 0, got %d", domain.ErrInvalidArgument, xp)
	}
	level := c.LevelForXP(xp)
	toNext := c.XPForLevel(level+1) - xp
	if toNext < 1 {
		toNext = 1
	}
	return domain.LevelProgress{
		Level:            level,
		XPInCurrentLevel: xp - c.XPForLevel(level),
		XPToNextLevel:    toNext,
	}, nil
}

// XPForLevel returns the cumulative XP for level on the default curve.
func XPForLevel(level int) int64 { return DefaultCurve.XPForLevel(level) }

// LevelForXP returns the level for xp on the default curve.
func LevelForXP(xp int64) int { return DefaultCurve.LevelForXP(xp) }
