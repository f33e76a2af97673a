package engagement

import (
	"fmt"
	"sort"

	"github.com/fluentia/fluentia/internal/domain"
)

// Activity sources with a default XP entry.
const (
	SourceGrammar        = "grammar"
	SourceVocabulary     = "vocabulary"
	SourceIrregularVerbs = "irregular_verbs"
	SourceStory          = "story"
	SourceLesson         = "lesson"
)

// SourcePolicy is one row of the XP table.
//
//	xp = (Base + PerCorrect*correct) * (perfect ? PerfectMultiplier : 1) + (perfect ? PerfectBonus : 0)
//
// A zero PerfectMultiplier counts as 1.
type SourcePolicy struct {
	Base              int64 `toml:"base" json:"base"`
	PerCorrect        int64 `toml:"per_correct" json:"per_correct"`
	PerfectBonus      int64 `toml:"perfect_bonus" json:"perfect_bonus"`
	PerfectMultiplier int64 `toml:"perfect_multiplier" json:"perfect_multiplier"`
}

// XPInputs carries what an activity reports on completion.
type XPInputs struct {
	Perfect bool `json:"perfect"`
	Correct int  `json:"correct"`
	Answers int  `json:"answers"`
}

// Policy maps activity source to XP amounts.
type Policy struct {
	Sources map[string]SourcePolicy `toml:"sources" json:"sources"`
}

// DefaultPolicy returns the built-in XP table.
func DefaultPolicy() Policy {
	return Policy{Sources: map[string]SourcePolicy{
		SourceGrammar:        {Base: 10},
		SourceVocabulary:     {Base: 5, PerCorrect: 1, PerfectBonus: 5},
		SourceIrregularVerbs: {Base: 10, PerfectBonus: 10},
		SourceStory:          {Base: 15},
		SourceLesson:         {Base: 20},
	}}
}

// Validate rejects negative table entries.
func (p Policy) Validate() error {
	for name, sp := range p.Sources {
		if sp.Base < 0 || sp.PerCorrect < 0 || sp.PerfectBonus < 0 || sp.PerfectMultiplier < 0 {
			return fmt.Errorf("%w: xp policy for %q has a negative value", domain.ErrInvalidArgument, name)
		}
	}
	return nil
}

// Known returns the configured source names, sorted.
func (p Policy) Known() []string {
	names := make([]string, 0, len(p.Sources))
	for name := range p.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// XPFor computes the XP delta for one completed activity.
func (p Policy) XPFor(source string, in XPInputs) (int64, error) {
	sp, ok := p.Sources[source]
	if !ok {
		return 0, fmt.Errorf("%w: unknown activity source %q", domain.ErrInvalidArgument, source)
	}
	if in.Correct < 0 || in.Answers < 0 {
		return 0, fmt.Errorf("%w: answer counts must be >= 0", domain.ErrInvalidArgument)
	}
	if in.Answers > 0 && in.Correct > in.Answers {
		return 0, fmt.Errorf("%w: correct (%d) exceeds answers (%d)", domain.ErrInvalidArgument, in.Correct, in.Answers)
	}

	xp := sp.Base + sp.PerCorrect*int64(in.Correct)
	if in.Perfect {
		if sp.PerfectMultiplier > 0 {
			xp *= sp.PerfectMultiplier
		}
		xp += sp.PerfectBonus
	}
	return xp, nil
}
