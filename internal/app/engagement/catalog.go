package engagement

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fluentia/fluentia/internal/domain"
)

//go:embed badges.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Badges []catalogEntry `yaml:"badges"`
}

type catalogEntry struct {
	Slug        string            `yaml:"slug"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Rule        domain.UnlockRule `yaml:"rule"`
	Active      *bool             `yaml:"active"` // nil = active
}

var knownRuleKinds = map[domain.RuleKind]bool{
	domain.RuleXPAtLeast:         true,
	domain.RuleLevelAtLeast:      true,
	domain.RuleStreakAtLeast:     true,
	domain.RuleBestStreakAtLeast: true,
	domain.RuleActivitiesAtLeast: true,
}

// ParseCatalog decodes a YAML badge catalog.
// Duplicate slugs, unknown rule kinds and negative thresholds are rejected.
func ParseCatalog(data []byte) ([]domain.BadgeDefinition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse badge catalog: %v", domain.ErrInvalidArgument, err)
	}

	seen := make(map[string]bool, len(f.Badges))
	defs := make([]domain.BadgeDefinition, 0, len(f.Badges))
	for i, e := range f.Badges {
		switch {
		case e.Slug == "":
			return nil, fmt.Errorf("%w: badge %d has no slug", domain.ErrInvalidArgument, i)
		case seen[e.Slug]:
			return nil, fmt.Errorf("%w: duplicate badge slug %q", domain.ErrInvalidArgument, e.Slug)
		case !knownRuleKinds[e.Rule.Kind]:
			return nil, fmt.Errorf("%w: badge %q has unknown rule kind %q", domain.ErrInvalidArgument, e.Slug, e.Rule.Kind)
		case e.Rule.Value < 0:
			return nil, fmt.Errorf("%w: badge %q has negative rule value", domain.ErrInvalidArgument, e.Slug)
		}
		seen[e.Slug] = true

		active := true
		if e.Active != nil {
			active = *e.Active
		}
		defs = append(defs, domain.BadgeDefinition{
			Slug:        e.Slug,
			Title:       e.Title,
			Description: e.Description,
			Rule:        e.Rule,
			Active:      active,
		})
	}
	return defs, nil
}

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
func LoadCatalog(path string) ([]domain.BadgeDefinition, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() ([]domain.BadgeDefinition, error) {
	return ParseCatalog(defaultCatalogYAML)
}
