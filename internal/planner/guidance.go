package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/migforge/migforge/internal/catalog"
)

// Guidance supplies target-specific priority overrides and known
// non-automatable rules, merged into the planner's ordering when
// present. Implementations are consulted once per plan.
type Guidance interface {
	// CategoryRank returns an override rank for a category. Lower ranks
	// are planned earlier. ok is false when the default order applies.
	CategoryRank(cat catalog.Category) (rank int, ok bool)
	// UnfixableRule returns the documented reason a rule cannot be
	// automated, if the target guidance lists it.
	UnfixableRule(ruleID string) (reason string, ok bool)
}

// NoGuidance is the neutral strategy used when no target guidance exists.
type NoGuidance struct{}

func (NoGuidance) CategoryRank(catalog.Category) (int, bool) { return 0, false }
func (NoGuidance) UnfixableRule(string) (string, bool)       { return "", false }

// guidanceDoc is the YAML shape of a guidance file: per-target override
// sections keyed by target identifier.
type guidanceDoc struct {
	Targets map[string]guidanceTarget `yaml:"targets"`
}

type guidanceTarget struct {
	PriorityOverrides map[string]int      `yaml:"priority_overrides"`
	KnownUnfixable    []guidanceUnfixable `yaml:"known_unfixable"`
}

type guidanceUnfixable struct {
	RuleID string `yaml:"rule_id"`
	Reason string `yaml:"reason"`
}

// FileGuidance merges the guidance sections of the requested targets.
// When two targets disagree on a category rank, the lower (more urgent)
// rank wins.
type FileGuidance struct {
	ranks     map[catalog.Category]int
	unfixable map[string]string
}

// LoadGuidance reads a guidance file and merges the sections for the
// given targets. Targets absent from the file contribute nothing; an
// empty result behaves like NoGuidance.
func LoadGuidance(path string, targets []string) (*FileGuidance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guidance file: %w", err)
	}
	var doc guidanceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse guidance file %s: %w", path, err)
	}

	g := &FileGuidance{
		ranks:     make(map[catalog.Category]int),
		unfixable: make(map[string]string),
	}
	for _, target := range targets {
		sect, ok := doc.Targets[target]
		if !ok {
			continue
		}
		for name, rank := range sect.PriorityOverrides {
			cat := catalog.Category(name)
			if _, known := catalog.CategoryOrder[cat]; !known {
				return nil, fmt.Errorf("guidance target %s: unknown category %q", target, name)
			}
			if existing, ok := g.ranks[cat]; !ok || rank < existing {
				g.ranks[cat] = rank
			}
		}
		for _, u := range sect.KnownUnfixable {
			if u.RuleID == "" {
				return nil, fmt.Errorf("guidance target %s: known_unfixable entry missing rule_id", target)
			}
			if _, ok := g.unfixable[u.RuleID]; !ok {
				g.unfixable[u.RuleID] = u.Reason
			}
		}
	}
	return g, nil
}

func (g *FileGuidance) CategoryRank(cat catalog.Category) (int, bool) {
	rank, ok := g.ranks[cat]
	return rank, ok
}

func (g *FileGuidance) UnfixableRule(ruleID string) (string, bool) {
	reason, ok := g.unfixable[ruleID]
	return reason, ok
}
