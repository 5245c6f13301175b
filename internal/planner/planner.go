// Package planner converts an issue catalog into an ordered fix plan.
// Issues are bucketed by category in dependency order, grouped by shared
// rule or file within a bucket, and ranked so small isolated groups land
// early for measurable progress.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/migforge/migforge/internal/catalog"
)

// Ledger is the subset of escalation-ledger state the planner consults.
type Ledger interface {
	IsUnfixable(key catalog.Key) bool
}

// FixGroup is an ordered batch of issues meant to be applied by one
// coherent edit.
type FixGroup struct {
	PriorityRank   int              `json:"priority_rank"`
	Category       catalog.Category `json:"category"`
	Members        []catalog.Issue  `json:"members"`
	DependencyNote string           `json:"dependency_note"`
}

// Keys returns the member issue keys in member order.
func (g *FixGroup) Keys() []catalog.Key {
	out := make([]catalog.Key, 0, len(g.Members))
	for _, is := range g.Members {
		out = append(out, is.Key())
	}
	return out
}

// Files returns the distinct files the group touches, sorted.
func (g *FixGroup) Files() []string {
	seen := make(map[string]bool)
	for _, is := range g.Members {
		seen[is.File] = true
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SkippedIssue records an issue excluded from the plan with the reason.
type SkippedIssue struct {
	Key    catalog.Key `json:"key"`
	Reason string      `json:"reason"`
}

// FixPlan is the ordered sequence of fix groups for one round. An empty
// plan is a valid terminal input signaling convergence, not an error.
type FixPlan struct {
	Round   int            `json:"round"`
	Groups  []FixGroup     `json:"groups"`
	Skipped []SkippedIssue `json:"skipped,omitempty"`
}

// Empty reports whether the plan has no groups to apply.
func (p *FixPlan) Empty() bool { return len(p.Groups) == 0 }

// Plan builds a fix plan from a round's catalog. Issues documented
// unfixable in the ledger, or listed non-automatable by target
// guidance, never enter a group. Every other issue appears in exactly
// one group.
func Plan(cat *catalog.Catalog, led Ledger, guidance Guidance) *FixPlan {
	if guidance == nil {
		guidance = NoGuidance{}
	}
	plan := &FixPlan{Round: cat.Round()}

	buckets := make(map[catalog.Category][]catalog.Issue)
	for _, is := range cat.Issues() {
		if led != nil && led.IsUnfixable(is.Key()) {
			plan.Skipped = append(plan.Skipped, SkippedIssue{Key: is.Key(), Reason: "documented unfixable"})
			continue
		}
		if reason, ok := guidance.UnfixableRule(is.RuleID); ok {
			plan.Skipped = append(plan.Skipped, SkippedIssue{Key: is.Key(), Reason: "known non-automatable: " + reason})
			continue
		}
		buckets[is.Category] = append(buckets[is.Category], is)
	}

	rank := 1
	for _, cat := range orderedCategories(guidance) {
		issues := buckets[cat]
		if len(issues) == 0 {
			continue
		}
		groups := groupBucket(issues)
		sortGroups(groups)
		for i := range groups {
			groups[i].PriorityRank = rank
			rank++
			plan.Groups = append(plan.Groups, groups[i])
		}
	}
	return plan
}

// orderedCategories returns all categories sorted by effective rank:
// guidance override when present, the fixed default order otherwise.
// Default-order position breaks rank ties deterministically.
func orderedCategories(guidance Guidance) []catalog.Category {
	cats := make([]catalog.Category, 0, len(catalog.CategoryOrder))
	for c := range catalog.CategoryOrder {
		cats = append(cats, c)
	}
	effective := func(c catalog.Category) int {
		if r, ok := guidance.CategoryRank(c); ok {
			return r
		}
		return catalog.CategoryOrder[c]
	}
	sort.Slice(cats, func(i, j int) bool {
		ri, rj := effective(cats[i]), effective(cats[j])
		if ri != rj {
			return ri < rj
		}
		return catalog.CategoryOrder[cats[i]] < catalog.CategoryOrder[cats[j]]
	})
	return cats
}

// groupBucket merges a bucket's issues into groups: issues sharing a
// rule id or a file path belong together, transitively, since
// co-located or same-rule issues are typically fixed by one edit.
func groupBucket(issues []catalog.Issue) []FixGroup {
	parent := make([]int, len(issues))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	byRule := make(map[string]int)
	byFile := make(map[string]int)
	for i, is := range issues {
		if j, ok := byRule[is.RuleID]; ok {
			union(j, i)
		} else {
			byRule[is.RuleID] = i
		}
		if j, ok := byFile[is.File]; ok {
			union(j, i)
		} else {
			byFile[is.File] = i
		}
	}

	members := make(map[int][]catalog.Issue)
	for i, is := range issues {
		root := find(i)
		members[root] = append(members[root], is)
	}

	var groups []FixGroup
	for _, ms := range members {
		sort.Slice(ms, func(i, j int) bool {
			ki, kj := ms[i].Key(), ms[j].Key()
			if ki.RuleID != kj.RuleID {
				return ki.RuleID < kj.RuleID
			}
			if ki.File != kj.File {
				return ki.File < kj.File
			}
			return ki.Line < kj.Line
		})
		g := FixGroup{Category: ms[0].Category, Members: ms}
		g.DependencyNote = describeGroup(&g)
		groups = append(groups, g)
	}
	return groups
}

// sortGroups orders groups within a bucket: ascending count of distinct
// files touched (smaller, more isolated groups first), ties broken by
// the lexically smallest rule id for determinism.
func sortGroups(groups []FixGroup) {
	sort.Slice(groups, func(i, j int) bool {
		fi, fj := len(groups[i].Files()), len(groups[j].Files())
		if fi != fj {
			return fi < fj
		}
		return groups[i].Members[0].RuleID < groups[j].Members[0].RuleID
	})
}

// describeGroup builds the dependency note explaining why the members
// belong together.
func describeGroup(g *FixGroup) string {
	rules := make(map[string]bool)
	for _, is := range g.Members {
		rules[is.RuleID] = true
	}
	files := g.Files()

	switch {
	case len(rules) == 1 && len(files) == 1:
		return fmt.Sprintf("rule %s in %s: one coherent edit", g.Members[0].RuleID, files[0])
	case len(rules) == 1:
		return fmt.Sprintf("rule %s across %d files: apply the same change everywhere", g.Members[0].RuleID, len(files))
	case len(files) == 1:
		return fmt.Sprintf("%d rules co-located in %s: fix together in one pass", len(rules), files[0])
	default:
		names := make([]string, 0, len(rules))
		for r := range rules {
			names = append(names, r)
		}
		sort.Strings(names)
		return fmt.Sprintf("%d interlinked rules over %d files (%s): shared rules and files chain these edits",
			len(rules), len(files), strings.Join(names, ", "))
	}
}
