// Package analysis aggregates catalogs and workspace history into the
// operator-facing reports: per-rule summaries, affected-file listings,
// and cross-round persistence analysis.
package analysis

import (
	"fmt"
	"sort"

	"github.com/migforge/migforge/internal/catalog"
	"github.com/migforge/migforge/internal/workspace"
)

// RuleSummary aggregates one rule's incidents within a round.
type RuleSummary struct {
	RuleID    string           `json:"rule_id"`
	RuleSet   string           `json:"ruleset,omitempty"`
	Message   string           `json:"message"`
	Category  catalog.Category `json:"category"`
	Severity  catalog.Severity `json:"severity"`
	Effort    int              `json:"effort"`
	Incidents int              `json:"incidents"`
	Files     []string         `json:"files"`
}

// Summarize aggregates a catalog per rule, sorted by rule id.
func Summarize(cat *catalog.Catalog) []RuleSummary {
	byRule := make(map[string]*RuleSummary)
	files := make(map[string]map[string]bool)
	for _, is := range cat.Issues() {
		rs := byRule[is.RuleID]
		if rs == nil {
			rs = &RuleSummary{
				RuleID:   is.RuleID,
				RuleSet:  is.RuleSet,
				Message:  is.Message,
				Category: is.Category,
				Severity: is.Severity,
				Effort:   is.Effort,
			}
			byRule[is.RuleID] = rs
			files[is.RuleID] = make(map[string]bool)
		}
		rs.Incidents++
		files[is.RuleID][is.File] = true
	}

	out := make([]RuleSummary, 0, len(byRule))
	for ruleID, rs := range byRule {
		for f := range files[ruleID] {
			rs.Files = append(rs.Files, f)
		}
		sort.Strings(rs.Files)
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// FileCount is one file's incident count.
type FileCount struct {
	File      string `json:"file"`
	Incidents int    `json:"incidents"`
}

// AffectedFiles lists every file with issues, most incidents first,
// ties broken by path for determinism.
func AffectedFiles(cat *catalog.Catalog) []FileCount {
	counts := make(map[string]int)
	for _, is := range cat.Issues() {
		counts[is.File]++
	}
	out := make([]FileCount, 0, len(counts))
	for f, n := range counts {
		out = append(out, FileCount{File: f, Incidents: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Incidents != out[j].Incidents {
			return out[i].Incidents > out[j].Incidents
		}
		return out[i].File < out[j].File
	})
	return out
}

// FileIssues returns all issues in one file, in key order. The path
// matches exactly or by suffix, so "pom.xml" finds "/app/pom.xml".
func FileIssues(cat *catalog.Catalog, path string) []catalog.Issue {
	sub := cat.Filter(func(is catalog.Issue) bool {
		return is.File == path || hasPathSuffix(is.File, path)
	})
	return sub.Issues()
}

// hasPathSuffix reports whether full ends with rel at a path boundary.
func hasPathSuffix(full, rel string) bool {
	if len(full) <= len(rel) {
		return false
	}
	return full[len(full)-len(rel):] == rel && full[len(full)-len(rel)-1] == '/'
}

// Trend classifies how an issue's incident count moved across rounds.
type Trend string

const (
	TrendWorsening Trend = "worsening"
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
)

// PersistentRule is a rule present in consecutive recent rounds.
type PersistentRule struct {
	RuleID    string           `json:"rule_id"`
	Message   string           `json:"message"`
	Category  catalog.Category `json:"category"`
	Severity  catalog.Severity `json:"severity"`
	Effort    int              `json:"effort"`
	Rounds    int              `json:"rounds"`
	ByRound   []RoundCount     `json:"by_round"`
	Files     []string         `json:"files"` // files affected in the latest round
	Trend     Trend            `json:"trend"`
}

// RoundCount is one rule's incident count in one round.
type RoundCount struct {
	Round     int `json:"round"`
	Incidents int `json:"incidents"`
	Files     int `json:"files"`
}

// PersistentRules finds rules that survived at least minRounds rounds,
// reading raw findings snapshots back from the workspace. These are the
// issues the fixer is struggling with.
func PersistentRules(store *workspace.Store, minRounds int) ([]PersistentRule, error) {
	if minRounds <= 0 {
		minRounds = 3
	}
	rounds, err := store.Rounds()
	if err != nil {
		return nil, err
	}
	if len(rounds) < minRounds {
		return nil, fmt.Errorf("need at least %d rounds to analyze persistence, workspace has %d", minRounds, len(rounds))
	}

	type ruleRound struct {
		count int
		files map[string]bool
		issue catalog.Issue
	}
	history := make(map[string]map[int]*ruleRound)

	for _, round := range rounds {
		raw, err := store.ReadFindings(round)
		if err != nil {
			continue // round directory without a snapshot
		}
		cat, err := catalog.Build(raw, round)
		if err != nil {
			continue // malformed snapshot, already reported in its round
		}
		for _, is := range cat.Issues() {
			perRound := history[is.RuleID]
			if perRound == nil {
				perRound = make(map[int]*ruleRound)
				history[is.RuleID] = perRound
			}
			rr := perRound[round]
			if rr == nil {
				rr = &ruleRound{files: make(map[string]bool), issue: is}
				perRound[round] = rr
			}
			rr.count++
			rr.files[is.File] = true
		}
	}

	var out []PersistentRule
	for ruleID, perRound := range history {
		if len(perRound) < minRounds {
			continue
		}
		pr := PersistentRule{RuleID: ruleID, Rounds: len(perRound)}
		var seen []int
		for r := range perRound {
			seen = append(seen, r)
		}
		sort.Ints(seen)
		for _, r := range seen {
			rr := perRound[r]
			pr.ByRound = append(pr.ByRound, RoundCount{Round: r, Incidents: rr.count, Files: len(rr.files)})
		}

		latest := perRound[seen[len(seen)-1]]
		pr.Message = latest.issue.Message
		pr.Category = latest.issue.Category
		pr.Severity = latest.issue.Severity
		pr.Effort = latest.issue.Effort
		for f := range latest.files {
			pr.Files = append(pr.Files, f)
		}
		sort.Strings(pr.Files)

		first, last := pr.ByRound[0].Incidents, pr.ByRound[len(pr.ByRound)-1].Incidents
		switch {
		case last > first:
			pr.Trend = TrendWorsening
		case last < first:
			pr.Trend = TrendImproving
		default:
			pr.Trend = TrendStable
		}
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rounds != out[j].Rounds {
			return out[i].Rounds > out[j].Rounds
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out, nil
}
