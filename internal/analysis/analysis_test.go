package analysis

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/migforge/migforge/internal/catalog"
	"github.com/migforge/migforge/internal/workspace"
)

func issue(rule, file string, line int) catalog.Issue {
	return catalog.Issue{
		RuleID:   rule,
		Category: catalog.CategoryAPIRewrite,
		File:     file,
		Line:     line,
		Message:  "msg for " + rule,
		Severity: catalog.SeverityMandatory,
		Effort:   2,
	}
}

func TestSummarize(t *testing.T) {
	cat := catalog.FromIssues(1, []catalog.Issue{
		issue("rule-a", "/src/A.java", 1),
		issue("rule-a", "/src/A.java", 9),
		issue("rule-a", "/src/B.java", 2),
		issue("rule-b", "/src/C.java", 5),
	})

	got := Summarize(cat)
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	a := got[0]
	if a.RuleID != "rule-a" {
		t.Fatalf("rules not sorted by id: %q first", a.RuleID)
	}
	if a.Incidents != 3 {
		t.Errorf("rule-a incidents = %d, want 3", a.Incidents)
	}
	if len(a.Files) != 2 || a.Files[0] != "/src/A.java" || a.Files[1] != "/src/B.java" {
		t.Errorf("rule-a files = %v", a.Files)
	}
	if got[1].Incidents != 1 {
		t.Errorf("rule-b incidents = %d, want 1", got[1].Incidents)
	}
}

func TestAffectedFiles(t *testing.T) {
	cat := catalog.FromIssues(1, []catalog.Issue{
		issue("rule-a", "/src/B.java", 1),
		issue("rule-b", "/src/B.java", 2),
		issue("rule-c", "/src/A.java", 3),
		issue("rule-d", "/src/C.java", 4),
	})

	got := AffectedFiles(cat)
	if len(got) != 3 {
		t.Fatalf("expected 3 files, got %d", len(got))
	}
	if got[0].File != "/src/B.java" || got[0].Incidents != 2 {
		t.Errorf("most-affected file = %+v", got[0])
	}
	// Equal counts order by path.
	if got[1].File != "/src/A.java" || got[2].File != "/src/C.java" {
		t.Errorf("tie order: %q, %q", got[1].File, got[2].File)
	}
}

func TestFileIssues_SuffixMatch(t *testing.T) {
	cat := catalog.FromIssues(1, []catalog.Issue{
		issue("rule-a", "/app/pom.xml", 1),
		issue("rule-b", "/app/module/pom.xml", 2),
		issue("rule-c", "/app/src/A.java", 3),
	})

	exact := FileIssues(cat, "/app/pom.xml")
	if len(exact) != 1 || exact[0].RuleID != "rule-a" {
		t.Errorf("exact match = %v", exact)
	}

	// A bare file name matches every path ending in /pom.xml.
	bySuffix := FileIssues(cat, "pom.xml")
	if len(bySuffix) != 2 {
		t.Errorf("suffix match found %d issues, want 2", len(bySuffix))
	}

	if got := FileIssues(cat, "om.xml"); len(got) != 0 {
		t.Errorf("partial name must not match across a path boundary, got %v", got)
	}
}

// findingsDoc renders a minimal findings snapshot with the given
// incident counts per rule.
func findingsDoc(ruleIncidents map[string]int) []byte {
	var b strings.Builder
	b.WriteString("- name: rs\n  violations:\n")
	for rule, n := range ruleIncidents {
		fmt.Fprintf(&b, "    %s:\n      description: d\n      category: mandatory\n      incidents:\n", rule)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "        - uri: file:///src/F%d.java\n          message: m\n          lineNumber: %d\n", i, i+1)
		}
	}
	return []byte(b.String())
}

func TestPersistentRules(t *testing.T) {
	store, err := workspace.Open(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}

	// stubborn-rule survives all three rounds and worsens; fading-rule
	// disappears after round two.
	snapshots := []map[string]int{
		{"stubborn-rule": 2, "fading-rule": 3},
		{"stubborn-rule": 2, "fading-rule": 1},
		{"stubborn-rule": 4},
	}
	for i, snap := range snapshots {
		if err := store.SaveFindings(i+1, findingsDoc(snap)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := PersistentRules(store, 3)
	if err != nil {
		t.Fatalf("persistent rules: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 persistent rule, got %d", len(got))
	}
	pr := got[0]
	if pr.RuleID != "stubborn-rule" {
		t.Errorf("rule = %q", pr.RuleID)
	}
	if pr.Rounds != 3 {
		t.Errorf("rounds = %d, want 3", pr.Rounds)
	}
	if pr.Trend != TrendWorsening {
		t.Errorf("trend = %q, want worsening", pr.Trend)
	}
	if len(pr.ByRound) != 3 || pr.ByRound[2].Incidents != 4 {
		t.Errorf("by-round = %v", pr.ByRound)
	}
}

func TestPersistentRules_NotEnoughRounds(t *testing.T) {
	store, err := workspace.Open(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFindings(1, findingsDoc(map[string]int{"r": 1})); err != nil {
		t.Fatal(err)
	}
	if _, err := PersistentRules(store, 3); err == nil {
		t.Fatal("one round cannot support persistence analysis")
	}
}

func TestPersistentRules_Trends(t *testing.T) {
	store, err := workspace.Open(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	snapshots := []map[string]int{
		{"shrinking": 5, "steady": 2},
		{"shrinking": 3, "steady": 2},
		{"shrinking": 1, "steady": 2},
	}
	for i, snap := range snapshots {
		if err := store.SaveFindings(i+1, findingsDoc(snap)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := PersistentRules(store, 3)
	if err != nil {
		t.Fatal(err)
	}
	trends := make(map[string]Trend)
	for _, pr := range got {
		trends[pr.RuleID] = pr.Trend
	}
	if trends["shrinking"] != TrendImproving {
		t.Errorf("shrinking trend = %q", trends["shrinking"])
	}
	if trends["steady"] != TrendStable {
		t.Errorf("steady trend = %q", trends["steady"])
	}
}
