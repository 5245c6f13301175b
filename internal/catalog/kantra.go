package catalog

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MalformedInputError indicates the raw findings document could not be
// parsed into the expected ruleset schema. It is round-local: the
// controller reports the round as aborted and retries on the next one.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed findings document: %s", e.Reason)
}

// kantraRuleset mirrors the native format of a Kantra analysis document:
// a list of rulesets, each holding a map of violations keyed by rule id.
type kantraRuleset struct {
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description"`
	Violations  map[string]kantraViolation `yaml:"violations"`
	Skipped     []string                   `yaml:"skipped,omitempty"`
}

type kantraViolation struct {
	Description string           `yaml:"description"`
	Category    string           `yaml:"category"`
	Effort      int              `yaml:"effort"`
	Labels      []string         `yaml:"labels,omitempty"`
	Incidents   []kantraIncident `yaml:"incidents"`
}

type kantraIncident struct {
	URI        string `yaml:"uri"`
	Message    string `yaml:"message"`
	CodeSnip   string `yaml:"codeSnip,omitempty"`
	LineNumber int    `yaml:"lineNumber,omitempty"`
}

// filePath strips the file:// prefix from an incident URI.
func (i kantraIncident) filePath() string {
	return strings.TrimPrefix(i.URI, "file://")
}

// Build normalizes a raw Kantra findings document into an immutable
// catalog for the given round. One issue is produced per incident,
// keyed by (rule id, file, line); duplicate keys collapse to one issue.
func Build(raw []byte, round int) (*Catalog, error) {
	var rulesets []kantraRuleset
	if err := yaml.Unmarshal(raw, &rulesets); err != nil {
		return nil, &MalformedInputError{Reason: err.Error()}
	}

	issues := make(map[Key]Issue)
	for _, rs := range rulesets {
		for ruleID, v := range rs.Violations {
			if ruleID == "" {
				return nil, &MalformedInputError{Reason: fmt.Sprintf("ruleset %q has a violation with an empty rule id", rs.Name)}
			}
			sev, err := parseSeverity(v.Category)
			if err != nil {
				return nil, &MalformedInputError{Reason: fmt.Sprintf("rule %s: %v", ruleID, err)}
			}
			cat := deriveCategory(ruleID, v.Labels)
			for _, inc := range v.Incidents {
				if inc.URI == "" {
					return nil, &MalformedInputError{Reason: fmt.Sprintf("rule %s: incident missing uri", ruleID)}
				}
				msg := inc.Message
				if msg == "" {
					msg = v.Description
				}
				issue := Issue{
					RuleID:   ruleID,
					Category: cat,
					File:     inc.filePath(),
					Line:     inc.LineNumber,
					Message:  msg,
					Severity: sev,
					Effort:   v.Effort,
					RuleSet:  rs.Name,
				}
				if _, ok := issues[issue.Key()]; !ok {
					issues[issue.Key()] = issue
				}
			}
		}
	}

	return newCatalog(round, issues), nil
}

// parseSeverity maps Kantra's violation category field onto a severity.
func parseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(s)) {
	case SeverityMandatory:
		return SeverityMandatory, nil
	case SeverityOptional:
		return SeverityOptional, nil
	case SeverityPotential:
		return SeverityPotential, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// categoryHints maps substring markers found in rule ids and labels to
// fix categories. Checked in priority order so a rule tagged with both
// a dependency and a deprecation marker lands in the earlier bucket.
var categoryHints = []struct {
	cat     Category
	markers []string
}{
	{CategoryBuildConfig, []string{"build-config", "buildconfig", "maven", "gradle", "pom", "manifest"}},
	{CategoryDependency, []string{"dependency", "dependencies"}},
	{CategoryAPIRemoval, []string{"api-removal", "removal", "removed"}},
	{CategoryAPIRewrite, []string{"api-rewrite", "rewrite", "replace"}},
	{CategoryDeprecation, []string{"deprecation", "deprecated"}},
}

// deriveCategory infers the fix category from the rule id and its
// ruleset labels. Konveyor rules carry the kind of change in their id
// or labels (e.g. "javax-to-jakarta-dependencies-00001",
// "konveyor.io/category=deprecation"); anything unrecognized is "other".
func deriveCategory(ruleID string, labels []string) Category {
	haystack := strings.ToLower(ruleID)
	if len(labels) > 0 {
		sorted := append([]string(nil), labels...)
		sort.Strings(sorted)
		haystack += " " + strings.ToLower(strings.Join(sorted, " "))
	}
	for _, h := range categoryHints {
		for _, m := range h.markers {
			if strings.Contains(haystack, m) {
				return h.cat
			}
		}
	}
	return CategoryOther
}
