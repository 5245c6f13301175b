package catalog

import "fmt"

// Severity is the analyzer's classification of how binding an issue is.
// Konveyor calls this "category" in its output.
type Severity string

const (
	SeverityMandatory Severity = "mandatory"
	SeverityOptional  Severity = "optional"
	SeverityPotential Severity = "potential"
)

// Category buckets issues by the kind of change needed to fix them.
// Earlier categories generally have to be correct before later ones
// are meaningful (a rewritten API call is pointless while the
// dependency providing it is still the old major version).
type Category string

const (
	CategoryBuildConfig Category = "build-config"
	CategoryDependency  Category = "dependency"
	CategoryAPIRemoval  Category = "api-removal"
	CategoryAPIRewrite  Category = "api-rewrite"
	CategoryDeprecation Category = "deprecation"
	CategoryOther       Category = "other"
)

// CategoryOrder is the fixed default priority of categories, lower = fixed earlier.
var CategoryOrder = map[Category]int{
	CategoryBuildConfig: 0,
	CategoryDependency:  1,
	CategoryAPIRemoval:  2,
	CategoryAPIRewrite:  3,
	CategoryDeprecation: 4,
	CategoryOther:       5,
}

// Key uniquely identifies an issue within a round. Equality across
// rounds is by this key, never by object identity.
type Key struct {
	RuleID string `json:"rule_id"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// String renders the key in the stable form used in ledger records and logs.
func (k Key) String() string {
	return fmt.Sprintf("%s::%s::%d", k.RuleID, k.File, k.Line)
}

// Issue is one normalized analysis finding.
type Issue struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Effort   int      `json:"effort,omitempty"`
	RuleSet  string   `json:"ruleset,omitempty"`
}

// Key returns the issue's identity key.
func (i Issue) Key() Key {
	return Key{RuleID: i.RuleID, File: i.File, Line: i.Line}
}

// Actionable reports whether the issue counts toward convergence.
// Potential issues are advisory and never block a converged verdict.
func (i Issue) Actionable() bool {
	return i.Severity == SeverityMandatory || i.Severity == SeverityOptional
}
