package catalog

import "sort"

// Catalog is the immutable, queryable set of issues for a single round.
type Catalog struct {
	round  int
	issues map[Key]Issue
	keys   []Key // sorted for deterministic iteration
}

func newCatalog(round int, issues map[Key]Issue) *Catalog {
	keys := make([]Key, 0, len(issues))
	for k := range issues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RuleID != keys[j].RuleID {
			return keys[i].RuleID < keys[j].RuleID
		}
		if keys[i].File != keys[j].File {
			return keys[i].File < keys[j].File
		}
		return keys[i].Line < keys[j].Line
	})
	return &Catalog{round: round, issues: issues, keys: keys}
}

// FromIssues builds a catalog directly from normalized issues.
// Duplicate keys collapse to the first occurrence.
func FromIssues(round int, issues []Issue) *Catalog {
	m := make(map[Key]Issue, len(issues))
	for _, is := range issues {
		if _, ok := m[is.Key()]; !ok {
			m[is.Key()] = is
		}
	}
	return newCatalog(round, m)
}

// Round returns the round number this catalog was built for.
func (c *Catalog) Round() int { return c.round }

// Len returns the number of issues in the catalog.
func (c *Catalog) Len() int { return len(c.issues) }

// Keys returns all issue keys in deterministic order.
func (c *Catalog) Keys() []Key {
	out := make([]Key, len(c.keys))
	copy(out, c.keys)
	return out
}

// Issues returns all issues in deterministic key order.
func (c *Catalog) Issues() []Issue {
	out := make([]Issue, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.issues[k])
	}
	return out
}

// Get looks up an issue by key.
func (c *Catalog) Get(k Key) (Issue, bool) {
	is, ok := c.issues[k]
	return is, ok
}

// Contains reports whether the catalog holds an issue with the given key.
func (c *Catalog) Contains(k Key) bool {
	_, ok := c.issues[k]
	return ok
}

// Filter returns a sub-catalog of issues matching the predicate.
// The sub-catalog keeps the parent's round number.
func (c *Catalog) Filter(pred func(Issue) bool) *Catalog {
	m := make(map[Key]Issue)
	for k, is := range c.issues {
		if pred(is) {
			m[k] = is
		}
	}
	return newCatalog(c.round, m)
}

// CountBySeverity returns issue counts keyed by severity.
func (c *Catalog) CountBySeverity() map[Severity]int {
	out := make(map[Severity]int)
	for _, is := range c.issues {
		out[is.Severity]++
	}
	return out
}

// CountByCategory returns issue counts keyed by category.
func (c *Catalog) CountByCategory() map[Category]int {
	out := make(map[Category]int)
	for _, is := range c.issues {
		out[is.Category]++
	}
	return out
}

// DiffResult holds the issue-key set differences between two rounds.
type DiffResult struct {
	Resolved   []Key // in previous, gone from current
	New        []Key // in current, absent from previous
	Persisting []Key // present in both
}

// Diff computes key-set differences between the previous and current
// catalogs. A nil previous catalog treats every current issue as new.
// Resolved, New and Persisting are pairwise disjoint; their union covers
// every key appearing in either catalog.
func Diff(previous, current *Catalog) DiffResult {
	var d DiffResult
	if previous == nil {
		d.New = current.Keys()
		return d
	}
	for _, k := range previous.keys {
		if current.Contains(k) {
			d.Persisting = append(d.Persisting, k)
		} else {
			d.Resolved = append(d.Resolved, k)
		}
	}
	for _, k := range current.keys {
		if !previous.Contains(k) {
			d.New = append(d.New, k)
		}
	}
	return d
}
