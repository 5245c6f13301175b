// Package ledger tracks fix attempts per issue and promotes issues to
// documented-unfixable once their retry budget is exhausted. Records are
// appended to a JSONL file so a crash mid-run never loses attempt
// history; reopening the file replays it into identical in-memory state.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/migforge/migforge/internal/catalog"
)

// ErrAlreadyResolved indicates a mark-unfixable call against a key that
// is not currently open. This is a controller invariant violation, not
// an operational condition.
var ErrAlreadyResolved = errors.New("issue is not open")

// Status of an attempt record.
type Status string

const (
	StatusOpen      Status = "open"
	StatusUnfixable Status = "unfixable-documented"
)

// AttemptRecord is the per-issue attempt history.
type AttemptRecord struct {
	Key             catalog.Key `json:"key"`
	Attempts        int         `json:"attempts"`
	ApproachesTried []string    `json:"approaches_tried"`
	Status          Status      `json:"status"`
	Rationale       string      `json:"rationale,omitempty"`
}

// record is one line in the append-only ledger file.
type record struct {
	Type      string      `json:"type"` // "attempt" or "unfixable"
	Key       catalog.Key `json:"key"`
	Attempt   int         `json:"attempt,omitempty"` // monotonic per key, 1-based
	Approach  string      `json:"approach,omitempty"`
	Rationale string      `json:"rationale,omitempty"`
	Timestamp string      `json:"ts"`
}

// Ledger is process-lifetime escalation state keyed by issue key.
type Ledger struct {
	path           string
	retryThreshold int
	records        map[catalog.Key]*AttemptRecord
	file           *os.File
}

// Open loads (or creates) the ledger file at path and replays its
// records. Replay is idempotent: duplicate attempt indexes for a key
// are skipped, so a partially re-applied file cannot double-count.
func Open(path string, retryThreshold int) (*Ledger, error) {
	if retryThreshold <= 0 {
		retryThreshold = 2
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	l := &Ledger{
		path:           path,
		retryThreshold: retryThreshold,
		records:        make(map[catalog.Key]*AttemptRecord),
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Close closes the underlying ledger file.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// replay rebuilds in-memory state from the ledger file.
func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("ledger %s line %d: %w", l.path, line, err)
		}
		l.apply(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	return nil
}

// apply folds one record into in-memory state.
func (l *Ledger) apply(rec record) {
	ar := l.records[rec.Key]
	switch rec.Type {
	case "attempt":
		if ar == nil {
			ar = &AttemptRecord{Key: rec.Key, Status: StatusOpen}
			l.records[rec.Key] = ar
		}
		// Skip duplicate attempt indexes on replay.
		if rec.Attempt <= ar.Attempts {
			return
		}
		ar.Attempts = rec.Attempt
		ar.ApproachesTried = append(ar.ApproachesTried, rec.Approach)
	case "unfixable":
		if ar == nil || ar.Status == StatusUnfixable {
			return
		}
		ar.Status = StatusUnfixable
		ar.Rationale = rec.Rationale
	}
}

// append writes one record to the ledger file and syncs it.
func (l *Ledger) append(rec record) error {
	rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return l.file.Sync()
}

// RecordAttempt records one failed fix approach for an issue. The
// record is created on first failure; successful fixes are never
// recorded. Attempts on an already-unfixable key are ignored.
func (l *Ledger) RecordAttempt(key catalog.Key, approach string) error {
	ar := l.records[key]
	if ar != nil && ar.Status == StatusUnfixable {
		return nil
	}
	next := 1
	if ar != nil {
		next = ar.Attempts + 1
	}
	rec := record{Type: "attempt", Key: key, Attempt: next, Approach: approach}
	if err := l.append(rec); err != nil {
		return err
	}
	l.apply(rec)
	return nil
}

// ShouldRetry reports whether the issue still has retry budget.
func (l *Ledger) ShouldRetry(key catalog.Key) bool {
	ar := l.records[key]
	if ar == nil {
		return true
	}
	if ar.Status == StatusUnfixable {
		return false
	}
	return ar.Attempts < l.retryThreshold
}

// MarkUnfixable closes an open issue with a rationale. It fails with
// ErrAlreadyResolved if the key has no open attempt record: either it
// was never attempted or it is already documented unfixable.
func (l *Ledger) MarkUnfixable(key catalog.Key, rationale string) error {
	ar := l.records[key]
	if ar == nil || ar.Status != StatusOpen {
		return fmt.Errorf("mark unfixable %s: %w", key, ErrAlreadyResolved)
	}
	rec := record{Type: "unfixable", Key: key, Rationale: rationale}
	if err := l.append(rec); err != nil {
		return err
	}
	l.apply(rec)
	return nil
}

// IsUnfixable reports whether the issue is documented unfixable.
func (l *Ledger) IsUnfixable(key catalog.Key) bool {
	ar := l.records[key]
	return ar != nil && ar.Status == StatusUnfixable
}

// Get returns a copy of the attempt record for a key, if any.
func (l *Ledger) Get(key catalog.Key) (AttemptRecord, bool) {
	ar := l.records[key]
	if ar == nil {
		return AttemptRecord{}, false
	}
	return *ar, true
}

// Records returns copies of all attempt records in stable key order.
func (l *Ledger) Records() []AttemptRecord {
	out := make([]AttemptRecord, 0, len(l.records))
	for _, ar := range l.records {
		out = append(out, *ar)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Unfixable returns all documented-unfixable records in stable key order.
func (l *Ledger) Unfixable() []AttemptRecord {
	var out []AttemptRecord
	for _, ar := range l.Records() {
		if ar.Status == StatusUnfixable {
			out = append(out, ar)
		}
	}
	return out
}
