// Package workspace manages the migration workspace directory: numbered
// round directories with raw findings snapshots and round summaries,
// plus the append-only summary log and the escalation ledger file. A
// later run resuming the same workspace reconstructs identical state
// from identical history.
package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	findingsFile   = "findings.yaml"
	summaryFile    = "summary.json"
	summaryLogFile = "summaries.jsonl"
	ledgerFile     = "ledger.jsonl"
	eventsDBFile   = "migforge.db"
)

var roundDirPattern = regexp.MustCompile(`^round_(\d{3,})$`)

// Store manages migration run state on disk.
type Store struct {
	baseDir string
}

// Open creates a Store rooted at baseDir, creating the directory if needed.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the workspace root directory.
func (s *Store) BaseDir() string { return s.baseDir }

// LedgerPath returns the path of the escalation ledger file.
func (s *Store) LedgerPath() string { return filepath.Join(s.baseDir, ledgerFile) }

// EventsDBPath returns the path of the run event database.
func (s *Store) EventsDBPath() string { return filepath.Join(s.baseDir, eventsDBFile) }

// RoundDir returns the directory path for a round, e.g. round_003.
func (s *Store) RoundDir(round int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("round_%03d", round))
}

// FindingsPath returns the raw findings snapshot path for a round. The
// path is also handed to the analyzer as its output destination.
func (s *Store) FindingsPath(round int) string {
	return filepath.Join(s.RoundDir(round), findingsFile)
}

// InitRound creates the directory for a round.
func (s *Store) InitRound(round int) error {
	if err := os.MkdirAll(s.RoundDir(round), 0o755); err != nil {
		return fmt.Errorf("mkdir round dir: %w", err)
	}
	return nil
}

// SaveFindings writes the raw findings snapshot for a round.
func (s *Store) SaveFindings(round int, raw []byte) error {
	return WriteAtomic(s.FindingsPath(round), raw)
}

// ReadFindings reads the raw findings snapshot for a round.
func (s *Store) ReadFindings(round int) ([]byte, error) {
	return os.ReadFile(s.FindingsPath(round))
}

// SaveSummary writes the round summary and appends it to the summary log.
func (s *Store) SaveSummary(summary *RoundSummary) error {
	if err := WriteJSON(filepath.Join(s.RoundDir(summary.Round), summaryFile), summary); err != nil {
		return err
	}
	return s.appendSummaryLog(summary)
}

// GetSummary reads the summary for a round.
func (s *Store) GetSummary(round int) (*RoundSummary, error) {
	var summary RoundSummary
	if err := ReadJSON(filepath.Join(s.RoundDir(round), summaryFile), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// appendSummaryLog appends one summary line to the append-only log.
func (s *Store) appendSummaryLog(summary *RoundSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.baseDir, summaryLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open summary log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append summary log: %w", err)
	}
	return nil
}

// SummaryLog reads the full round-summary log in round order. Later
// entries for the same round supersede earlier ones, so a resumed run
// that re-executes a round does not double-report it.
func (s *Store) SummaryLog() ([]RoundSummary, error) {
	f, err := os.Open(filepath.Join(s.baseDir, summaryLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open summary log: %w", err)
	}
	defer f.Close()

	byRound := make(map[int]RoundSummary)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var summary RoundSummary
		if err := json.Unmarshal(scanner.Bytes(), &summary); err != nil {
			return nil, fmt.Errorf("summary log line %d: %w", line, err)
		}
		byRound[summary.Round] = summary
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read summary log: %w", err)
	}

	rounds := make([]int, 0, len(byRound))
	for r := range byRound {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)
	out := make([]RoundSummary, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, byRound[r])
	}
	return out, nil
}

// Rounds returns all round numbers present in the workspace, ascending.
func (s *Store) Rounds() ([]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}
	var rounds []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := roundDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rounds = append(rounds, n)
	}
	sort.Ints(rounds)
	return rounds, nil
}

// LatestRound returns the highest round number in the workspace, or 0
// if no rounds exist yet.
func (s *Store) LatestRound() (int, error) {
	rounds, err := s.Rounds()
	if err != nil {
		return 0, err
	}
	if len(rounds) == 0 {
		return 0, nil
	}
	return rounds[len(rounds)-1], nil
}
