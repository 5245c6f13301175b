package db

import (
	"database/sql"
	"fmt"

	"github.com/migforge/migforge/internal/workspace"
)

// LogRoundEvent inserts a round lifecycle event.
func (d *DB) LogRoundEvent(round int, event string, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO round_events (round, event, detail) VALUES (?, ?, ?)`,
		round, event, detail,
	)
	if err != nil {
		return fmt.Errorf("log round event: %w", err)
	}
	return nil
}

// LogFixAttempt inserts one fix-attempt record for an issue key.
func (d *DB) LogFixAttempt(round int, rank int, issueKey string, success bool, approach string) error {
	_, err := d.conn.Exec(
		`INSERT INTO fix_attempts (round, rank, issue_key, success, approach) VALUES (?, ?, ?, ?, ?)`,
		round, rank, issueKey, success, approach,
	)
	if err != nil {
		return fmt.Errorf("log fix attempt: %w", err)
	}
	return nil
}

// SaveRoundStats upserts the per-round issue counters. A resumed run
// that re-executes a round overwrites the stale row.
func (d *DB) SaveRoundStats(s *workspace.RoundSummary) error {
	_, err := d.conn.Exec(
		`INSERT INTO round_stats (round, total, actionable, new_count, resolved, persisting, unfixable, build, verdict)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(round) DO UPDATE SET
		   total=excluded.total, actionable=excluded.actionable,
		   new_count=excluded.new_count, resolved=excluded.resolved,
		   persisting=excluded.persisting, unfixable=excluded.unfixable,
		   build=excluded.build, verdict=excluded.verdict,
		   timestamp=datetime('now')`,
		s.Round, s.TotalIssues, s.Actionable, s.New, s.Resolved, s.Persisting,
		s.Unfixable, string(s.Build), s.Verdict,
	)
	if err != nil {
		return fmt.Errorf("save round stats: %w", err)
	}
	return nil
}

// RoundTrend is one row of the round-by-round issue-count trend.
type RoundTrend struct {
	Round      int    `json:"round"`
	Total      int    `json:"total"`
	Actionable int    `json:"actionable"`
	New        int    `json:"new"`
	Resolved   int    `json:"resolved"`
	Persisting int    `json:"persisting"`
	Unfixable  int    `json:"unfixable"`
	Build      string `json:"build"`
	Verdict    string `json:"verdict"`
}

// QueryTrend returns per-round issue counters in round order.
func (d *DB) QueryTrend() ([]RoundTrend, error) {
	rows, err := d.conn.Query(
		`SELECT round, total, actionable, new_count, resolved, persisting, unfixable, build, verdict
		 FROM round_stats ORDER BY round ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var out []RoundTrend
	for rows.Next() {
		var t RoundTrend
		if err := rows.Scan(&t.Round, &t.Total, &t.Actionable, &t.New, &t.Resolved,
			&t.Persisting, &t.Unfixable, &t.Build, &t.Verdict); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AttemptHistory is the recorded fix history for one issue key.
type AttemptHistory struct {
	IssueKey string `json:"issue_key"`
	Attempts int    `json:"attempts"`
	Failures int    `json:"failures"`
	LastSeen string `json:"last_seen"`
}

// QueryAttemptHistory returns fix-attempt counts per issue key, most
// attempted first.
func (d *DB) QueryAttemptHistory() ([]AttemptHistory, error) {
	rows, err := d.conn.Query(
		`SELECT issue_key, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), MAX(timestamp)
		 FROM fix_attempts GROUP BY issue_key ORDER BY COUNT(*) DESC, issue_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query attempt history: %w", err)
	}
	defer rows.Close()

	var out []AttemptHistory
	for rows.Next() {
		var h AttemptHistory
		var failures sql.NullInt64
		if err := rows.Scan(&h.IssueKey, &h.Attempts, &failures, &h.LastSeen); err != nil {
			return nil, fmt.Errorf("scan attempt history: %w", err)
		}
		if failures.Valid {
			h.Failures = int(failures.Int64)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
