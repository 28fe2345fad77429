package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Run is one pipeline execution.
type Run struct {
	ID            string         `json:"id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Status        Status         `json:"status"`
	DryRun        bool           `json:"dry_run"`
	Since         time.Time      `json:"since"`
	Until         time.Time      `json:"until"`
	TotalSessions int            `json:"total_sessions"`
	AntiPatterns  int            `json:"anti_patterns"`
	Wins          int            `json:"wins"`
	ReportPath    string         `json:"report_path,omitempty"`
	Error         string         `json:"error,omitempty"`
	Categories    []CategoryStat `json:"categories,omitempty"`
}

// CategoryStat is a category's counts within a run.
type CategoryStat struct {
	Name         string  `json:"name"`
	Hits         int     `json:"hits"`
	AntiPatterns int     `json:"anti_patterns"`
	Wins         int     `json:"wins"`
	Delta        float64 `json:"delta"`
	Error        string  `json:"error,omitempty"`
}

// NewRun returns a running Run with a fresh ID.
func NewRun(startedAt time.Time, dryRun bool) *Run {
	return &Run{
		ID:        uuid.New().String(),
		StartedAt: startedAt,
		Status:    StatusRunning,
		DryRun:    dryRun,
	}
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SaveRun inserts or replaces run and its category stats.
func (s *Store) SaveRun(run *Run) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs
			(id, started_at, finished_at, status, dry_run, since, until,
			 total_sessions, anti_patterns, wins, report_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		nullTime(run.FinishedAt),
		string(run.Status),
		run.DryRun,
		nullTime(run.Since),
		nullTime(run.Until),
		run.TotalSessions,
		run.AntiPatterns,
		run.Wins,
		nullString(run.ReportPath),
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM run_categories WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear run categories: %w", err)
	}
	for i, c := range run.Categories {
		_, err := tx.Exec(`
			INSERT INTO run_categories (run_id, position, name, hits, anti_patterns, wins, delta, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, c.Name, c.Hits, c.AntiPatterns, c.Wins, c.Delta, nullString(c.Error),
		)
		if err != nil {
			return fmt.Errorf("failed to save run category %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Debug("Run recorded", "id", run.ID, "status", string(run.Status))
	return nil
}

// GetRun loads a run and its categories.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.conn.QueryRow(runSelect+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadCategories(run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without categories.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(runSelect+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastSuccessful returns the newest succeeded non-dry run, or nil.
func (s *Store) LastSuccessful() (*Run, error) {
	row := s.conn.QueryRow(runSelect+` WHERE status = ? AND dry_run = 0 ORDER BY started_at DESC LIMIT 1`, string(StatusSucceeded))
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.conn.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

const runSelect = `
	SELECT id, started_at, finished_at, status, dry_run, since, until,
	       total_sessions, anti_patterns, wins, report_path, error
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                      Run
		startedAt, status        string
		finishedAt, since, until sql.NullString
		reportPath, errText      sql.NullString
	)
	err := row.Scan(&run.ID, &startedAt, &finishedAt, &status, &run.DryRun, &since, &until,
		&run.TotalSessions, &run.AntiPatterns, &run.Wins, &reportPath, &errText)
	if err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.StartedAt = parseTime(sql.NullString{String: startedAt, Valid: true})
	run.FinishedAt = parseTime(finishedAt)
	run.Since = parseTime(since)
	run.Until = parseTime(until)
	run.ReportPath = reportPath.String
	run.Error = errText.String
	return &run, nil
}

func (s *Store) loadCategories(run *Run) error {
	rows, err := s.conn.Query(`
		SELECT name, hits, anti_patterns, wins, delta, error
		FROM run_categories WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryStat
		var errText sql.NullString
		if err := rows.Scan(&c.Name, &c.Hits, &c.AntiPatterns, &c.Wins, &c.Delta, &errText); err != nil {
			return err
		}
		c.Error = errText.String
		run.Categories = append(run.Categories, c)
	}
	return rows.Err()
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
