// Package store provides SQLite-based persistence for run and attempt
// history.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the SQLite-backed audit trail: which runs happened, which tasks
// they executed, and every attempt with its condition verdicts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps in-memory databases coherent across queries.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema if not already at the current version.
func (s *Store) migrate() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		// Fresh database, apply full schema.
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version < currentSchemaVersion {
		return fmt.Errorf("schema version %d is older than %d, migration not yet implemented", version, currentSchemaVersion)
	}

	return nil
}

// --- Runs ---

// Run represents one invocation of the task set runner.
type Run struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	TaskFile  string    `json:"task_file,omitempty"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
}

// CreateRun starts a new run and returns its ID.
func (s *Store) CreateRun(taskFile, mode string) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO runs (task_file, mode) VALUES (?, ?)", taskFile, mode,
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	return result.LastInsertId()
}

// UpdateRunStatus sets the run status.
func (s *Store) UpdateRunStatus(id int64, status string) error {
	_, err := s.db.Exec("UPDATE runs SET status = ? WHERE id = ?", status, id)
	return err
}

// LatestRun returns the most recent run, or nil when none are recorded.
func (s *Store) LatestRun() (*Run, error) {
	r := &Run{}
	var taskFile sql.NullString
	err := s.db.QueryRow(
		"SELECT id, started_at, task_file, mode, status FROM runs ORDER BY id DESC LIMIT 1",
	).Scan(&r.ID, &r.StartedAt, &taskFile, &r.Mode, &r.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if taskFile.Valid {
		r.TaskFile = taskFile.String
	}
	return r, nil
}

// --- Task results ---

// TaskResult is the per-task outcome recorded for a run.
type TaskResult struct {
	RunID     int64  `json:"run_id"`
	TaskID    string `json:"task_id"`
	Name      string `json:"name"`
	Command   string `json:"command,omitempty"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// SaveTaskResult inserts or replaces a task's outcome for a run.
func (s *Store) SaveTaskResult(t *TaskResult) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO run_tasks (run_id, task_id, name, command, status, attempts, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TaskID, t.Name, t.Command, t.Status, t.Attempts, t.ElapsedMs,
	)
	return err
}

// TaskResults returns the task outcomes for a run in insertion order.
func (s *Store) TaskResults(runID int64) ([]*TaskResult, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, name, COALESCE(command, ''), status, attempts, elapsed_ms
		 FROM run_tasks WHERE run_id = ? ORDER BY rowid ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*TaskResult
	for rows.Next() {
		t := &TaskResult{}
		if err := rows.Scan(&t.RunID, &t.TaskID, &t.Name, &t.Command, &t.Status,
			&t.Attempts, &t.ElapsedMs); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// --- Attempts ---

// Attempt is one recorded execution attempt with its condition verdicts.
type Attempt struct {
	ID           int64     `json:"id"`
	RunID        int64     `json:"run_id"`
	TaskID       string    `json:"task_id"`
	Number       int       `json:"number"`
	StartedAt    time.Time `json:"started_at"`
	Command      string    `json:"command,omitempty"`
	ExitCode     int       `json:"exit_code"`
	TimedOut     bool      `json:"timed_out"`
	DurationMs   int64     `json:"duration_ms"`
	Stdout       string    `json:"stdout,omitempty"`
	Stderr       string    `json:"stderr,omitempty"`
	VerdictsJSON string    `json:"verdicts_json,omitempty"`
	Passed       bool      `json:"passed"`
	WaitBeforeMs int64     `json:"wait_before_ms"`
}

// RecordAttempt inserts an attempt and returns its ID.
func (s *Store) RecordAttempt(a *Attempt) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO attempts (run_id, task_id, number, started_at, command, exit_code,
		 timed_out, duration_ms, stdout, stderr, verdicts_json, passed, wait_before_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.TaskID, a.Number, a.StartedAt, a.Command, a.ExitCode,
		a.TimedOut, a.DurationMs, a.Stdout, a.Stderr, a.VerdictsJSON, a.Passed, a.WaitBeforeMs,
	)
	if err != nil {
		return 0, fmt.Errorf("recording attempt: %w", err)
	}
	return result.LastInsertId()
}

// Attempts returns all attempts for a task within a run, ordered by number.
func (s *Store) Attempts(runID int64, taskID string) ([]*Attempt, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, task_id, number, started_at, COALESCE(command, ''), exit_code,
		 timed_out, duration_ms, COALESCE(stdout, ''), COALESCE(stderr, ''),
		 COALESCE(verdicts_json, ''), passed, wait_before_ms
		 FROM attempts WHERE run_id = ? AND task_id = ? ORDER BY number ASC`, runID, taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.TaskID, &a.Number, &a.StartedAt,
			&a.Command, &a.ExitCode, &a.TimedOut, &a.DurationMs, &a.Stdout,
			&a.Stderr, &a.VerdictsJSON, &a.Passed, &a.WaitBeforeMs); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AttemptCount returns how many attempts are recorded for a task in a run.
func (s *Store) AttemptCount(runID int64, taskID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM attempts WHERE run_id = ? AND task_id = ?", runID, taskID,
	).Scan(&count)
	return count, err
}
