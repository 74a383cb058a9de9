// Package history records evaluation passes in SQLite. Each workspace keeps
// its own history.db inside its data directory; Recorder routes engine events
// to the Store owning the right database file.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// StatusRunning marks a run that has started but not yet finished. Finished
// runs carry whatever status the engine passed to FinishRun.
const StatusRunning = "running"

// timeFormat is RFC3339 with zero-padded nanoseconds so stored timestamps
// sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one evaluation pass over a workspace.
type Run struct {
	ID          string
	Workspace   string
	Target      string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Step is one resource computed, or failed, during a run.
type Step struct {
	RunID      string
	Resource   string
	Status     string
	ElapsedMS  int64
	Error      string
	RecordedAt time.Time
}

// Store persists runs and their steps in a single SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens the database at path, creating the file if missing.
// Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping history database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string {
	return s.path
}

// BeginRun records the start of an evaluation pass and returns its run ID.
func (s *Store) BeginRun(workspace, target string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, workspace, target, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, workspace, target, StatusRunning, formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordStep records one resource outcome within a run.
func (s *Store) RecordStep(runID, resource, status string, elapsed time.Duration, errText string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO run_steps (run_id, resource, status, elapsed_ms, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, resource, status, elapsed.Milliseconds(), nullString(errText), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// FinishRun marks a run as finished with the given status.
func (s *Store) FinishRun(runID, status, errText string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, formatTime(time.Now()), nullString(errText), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, workspace, target, status, started_at, completed_at, error
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// falls back to 20.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, workspace, target, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Steps returns the steps of a run in the order they were recorded.
func (s *Store) Steps(runID string) ([]Step, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id, resource, status, elapsed_ms, error, recorded_at
		 FROM run_steps WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []Step
	for rows.Next() {
		var (
			step       Step
			errText    sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&step.RunID, &step.Resource, &step.Status, &step.ElapsedMS, &errText, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.Error = errText.String
		if step.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse step time: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run         Run
		startedAt   string
		completedAt sql.NullString
		errText     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Workspace, &run.Target, &run.Status, &startedAt, &completedAt, &errText); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse run start time: %w", err)
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run completion time: %w", err)
		}
		run.CompletedAt = &t
	}
	run.Error = errText.String
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
