package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"epi-data-pipeline/internal/model"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs
var ErrRunNotFound = errors.New("run not found")

// Store is the SQLite run ledger
type Store struct {
	db *sql.DB
}

// Run is one ledger row
type Run struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunError is an error recorded against a run
type RunError struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Open connects to the SQLite file at dbPath and creates the tables if
// they do not exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		operation TEXT,
		input TEXT,
		output TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`
	stageTable := `
	CREATE TABLE IF NOT EXISTS stage_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		status TEXT,
		started_at DATETIME,
		ended_at DATETIME,
		records_in INTEGER,
		records_out INTEGER
	);
	`

	for _, stmt := range []string{runTable, errorTable, stageTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create ledger tables: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun stores a new run in running state
func (s *Store) CreateRun(runID, operation, input, output string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`INSERT INTO runs (id, operation, input, output, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, operation, input, output, model.StatusRunning, now, now)
	return err
}

// UpdateRunStatus updates run status
func (s *Store) UpdateRunStatus(runID, status string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveRunError records an error for a run
func (s *Store) SaveRunError(runID, stage string, err error) error {
	if err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := s.db.Exec(`INSERT INTO run_errors (run_id, stage, error_message, created_at) VALUES (?, ?, ?, ?)`,
		runID, stage, err.Error(), now)
	return e
}

// SaveStageProgress records a finished stage
func (s *Store) SaveStageProgress(runID string, st model.StageMetrics) error {
	_, err := s.db.Exec(`INSERT INTO stage_progress (run_id, stage, status, started_at, ended_at, records_in, records_out) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, st.StageName, st.Status, st.StartTime.UTC(), st.EndTime.UTC(), st.RecordsIn, st.RecordsOut)
	return err
}

// ListRuns returns all runs, newest first
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, operation, input, output, status, created_at, updated_at FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Operation, &r.Input, &r.Output, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run
func (s *Store) GetRun(runID string) (*Run, error) {
	var r Run
	err := s.db.QueryRow(`SELECT id, operation, input, output, status, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Operation, &r.Input, &r.Output, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRunErrors returns the errors recorded for a run, oldest first
func (s *Store) GetRunErrors(runID string) ([]RunError, error) {
	rows, err := s.db.Query(`SELECT stage, error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunError
	for rows.Next() {
		var e RunError
		if err := rows.Scan(&e.Stage, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetStageProgress returns the stages recorded for a run in execution order
func (s *Store) GetStageProgress(runID string) ([]model.StageMetrics, error) {
	rows, err := s.db.Query(`SELECT stage, status, started_at, ended_at, records_in, records_out FROM stage_progress WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StageMetrics
	for rows.Next() {
		var st model.StageMetrics
		if err := rows.Scan(&st.StageName, &st.Status, &st.StartTime, &st.EndTime, &st.RecordsIn, &st.RecordsOut); err != nil {
			return nil, err
		}
		st.Duration = st.EndTime.Sub(st.StartTime)
		out = append(out, st)
	}
	return out, rows.Err()
}
