package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"roundtable-report/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

var db *sql.DB

// Initialize DB connection
func InitDB(dbPath string) error {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	// runs are written from the runner goroutine and read by API handlers
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	tables := []string{`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`, `
	CREATE TABLE IF NOT EXISTS run_reports (
		run_id TEXT,
		report_id TEXT,
		status TEXT,
		stats TEXT,
		updated_at DATETIME,
		PRIMARY KEY (run_id, report_id)
	);`, `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		report_id TEXT,
		stage TEXT,
		error_type TEXT,
		error_message TEXT,
		created_at DATETIME
	);`, `
	CREATE TABLE IF NOT EXISTS run_tables (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		report_id TEXT,
		label TEXT,
		n_rows INTEGER,
		n_cols INTEGER,
		path TEXT
	);`,
	}
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the connection opened by InitDB.
func Close() error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// SaveRun stores a new pending run
func SaveRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(specJSON), model.StatusPending, now, now)
	return err
}

// UpdateRunStatus updates run status
func UpdateRunStatus(runID string, status string) error {
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	return err
}

// SaveReportStats inserts or replaces the stats of one report id within a run.
func SaveReportStats(runID string, stats *model.ReportStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT OR REPLACE INTO run_reports (run_id, report_id, status, stats, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, stats.ReportID, stats.Status, string(statsJSON), time.Now().UTC())
	return err
}

// SaveRunError records an error for a run
func SaveRunError(runID string, detail model.ErrorDetail) error {
	if detail.Timestamp.IsZero() {
		detail.Timestamp = time.Now().UTC()
	}
	_, err := db.Exec(`INSERT INTO run_errors (run_id, report_id, stage, error_type, error_message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, detail.ReportID, detail.Stage, detail.ErrorType, detail.Message, detail.Timestamp)
	return err
}

// SaveTables records the pivot tables produced for a report id.
func SaveTables(runID string, tables []model.TableInfo) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO run_tables (run_id, report_id, label, n_rows, n_cols, path) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tables {
		if _, err := stmt.Exec(runID, t.ReportID, t.Label, t.Rows, t.Cols, t.Path); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns all runs with basic info, newest first
func ListRuns() ([]model.Run, error) {
	rows, err := db.Query(`SELECT id, spec, status, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run with the stats of every report id
func GetRun(runID string) (*model.Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT id, spec, status, created_at, updated_at FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT stats FROM run_reports WHERE run_id = ? ORDER BY report_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var statsJSON string
		if err := rows.Scan(&statsJSON); err != nil {
			return nil, err
		}
		var stats model.ReportStats
		if err := json.Unmarshal([]byte(statsJSON), &stats); err != nil {
			return nil, fmt.Errorf("decode stats of run %s: %w", runID, err)
		}
		run.Reports = append(run.Reports, stats)
	}
	return &run, rows.Err()
}

// GetRunErrors returns the errors recorded for a run in insertion order
func GetRunErrors(runID string) ([]model.ErrorDetail, error) {
	rows, err := db.Query(`SELECT report_id, stage, error_type, error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := []model.ErrorDetail{}
	for rows.Next() {
		var d model.ErrorDetail
		if err := rows.Scan(&d.ReportID, &d.Stage, &d.ErrorType, &d.Message, &d.Timestamp); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// GetRunTables returns the tables recorded for a run
func GetRunTables(runID string) ([]model.TableInfo, error) {
	rows, err := db.Query(`SELECT report_id, label, n_rows, n_cols, path FROM run_tables WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []model.TableInfo{}
	for rows.Next() {
		var t model.TableInfo
		if err := rows.Scan(&t.ReportID, &t.Label, &t.Rows, &t.Cols, &t.Path); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (model.Run, error) {
	var run model.Run
	var specJSON string
	if err := s.Scan(&run.ID, &specJSON, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(specJSON), &run.Spec); err != nil {
		return run, fmt.Errorf("decode spec of run %s: %w", run.ID, err)
	}
	return run, nil
}
