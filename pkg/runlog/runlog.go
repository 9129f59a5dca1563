// Package runlog keeps the SQLite journal of pipeline runs and the per-region
// fetch state (enabled flag, last outcome).
package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned by LastRun on an empty journal.
var ErrNoRuns = errors.New("no recorded run")

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Region is a row of the regions table.
type Region struct {
	Code       string
	Enabled    bool
	LastFetch  *int64
	LastStatus *string
	LastCount  *int
	LastError  *string
	UpdatedAt  int64
}

// Run is a row of the runs table.
type Run struct {
	ID             string
	StartedAt      int64
	FinishedAt     *int64
	Status         string
	TotalEvents    int
	Municipalities int
	Unmatched      int
	FailedRegions  []string
	Error          *string
}

// Outcome is what FinishRun records.
type Outcome struct {
	Status         string
	TotalEvents    int
	Municipalities int
	Unmatched      int
	FailedRegions  []string
	Err            error
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS regions (
		code         TEXT PRIMARY KEY,
		position     INTEGER NOT NULL,
		enabled      INTEGER NOT NULL DEFAULT 1,
		last_fetch   INTEGER,
		last_status  TEXT,
		last_count   INTEGER,
		last_error   TEXT,
		updated_at   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		started_at      INTEGER NOT NULL,
		finished_at     INTEGER,
		status          TEXT NOT NULL,
		total_events    INTEGER NOT NULL DEFAULT 0,
		municipalities  INTEGER NOT NULL DEFAULT 0,
		unmatched       INTEGER NOT NULL DEFAULT 0,
		failed_regions  TEXT NOT NULL DEFAULT '',
		error           TEXT
	)`,
}

// Journal manages the regions and runs tables.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the tables
// exist.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open runlog db: %w", err)
	}

	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create runlog tables: %w", err)
		}
	}

	return &Journal{db: db}, nil
}

// Close closes the SQLite connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Seed inserts one enabled row per region code (INSERT OR IGNORE: rows that
// already exist keep their enabled flag). Codes keep the given order for
// EnabledRegions.
func (j *Journal) Seed(codes []string) error {
	const q = `INSERT OR IGNORE INTO regions (code, position, enabled, updated_at) VALUES (?, ?, 1, ?)`

	now := time.Now().Unix()
	for i, code := range codes {
		if _, err := j.db.Exec(q, code, i, now); err != nil {
			return fmt.Errorf("seed %s: %w", code, err)
		}
	}
	return nil
}

// EnabledRegions returns the codes of enabled regions in seed order.
func (j *Journal) EnabledRegions() ([]string, error) {
	rows, err := j.db.Query(`SELECT code FROM regions WHERE enabled = 1 ORDER BY position, code`)
	if err != nil {
		return nil, fmt.Errorf("list enabled regions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SetEnabled enables or disables a region.
func (j *Journal) SetEnabled(code string, enabled bool) error {
	res, err := j.db.Exec(`UPDATE regions SET enabled = ?, updated_at = ? WHERE code = ?`,
		enabled, time.Now().Unix(), code)
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", code, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("region %s not found", code)
	}
	return nil
}

// RecordFetch persists the outcome of one region fetch.
func (j *Journal) RecordFetch(code string, count int, fetchErr error) error {
	status, n, errText := "ok", any(count), any(nil)
	if fetchErr != nil {
		status, n, errText = "error", nil, fetchErr.Error()
	}
	_, err := j.db.Exec(
		`UPDATE regions SET last_fetch = ?, last_status = ?, last_count = ?, last_error = ? WHERE code = ?`,
		time.Now().Unix(), status, n, errText, code,
	)
	if err != nil {
		return fmt.Errorf("record fetch for %s: %w", code, err)
	}
	return nil
}

// ListRegions returns all regions in seed order.
func (j *Journal) ListRegions() ([]Region, error) {
	rows, err := j.db.Query(`SELECT code, enabled, last_fetch, last_status, last_count, last_error, updated_at
		FROM regions ORDER BY position, code`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.Code, &r.Enabled, &r.LastFetch, &r.LastStatus, &r.LastCount,
			&r.LastError, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// StartRun records the start of a run.
func (j *Journal) StartRun(runID string, startedAt time.Time) error {
	_, err := j.db.Exec(`INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		runID, startedAt.Unix(), StatusRunning)
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (j *Journal) FinishRun(runID string, o Outcome) error {
	var errText *string
	if o.Err != nil {
		msg := o.Err.Error()
		errText = &msg
	}
	res, err := j.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, total_events = ?, municipalities = ?,
			unmatched = ?, failed_regions = ?, error = ? WHERE run_id = ?`,
		time.Now().Unix(), o.Status, o.TotalEvents, o.Municipalities, o.Unmatched,
		strings.Join(o.FailedRegions, ","), errText, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// LastRun returns the most recently started run.
func (j *Journal) LastRun() (*Run, error) {
	var (
		r      Run
		failed string
	)
	err := j.db.QueryRow(`SELECT run_id, started_at, finished_at, status, total_events, municipalities,
		unmatched, failed_regions, error FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.TotalEvents, &r.Municipalities,
			&r.Unmatched, &failed, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	if failed != "" {
		r.FailedRegions = strings.Split(failed, ",")
	}
	return &r, nil
}
