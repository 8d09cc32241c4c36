// Package audit keeps a SQLite-backed record of projection runs: one row
// per run with its input fingerprint and headline results, so any payload
// can be traced back to the run that produced it.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultDBPath = "audit/audit.sqlite"

// Run is one recorded projection run.
type Run struct {
	ID          string
	At          time.Time
	InputHash   string
	PolicyVer   int
	Mode        string
	Style       string
	Band        string
	Readiness   float64
	SolverTier  string
	Evaluations int
}

// Logger writes run records to a specific SQLite DB path.
type Logger struct {
	DBPath string
}

// NewLogger returns a Logger bound to the provided DB path.
func NewLogger(dbPath string) *Logger {
	return &Logger{DBPath: dbPath}
}

// Record assigns the run a fresh id, stamps it, and appends it to the log.
// Returns the assigned run id.
func (l *Logger) Record(run Run) (string, error) {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return "", err
	}

	run.ID = uuid.NewString()
	run.At = time.Now().UTC()

	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return "", fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := ensureSchema(db); err != nil {
		return "", err
	}

	_, err = db.Exec(
		`INSERT INTO runs (id, ts, input_hash, policy_version, mode, style, band, readiness, solver_tier, evaluations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.At, run.InputHash, run.PolicyVer, run.Mode, run.Style,
		run.Band, run.Readiness, run.SolverTier, run.Evaluations,
	)
	if err != nil {
		return "", fmt.Errorf("insert audit run: %w", err)
	}
	return run.ID, nil
}

// Tail returns the most recent runs, newest first.
func (l *Logger) Tail(n int) ([]Run, error) {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 10
	}

	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT id, ts, input_hash, policy_version, mode, style, band, readiness, solver_tier, evaluations
		 FROM runs ORDER BY ts DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.At, &r.InputHash, &r.PolicyVer, &r.Mode,
			&r.Style, &r.Band, &r.Readiness, &r.SolverTier, &r.Evaluations); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit runs: %w", err)
	}
	return runs, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			input_hash TEXT NOT NULL,
			policy_version INTEGER NOT NULL,
			mode TEXT NOT NULL,
			style TEXT NOT NULL,
			band TEXT NOT NULL,
			readiness REAL NOT NULL,
			solver_tier TEXT NOT NULL,
			evaluations INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func resolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = os.Getenv("TRAINCAST_AUDIT_DB")
	}
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure audit db dir: %w", err)
	}
	return absPath, nil
}
