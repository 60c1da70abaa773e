// Package runlog records per-artifact outcomes of a run in SQLite.
//
// The log lives inside the run's workspace and goes away with it. It is
// append-only: one runs row per run and one entries row per artifact,
// ordered by seq.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Status of one artifact.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Run identifies one invocation of the harness.
type Run struct {
	ID     string `json:"id"`
	Mode   string `json:"mode"`
	Target string `json:"target"`
}

// Entry is the recorded outcome of one artifact.
type Entry struct {
	Seq      int64  `json:"seq"`
	Artifact string `json:"artifact"`
	Status   Status `json:"status"`
	Output   string `json:"output"`
	Coverage string `json:"coverage,omitempty"`
}

// Store is the SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the log at path. ":memory:" gives a private
// in-memory log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to run log: %w", err)
	}

	// One connection: the harness is sequential and :memory: databases are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// BeginRun registers a run. Registering the same ID twice is a no-op.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, target) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Mode, run.Target)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Append adds the next entry of a run and returns it with Seq assigned.
func (s *Store) Append(ctx context.Context, runID string, e Entry) (Entry, error) {
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE run_id = ?
	`, runID).Scan(&e.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (run_id, seq, artifact, status, output, coverage)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, e.Seq, e.Artifact, string(e.Status), e.Output, e.Coverage)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	return e, nil
}

// Entries returns a run's entries in seq order.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, artifact, status, output, coverage
		FROM entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err := rows.Scan(&e.Seq, &e.Artifact, &status, &e.Output, &e.Coverage); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of passed and failed entries of a run.
func (s *Store) Counts(ctx context.Context, runID string) (passed, failed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pass' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'fail' THEN 1 ELSE 0 END), 0)
		FROM entries
		WHERE run_id = ?
	`, runID).Scan(&passed, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count entries: %w", err)
	}
	return passed, failed, nil
}
