// Package sqlitestore persists ensemble datasets in a SQLite database. Every
// run owns the rows tagged with its run id in one wide samples table whose
// columns follow the record schema.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/pafigrid/internal/results"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    source TEXT,
    started_at TEXT NOT NULL,
    fields TEXT  -- JSON array, the record schema of the run
);

CREATE TABLE IF NOT EXISTS samples (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

// reserved columns that record fields may not shadow.
var reserved = []string{"run_id", "seq"}

// ErrUnknownRun is returned when loading a run that was never stored.
var ErrUnknownRun = errors.New("run not found")

// Store is a results.Sink that appends every new record of a run to the
// database.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	runID   string
	written int
	columns []string
}

// Open opens or creates the database at path and registers the run.
func Open(ctx context.Context, path, runID, source string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, started_at) VALUES (?, ?, ?)`,
		runID, source, time.Now().UTC().Format(time.RFC3339)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run %s: %w", runID, err)
	}
	return &Store{db: db, runID: runID}, nil
}

// RunID returns the id the rows of this store are tagged with.
func (s *Store) RunID() string { return s.runID }

// Write implements results.Sink. Rows already stored are skipped.
func (s *Store) Write(ctx context.Context, ds *results.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := ds.Rows()
	if len(rows) <= s.written {
		return nil
	}
	names := ds.Schema()
	if err := s.ensureColumns(ctx, names); err != nil {
		return err
	}

	cols := []string{"run_id", "seq"}
	for _, n := range names {
		cols = append(cols, column(n))
	}
	stmt := fmt.Sprintf(`INSERT INTO samples (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fields, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET fields = ? WHERE run_id = ?`, string(fields), s.runID); err != nil {
		return fmt.Errorf("failed to record run fields: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	for seq := s.written; seq < len(rows); seq++ {
		args := []any{s.runID, seq}
		for _, n := range names {
			v, _ := rows[seq].Get(n)
			args = append(args, sqlValue(v))
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	s.written = len(rows)
	return nil
}

// ensureColumns adds a column for every field the table does not have yet.
func (s *Store) ensureColumns(ctx context.Context, names []string) error {
	if s.columns == nil {
		existing, err := tableColumns(ctx, s.db)
		if err != nil {
			return err
		}
		s.columns = existing
	}
	for _, n := range names {
		if slices.Contains(reserved, n) {
			return fmt.Errorf("field %q clashes with a reserved column", n)
		}
		if slices.Contains(s.columns, n) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE samples ADD COLUMN %s`, column(n))); err != nil {
			return fmt.Errorf("failed to add column %s: %w", n, err)
		}
		s.columns = append(s.columns, n)
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('samples')`)
	if err != nil {
		return nil, fmt.Errorf("failed to read table columns: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close implements results.Sink.
func (s *Store) Close() error {
	return s.db.Close()
}

// column quotes a field name as an SQLite identifier.
func column(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqlValue maps a record value onto an SQLite storage class. Missing
// values are NULL; booleans and vectors are stored as their text.
func sqlValue(v results.Value) any {
	switch v.Kind() {
	case results.KindMissing:
		return nil
	case results.KindFloat, results.KindInt:
		f, _ := v.Number()
		if v.Kind() == results.KindInt {
			return int64(f)
		}
		return f
	}
	return v.Text()
}
