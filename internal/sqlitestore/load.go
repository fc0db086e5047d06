package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/results"
)

// Run describes one stored run.
type Run struct {
	ID        string
	Source    string
	StartedAt string
	Samples   int
}

func openExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Runs lists the runs stored in the database at path, oldest first.
func Runs(ctx context.Context, path string) ([]Run, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT r.run_id, COALESCE(r.source, ''), r.started_at, COUNT(s.seq)
		FROM runs r LEFT JOIN samples s ON s.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.StartedAt, &r.Samples); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Load reads the dataset of one run back, in the order it was written.
func Load(ctx context.Context, path, runID string) (*results.Dataset, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var fields sql.NullString
	err = db.QueryRowContext(ctx, `SELECT fields FROM runs WHERE run_id = ?`, runID).Scan(&fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	ds := results.NewDataset()
	if !fields.Valid {
		return ds, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(fields.String), &names); err != nil {
		return nil, fmt.Errorf("run %s has a corrupt field list: %w", runID, err)
	}

	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = column(n)
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM samples WHERE run_id = ? ORDER BY seq`, strings.Join(cols, ", ")), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	defer rows.Close()

	var records []results.Record
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		var rec results.Record
		for i, n := range names {
			rec.Set(n, fromSQL(raw[i]))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ds.Restore(records); err != nil {
		return nil, err
	}
	return ds, nil
}

// fromSQL is the inverse of sqlValue.
func fromSQL(v any) results.Value {
	switch x := v.(type) {
	case nil:
		return results.Missing()
	case int64:
		return results.Int(int(x))
	case float64:
		return results.Float(x)
	case []byte:
		return results.ParseText(string(x))
	case string:
		return results.ParseText(x)
	}
	return results.String(fmt.Sprint(v))
}
