package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink receives the full dataset after every round.
type Sink interface {
	Write(ctx context.Context, ds *Dataset) error
	Close() error
}

// CSVSink rewrites a CSV file with the whole dataset on every Write.
type CSVSink struct {
	Path string
}

// NewCSVSink returns a sink writing to path.
func NewCSVSink(path string) *CSVSink { return &CSVSink{Path: path} }

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, ds *Dataset) error {
	return WriteCSV(s.Path, ds)
}

// Close implements Sink.
func (s *CSVSink) Close() error { return nil }

// WriteCSV writes ds to path through a temporary file in the same
// directory, so readers never see a partial file. The directory must exist.
func WriteCSV(path string, ds *Dataset) (err error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("dataset directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dataset directory %s is not a directory", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary dataset file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = EncodeCSV(tmp, ds); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing dataset file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing dataset file: %w", err)
	}
	return nil
}

// EncodeCSV writes the schema as header followed by one row per record.
func EncodeCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	schema := ds.Schema()
	if len(schema) == 0 {
		cw.Flush()
		return cw.Error()
	}
	if err := cw.Write(schema); err != nil {
		return err
	}
	row := make([]string, len(schema))
	for _, r := range ds.Rows() {
		for i, name := range schema {
			v, _ := r.Get(name)
			row[i] = v.Text()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads one or more dataset files into a single dataset. Every file
// must have the same header.
func ReadCSV(paths ...string) (*Dataset, error) {
	ds := NewDataset()
	for _, p := range paths {
		if err := readCSVFile(p, ds); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return ds, nil
}

func readCSVFile(path string, ds *Dataset) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	var rows []Record
	for {
		line, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		var r Record
		for i, name := range header {
			r.Set(name, ParseText(line[i]))
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil
	}
	return ds.Restore(rows)
}

// Restore adds rows read back from storage as one round, keeping their
// order.
func (d *Dataset) Restore(rows []Record) error {
	if len(rows) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	names := rows[0].Names()
	if d.schema == nil {
		d.schema = names
	}
	for _, r := range rows {
		if len(r.fields) != len(d.schema) {
			return fmt.Errorf("%w: row has %d fields, dataset has %d", ErrSchemaMismatch, len(r.fields), len(d.schema))
		}
		for i, f := range r.fields {
			if f.Name != d.schema[i] {
				return fmt.Errorf("%w: column %d is %s, dataset has %s", ErrSchemaMismatch, i, f.Name, d.schema[i])
			}
		}
		d.rows = append(d.rows, r)
	}
	d.rounds++
	return nil
}
