package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
)

const (
	snapshotPrefix = "config_"
	dataPrefix     = "pafi_data_"
	dataExtension  = ".csv"
)

// Output is the set of artifact locations of one run. All artifacts share the
// same integer suffix.
type Output struct {
	Dir      string
	Suffix   int
	Snapshot string
	Data     string
}

// ResolveOutput picks the next free suffix in the DumpFolder, creating the
// folder if needed, and writes the configuration snapshot there before
// returning. A suffix that already has artifacts is never reused.
func ResolveOutput(ctx context.Context, cfg *Config, enc Encoder) (*Output, error) {
	logger := ctxlog.FromContext(ctx)
	dirVal, _ := cfg.Parameters.Get(DumpFolder)
	dir := dirVal.String()
	if dir == "" {
		return nil, Errorf("%s must not be empty", DumpFolder)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dump folder: %w", err)
	}

	next, err := nextSuffix(dir)
	if err != nil {
		return nil, err
	}

	body, err := enc.Encode(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration snapshot: %w", err)
	}

	for {
		out := &Output{
			Dir:      dir,
			Suffix:   next,
			Snapshot: filepath.Join(dir, fmt.Sprintf("%s%d%s", snapshotPrefix, next, enc.Extension())),
			Data:     filepath.Join(dir, fmt.Sprintf("%s%d%s", dataPrefix, next, dataExtension)),
		}
		f, err := os.OpenFile(out.Snapshot, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			// Another run claimed this suffix between the scan and the create.
			next++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating configuration snapshot: %w", err)
		}
		if _, err := f.Write(body); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing configuration snapshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("closing configuration snapshot: %w", err)
		}
		logger.Info("Configuration snapshot written.", "path", out.Snapshot, "data", out.Data)
		return out, nil
	}
}

// nextSuffix returns one more than the largest suffix of any snapshot or
// dataset file in dir, or 0 when there are none.
func nextSuffix(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scanning dump folder: %w", err)
	}
	maxSuffix := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseSuffix(e.Name()); ok && n > maxSuffix {
			maxSuffix = n
		}
	}
	return maxSuffix + 1, nil
}

func parseSuffix(name string) (int, bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, snapshotPrefix):
		rest = strings.TrimPrefix(name, snapshotPrefix)
	case strings.HasPrefix(name, dataPrefix):
		rest = strings.TrimPrefix(name, dataPrefix)
	default:
		return 0, false
	}
	rest = strings.TrimSuffix(rest, filepath.Ext(rest))
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
