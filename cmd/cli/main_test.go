package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pafigrid/internal/cli"
	"github.com/specialistvlad/pafigrid/internal/engine/memory"
	"github.com/stretchr/testify/require"
)

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// An HCL file with a syntax error fails while loading.
	invalidHCL := `
		axes {
			Temperature = [0
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "run.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0600), "failed to set up test file")
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, []string{"run", filePath})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.True(t, errors.As(runErr, &exitErr), "run() should return an exit error")
	require.Equal(t, cli.ExitConfiguration, exitErr.Code)
	require.Contains(t, exitErr.Message, "failed to parse")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"-h"}), "help exits cleanly")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"run", "--this-is-not-a-valid-flag"})
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_Sweep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i, x := range []float64{2.5, 3.5} {
		data := memory.DataFile([3]float64{8, 8, 8}, []float64{x, 1, 1, 4, 4, 4})
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("image_%d.dat", i)), []byte(data), 0o644))
	}
	runFile := fmt.Sprintf(`axes:
  Temperature: [0]
  ReactionCoordinate: {values: [0, 1]}
parameters:
  DumpFolder: %[1]s/dumps
pathway:
  directory: %[1]s
  potential: Fe.eam.fs
  files: [image_0.dat, image_1.dat]
`, filepath.ToSlash(dir))
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runFile), 0o644))

	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"run", "-n", "2", "--log-level", "warn", path}))
	require.FileExists(t, filepath.Join(dir, "dumps", "pafi_data_0.csv"))
	require.FileExists(t, filepath.Join(dir, "dumps", "config_0.hcl"))
	require.Contains(t, out.String(), "MaxJump")
}
