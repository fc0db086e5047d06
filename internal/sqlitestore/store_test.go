package sqlitestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(worker int, rc float64, valid bool) results.Record {
	var r results.Record
	r.Set("ReactionCoordinate", results.Float(rc))
	r.Set(results.FieldWorkerID, results.Int(worker))
	r.Set(results.FieldAveF, results.Float(0.125*float64(worker)))
	r.Set(results.FieldDev, results.Vector([]float64{0.5, -0.25}))
	r.Set(results.FieldValid, results.Bool(valid))
	return r
}

func TestStore_WriteIsIncremental(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "pafi.db")

	store, err := Open(ctx, path, "run-1", "config_0.hcl")
	require.NoError(t, err)
	defer store.Close()

	ds := results.NewDataset()
	require.NoError(t, ds.Append([]results.Record{sample(1, 0, true), sample(0, 0, false)}))
	require.NoError(t, store.Write(ctx, ds))
	require.NoError(t, store.Write(ctx, ds), "rewriting the same rounds inserts nothing")

	missing := sample(1, 0.5, true)
	missing.Set(results.FieldAveF, results.Missing())
	require.NoError(t, ds.Append([]results.Record{sample(0, 0.5, true), missing}))
	require.NoError(t, store.Write(ctx, ds))

	back, err := Load(ctx, path, "run-1")
	require.NoError(t, err)
	require.Equal(t, ds.Schema(), back.Schema())
	want, got := ds.Rows(), back.Rows()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "row %d: want %v, got %v", i, want[i].Fields(), got[i].Fields())
	}

	runs, err := Runs(ctx, path)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "config_0.hcl", runs[0].Source)
	assert.Equal(t, 4, runs[0].Samples)
}

func TestStore_RunsShareTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pafi.db")

	first, err := Open(ctx, path, "a", "")
	require.NoError(t, err)
	ds := results.NewDataset()
	require.NoError(t, ds.Append([]results.Record{sample(0, 0, true)}))
	require.NoError(t, first.Write(ctx, ds))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, "b", "")
	require.NoError(t, err)
	defer second.Close()
	extra := sample(0, 1, true)
	extra.Set("ave_dV", results.Float(2))
	other := results.NewDataset()
	require.NoError(t, other.Append([]results.Record{extra}))
	require.NoError(t, second.Write(ctx, other))

	a, err := Load(ctx, path, "a")
	require.NoError(t, err)
	assert.NotContains(t, a.Schema(), "ave_dV")
	assert.Equal(t, 1, a.Len())

	b, err := Load(ctx, path, "b")
	require.NoError(t, err)
	assert.Contains(t, b.Schema(), "ave_dV")

	_, err = Open(ctx, path, "a", "")
	assert.Error(t, err, "run ids are unique")
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Load(ctx, filepath.Join(dir, "absent.db"), "x")
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "pafi.db")
	store, err := Open(ctx, path, "empty", "")
	require.NoError(t, err)
	defer store.Close()

	_, err = Load(ctx, path, "nope")
	require.ErrorIs(t, err, ErrUnknownRun)

	ds, err := Load(ctx, path, "empty")
	require.NoError(t, err)
	assert.Zero(t, ds.Len())
}
