package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/pafigrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandAxis(t *testing.T) {
	testCases := []struct {
		name string
		spec []float64
		want []float64
	}{
		{name: "grid", spec: []float64{0, 1, 5}, want: []float64{0, 0.25, 0.5, 0.75, 1}},
		{name: "too many points is literal", spec: []float64{0, 1, 20}, want: []float64{0, 1, 20}},
		{name: "descending is literal", spec: []float64{1, 0, 5}, want: []float64{1, 0, 5}},
		{name: "single point is literal", spec: []float64{0, 1, 1}, want: []float64{0, 1, 1}},
		{name: "two values", spec: []float64{0, 300}, want: []float64{0, 300}},
		{name: "four values", spec: []float64{0, 0.5, 0.75, 1}, want: []float64{0, 0.5, 0.75, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExpandAxis(tc.spec)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ExpandAxis(%v) mismatch (-want +got):\n%s", tc.spec, diff)
			}
		})
	}
}

func TestParameters_LookupRegistersUnknownKey(t *testing.T) {
	ctx, logs := testutil.Context(t)
	p := DefaultParameters()

	v := p.Lookup(ctx, "Bespoke", Float(2.5))
	assert.Equal(t, 2.5, v.Float())
	assert.True(t, p.Has("Bespoke"))
	testutil.AssertLogged(t, logs, "Parameter not registered", "key=Bespoke")

	// The second lookup finds the registered value and ignores the new default.
	v = p.Lookup(ctx, "Bespoke", Float(9))
	assert.Equal(t, 2.5, v.Float())
}

func TestParameters_Override(t *testing.T) {
	p := DefaultParameters()

	require.NoError(t, p.Override(SampleSteps, 50))
	v, _ := p.Get(SampleSteps)
	assert.Equal(t, KindInt, v.Kind())
	assert.Equal(t, 50, v.Int())

	require.NoError(t, p.Override(LinearThermalExpansion, 1e-5))
	v, _ = p.Get(LinearThermalExpansion)
	assert.Equal(t, []float64{1e-5, 1e-5, 1e-5}, v.Vector())

	err := p.Override("NotInSchema", 1)
	require.ErrorIs(t, err, ErrConfiguration)

	err = p.Override(SampleSteps, 1.5)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBuilder_UnknownParameterIsSkipped(t *testing.T) {
	ctx, logs := testutil.Context(t)

	cfg, err := NewBuilder(ctx).
		DefaultAxes().
		Parameter("FutureKnob", 3).
		Parameter(Friction, 0.1).
		Build()
	require.NoError(t, err)

	assert.False(t, cfg.Parameters.Has("FutureKnob"))
	f, _ := cfg.Parameters.Get(Friction)
	assert.Equal(t, 0.1, f.Float())
	testutil.AssertLogged(t, logs, "Unknown parameter", "key=FutureKnob")
}

func TestBuilder_RequiresCoreAxes(t *testing.T) {
	ctx, _ := testutil.Context(t)

	_, err := NewBuilder(ctx).AxisSpec(AxisTemperature, []float64{0}).Build()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), AxisReactionCoordinate)
}

func TestBuilder_RejectsUnknownBoundaryCondition(t *testing.T) {
	ctx, _ := testutil.Context(t)

	_, err := NewBuilder(ctx).
		DefaultAxes().
		Parameter(CubicSplineBoundaryConditions, "periodic").
		Build()
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBuilder_AxisOrderIsDeclarationOrder(t *testing.T) {
	ctx, _ := testutil.Context(t)

	cfg, err := NewBuilder(ctx).
		AxisValues(AxisTemperature, []float64{0, 100}).
		AxisSpec(AxisReactionCoordinate, []float64{0, 1, 3}).
		AxisValues(AxisTemperature, []float64{300}).
		Build()
	require.NoError(t, err)

	want := []Axis{
		{Name: AxisTemperature, Values: []float64{300}},
		{Name: AxisReactionCoordinate, Values: []float64{0, 0.5, 1}},
	}
	if diff := cmp.Diff(want, cfg.Axes()); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Expansion(t *testing.T) {
	ctx, _ := testutil.Context(t)

	cfg, err := NewBuilder(ctx).
		DefaultAxes().
		Parameter(LinearThermalExpansion, []any{1e-3, 2e-3, 0.0}).
		Parameter(QuadraticThermalExpansion, 1e-6).
		Build()
	require.NoError(t, err)

	got := cfg.Expansion(100)
	assert.InDelta(t, 1+0.1+0.01, got[0], 1e-12)
	assert.InDelta(t, 1+0.2+0.01, got[1], 1e-12)
	assert.InDelta(t, 1+0.01, got[2], 1e-12)
	assert.Equal(t, [3]float64{1, 1, 1}, cfg.Expansion(0))
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	ctx, _ := testutil.Context(t)

	cfg, err := NewBuilder(ctx).DefaultAxes().Script(ScriptPreRun, "run 0").Build()
	require.NoError(t, err)

	clone := cfg.Clone()
	require.NoError(t, clone.Parameters.Override(SampleSteps, 7))

	orig, _ := cfg.Parameters.Get(SampleSteps)
	assert.Equal(t, 2000, orig.Int())
	s, ok := clone.Script(ScriptPreRun)
	require.True(t, ok)
	assert.Equal(t, "run 0", s)
}

type stubEncoder struct{}

func (stubEncoder) Encode(*Config) ([]byte, error) { return []byte("snapshot\n"), nil }
func (stubEncoder) Extension() string { return ".hcl" }

func TestResolveOutput_NeverReusesSuffix(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"dumps/config_0.hcl":     "",
		"dumps/config_3.hcl":     "",
		"dumps/pafi_data_5.csv":  "",
		"dumps/config_notes.hcl": "",
		"dumps/unrelated_9.txt":  "",
	})
	dumps := filepath.Join(dir, "dumps")

	cfg, err := NewBuilder(ctx).DefaultAxes().Parameter(DumpFolder, dumps).Build()
	require.NoError(t, err)

	first, err := ResolveOutput(ctx, cfg, stubEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 6, first.Suffix)
	assert.Equal(t, filepath.Join(dumps, "pafi_data_6.csv"), first.Data)

	body, err := os.ReadFile(first.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, "snapshot\n", string(body))

	second, err := ResolveOutput(ctx, cfg, stubEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 7, second.Suffix)
}

func TestResolveOutput_CreatesFolder(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dumps := filepath.Join(t.TempDir(), "nested", "dumps")

	cfg, err := NewBuilder(ctx).DefaultAxes().Parameter(DumpFolder, dumps).Build()
	require.NoError(t, err)

	out, err := ResolveOutput(ctx, cfg, stubEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Suffix)
	assert.FileExists(t, filepath.Join(dumps, "config_0.hcl"))
}
