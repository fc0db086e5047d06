package sampler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/engine/memory"
	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/testutil"
	"github.com/specialistvlad/pafigrid/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePathway writes three configurations of two atoms in a cubic box of
// side 8: atom 1 hops along x from 2.5 to 3.5, atom 2 stays put.
func writePathway(t *testing.T) config.Pathway {
	t.Helper()
	dir := t.TempDir()
	var files []string
	for i, x := range []float64{2.5, 3.0, 3.5} {
		name := fmt.Sprintf("image_%d.dat", i)
		data := memory.DataFile([3]float64{8, 8, 8}, []float64{x, 1, 1, 4, 4, 4})
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
		files = append(files, name)
	}
	return config.Pathway{Directory: dir, Potential: "Fe.eam.fs", Files: files}
}

type fixture struct {
	params  map[string]any
	scripts map[string]string
	engine  memory.Options
	path    *config.Pathway
}

func (f fixture) build(t *testing.T, ctx context.Context) (*Sampler, *memory.Engine) {
	t.Helper()
	p := writePathway(t)
	if f.path != nil {
		p = *f.path
	}
	b := config.NewBuilder(ctx).DefaultAxes().Pathway(p)
	for k, v := range f.params {
		b.Parameter(k, v)
	}
	for k, v := range f.scripts {
		b.Script(k, v)
	}
	cfg, err := b.Build()
	require.NoError(t, err)

	eng := memory.New(f.engine)
	s, err := New(ctx, Options{
		Config:   cfg,
		Engine:   eng,
		Seeder:   topology.NewSeeder(137, 0, topology.SeedPolicyFromConfig(cfg)),
		WorkerID: 2,
		Rank:     4,
	})
	require.NoError(t, err)
	return s, eng
}

func value(t *testing.T, rec results.Record, name string) results.Value {
	t.Helper()
	v, ok := rec.Get(name)
	require.True(t, ok, "record has no field %s: %v", name, rec.Names())
	return v
}

func number(t *testing.T, rec results.Record, name string) float64 {
	t.Helper()
	f, ok := value(t, rec, name).Number()
	require.True(t, ok, "field %s is not numeric", name)
	return f
}

func TestSample_Outputs(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.25, 300))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ReactionCoordinate", "Temperature", "WorkerID", "Rank",
		"MinEnergy", "preT", "aveF", "varF", "avePsi", "dXTangent",
		"postT", "MaxJump", "Valid", "Errors",
	}, rec.Names())

	plane, err := s.Pathway().Hyperplane(0.25, [3]float64{1, 1, 1})
	require.NoError(t, err)
	aveF := -0.5 * plane.Norm

	assert.Equal(t, 2.0, number(t, rec, results.FieldWorkerID))
	assert.Equal(t, 4.0, number(t, rec, results.FieldRank))
	assert.Equal(t, 0.0, number(t, rec, results.FieldErrors))
	assert.InDelta(t, -8.0, number(t, rec, results.FieldMinEnergy), 1e-12)
	assert.InDelta(t, 300.0, number(t, rec, results.FieldPreT), 1e-9)
	assert.InDelta(t, 300.0, number(t, rec, results.FieldPostT), 1e-9)
	assert.InDelta(t, aveF, number(t, rec, results.FieldAveF), 1e-12)
	assert.InDelta(t, 0.36*plane.Norm*plane.Norm-aveF*aveF, number(t, rec, results.FieldVarF), 1e-12)
	assert.InDelta(t, 0.02, number(t, rec, results.FieldAvePsi), 1e-12)
	assert.InDelta(t, 0.001, number(t, rec, results.FieldDXTangent), 1e-12)
	assert.InDelta(t, 0.0, number(t, rec, results.FieldMaxJump), 1e-12)
	assert.True(t, value(t, rec, results.FieldValid).Truth())

	seed := topology.NewSeeder(137, 0, topology.FreshDraw).Next()
	assert.Contains(t, eng.History(), fmt.Sprintf("fix pafi all pafi __pafipath 300 0.05 %d overdamped 0 com 1", seed))
	assert.Contains(t, eng.History(), "fix __ae all ave/time 1 100 1000 c_thermo_temp")
	assert.Contains(t, eng.History(), "fix avepafi all ave/time 1 2000 2000 f_pafi[*]")
}

func TestSample_PathFixCreatedOnce(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{}.build(t, ctx)

	for _, rc := range []float64{0.25, 0.75} {
		rec, err := s.Sample(ctx, NewRequest(rc, 100))
		require.NoError(t, err)
		assert.Equal(t, 0.0, number(t, rec, results.FieldErrors))
	}
	count := func(prefix string) int {
		n := 0
		for _, cmd := range eng.History() {
			if strings.HasPrefix(cmd, prefix) {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count("fix __pafipath all property/atom"))
	assert.Equal(t, 1, count("compute __pafipath all property/atom"))
	assert.Equal(t, 2, count("unfix pafi"))
}

func TestSample_Validity(t *testing.T) {
	tests := []struct {
		name   string
		thresh float64
		valid  bool
	}{
		{name: "jump below threshold", thresh: 0.6, valid: true},
		{name: "jump equal to threshold", thresh: 0.5, valid: false},
		{name: "jump above threshold", thresh: 0.4, valid: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			s, _ := fixture{
				params: map[string]any{config.PreMin: 0, config.MaxJumpThresh: tc.thresh},
				engine: memory.Options{OnMinimize: func(x []float64) { x[0] += 0.5 }},
			}.build(t, ctx)

			rec, err := s.Sample(ctx, NewRequest(0, 100))
			require.NoError(t, err)
			assert.Equal(t, 0.5, number(t, rec, results.FieldMaxJump))
			assert.Equal(t, tc.valid, value(t, rec, results.FieldValid).Truth())
		})
	}
}

func TestSample_StageFailureLeavesMissing(t *testing.T) {
	ctx, logs := testutil.Context(t)
	s, _ := fixture{
		engine: memory.Options{Fail: func(cmd string) bool { return strings.HasPrefix(cmd, "fix avepafi") }},
	}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.5, 300))
	require.NoError(t, err)

	for _, name := range []string{results.FieldAveF, results.FieldVarF, results.FieldAvePsi, results.FieldDXTangent} {
		assert.True(t, value(t, rec, name).IsMissing(), name)
	}
	assert.InDelta(t, 300.0, number(t, rec, results.FieldPostT), 1e-9)
	assert.True(t, value(t, rec, results.FieldValid).Truth())
	// the fix, the extraction and the unfix
	assert.Equal(t, 3.0, number(t, rec, results.FieldErrors))
	testutil.AssertLogged(t, logs, "Engine call failed.", "stage=sample", "fix avepafi")

	again, err := s.Sample(ctx, NewRequest(0.5, 300))
	require.NoError(t, err)
	assert.Equal(t, rec.Names(), again.Names())
	assert.Equal(t, 3.0, number(t, again, results.FieldErrors), "errors are counted per request")
}

func TestSample_Overdamped(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{params: map[string]any{config.OverDamped: 1}}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.5, 500))
	require.NoError(t, err)
	assert.InDelta(t, 500.0, number(t, rec, results.FieldPreT), 1e-6)
	assert.InDelta(t, 500.0, number(t, rec, results.FieldPostT), 1e-6)
	assert.Contains(t, eng.History(), "fix __ae all ave/time 1 100 1000 c_pe")
	assert.True(t, slices.ContainsFunc(eng.History(), func(cmd string) bool {
		return strings.HasPrefix(cmd, "fix pafi all pafi") && strings.HasSuffix(cmd, "overdamped 1 com 1")
	}))
}

func TestSample_Deviation(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, _ := fixture{
		params: map[string]any{config.PostDump: 1, config.WriteDev: 1},
		engine: memory.Options{Drift: [3]float64{0.3, 0.4, 0}},
	}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.5, 300))
	require.NoError(t, err)
	assert.Contains(t, rec.Names(), results.FieldMaxDev)
	assert.InDelta(t, 0.5, number(t, rec, results.FieldMaxDev), 1e-9)
	dev := value(t, rec, results.FieldDev).Vec()
	require.Len(t, dev, 6)
	assert.InDelta(t, 0.3, dev[3], 1e-9)
	assert.InDelta(t, 0.4, dev[4], 1e-9)
	assert.Equal(t, 0.0, number(t, rec, results.FieldErrors))
}

func TestSample_NoDeviationFieldsWithoutPostDump(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, _ := fixture{params: map[string]any{config.WriteDev: 1}}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.5, 300))
	require.NoError(t, err)
	assert.NotContains(t, rec.Names(), results.FieldMaxDev)
	assert.NotContains(t, rec.Names(), results.FieldDev)
}

func TestSample_DeviationFieldsFollowSweptAxes(t *testing.T) {
	ctx, _ := testutil.Context(t)
	cfg, err := config.NewBuilder(ctx).
		DefaultAxes().
		AxisValues(config.PostDump, []float64{0, 1}).
		AxisValues(config.WriteDev, []float64{0, 1}).
		Pathway(writePathway(t)).
		Build()
	require.NoError(t, err)
	s, err := New(ctx, Options{
		Config: cfg,
		Engine: memory.New(memory.Options{}),
		Seeder: topology.NewSeeder(137, 0, topology.SeedPolicyFromConfig(cfg)),
	})
	require.NoError(t, err)

	req := NewRequest(0.5, 300)
	req.Set(config.PostDump, config.Int(0))
	req.Set(config.WriteDev, config.Int(0))
	rec, err := s.Sample(ctx, req)
	require.NoError(t, err)
	assert.True(t, value(t, rec, results.FieldMaxDev).IsMissing())
	assert.True(t, value(t, rec, results.FieldDev).IsMissing())

	req = NewRequest(0.5, 300)
	req.Set(config.PostDump, config.Int(1))
	req.Set(config.WriteDev, config.Int(1))
	rec, err = s.Sample(ctx, req)
	require.NoError(t, err)
	assert.False(t, value(t, rec, results.FieldMaxDev).IsMissing())
	assert.Len(t, value(t, rec, results.FieldDev).Vec(), 6)
}

func TestSample_CustomAverage(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{
		params: map[string]any{config.SampleFixes: "v_dV"},
		engine: memory.Options{Observables: map[string][]float64{"v_dV": {1.25}}},
	}.build(t, ctx)

	rec, err := s.Sample(ctx, NewRequest(0.5, 300))
	require.NoError(t, err)
	assert.Equal(t, 1.25, number(t, rec, "ave_dV"))
	assert.Contains(t, eng.History(), "fix ave_dV all ave/time 1 2000 2000 v_dV")
	assert.Contains(t, eng.History(), "unfix ave_dV")
	assert.Equal(t, 0.0, number(t, rec, results.FieldErrors))
}

func TestSample_RequestOverridesAndScripts(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{
		scripts: map[string]string{
			config.ScriptPreRun:  "print %Temperature% %SampleSteps% %Unknown%",
			config.ScriptPostRun: "print %Potential%",
		},
	}.build(t, ctx)

	req := NewRequest(0.5, 300)
	req.Set(config.SampleSteps, config.Float(7))
	rec, err := s.Sample(ctx, req)
	require.NoError(t, err)

	history := eng.History()
	assert.Contains(t, history, "run 7")
	assert.Contains(t, history, "print 300 7 %Unknown%")
	assert.True(t, slices.ContainsFunc(history, func(cmd string) bool {
		return strings.HasPrefix(cmd, "print ") && strings.HasSuffix(cmd, "Fe.eam.fs")
	}))
	assert.Equal(t, []string{"ReactionCoordinate", "Temperature", "SampleSteps"}, rec.Names()[:3])
}

func TestSample_OverridesAreNotRecorded(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, eng := fixture{}.build(t, ctx)

	req := NewRequest(0.5, 0)
	req.Override(config.ThermSteps, config.Int(10))
	req.Override(config.ThermWindow, config.Int(10))
	rec, err := s.Sample(ctx, req)
	require.NoError(t, err)

	assert.Contains(t, eng.History(), "fix __ae all ave/time 1 10 10 c_thermo_temp")
	assert.NotContains(t, rec.Names(), config.ThermSteps)
	assert.Equal(t, []string{"ReactionCoordinate", "Temperature"}, req.Names())
}

func TestSample_IncompleteRequest(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, _ := fixture{}.build(t, ctx)

	var req Request
	req.Set(config.AxisTemperature, config.Float(300))
	_, err := s.Sample(ctx, req)
	require.ErrorIs(t, err, ErrIncompleteRequest)
}

func TestNew_InitFailures(t *testing.T) {
	t.Run("missing configuration", func(t *testing.T) {
		ctx, logs := testutil.Context(t)
		p := writePathway(t)
		p.Files = append(p.Files, "absent.dat")
		cfg, err := config.NewBuilder(ctx).DefaultAxes().Pathway(p).Build()
		require.NoError(t, err)

		_, err = New(ctx, Options{Config: cfg, Engine: memory.New(memory.Options{}), Seeder: topology.NewSeeder(1, 0, topology.FreshDraw)})
		require.ErrorIs(t, err, engine.ErrInit)
		testutil.AssertLogged(t, logs, "Pathway configuration not readable.")
	})

	t.Run("old engine", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		cfg, err := config.NewBuilder(ctx).DefaultAxes().Pathway(writePathway(t)).Build()
		require.NoError(t, err)

		_, err = New(ctx, Options{Config: cfg, Engine: memory.New(memory.Options{Version: 20200101}), Seeder: topology.NewSeeder(1, 0, topology.FreshDraw)})
		require.ErrorIs(t, err, engine.ErrInit)
	})

	t.Run("bad sample fixes", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		cfg, err := config.NewBuilder(ctx).DefaultAxes().Pathway(writePathway(t)).
			Parameter(config.SampleFixes, "pe").Build()
		require.NoError(t, err)

		_, err = New(ctx, Options{Config: cfg, Engine: memory.New(memory.Options{}), Seeder: topology.NewSeeder(1, 0, topology.FreshDraw)})
		require.ErrorIs(t, err, config.ErrConfiguration)
	})
}

func TestParseSampleFixes(t *testing.T) {
	hooks, err := ParseSampleFixes("energy=c_pe; v_dV\n f_stress[2]")
	require.NoError(t, err)
	assert.Equal(t, []AverageHook{
		TimeAverage{Name: "energy", Ref: "c_pe"},
		TimeAverage{Name: "dV", Ref: "v_dV"},
		TimeAverage{Name: "stress", Ref: "f_stress[2]"},
	}, hooks)

	none, err := ParseSampleFixes("  ")
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, bad := range []string{"pe", "a=b", "dV=v_dV v_dV", "1x=c_pe"} {
		_, err := ParseSampleFixes(bad)
		assert.ErrorIs(t, err, config.ErrConfiguration, bad)
	}
}
