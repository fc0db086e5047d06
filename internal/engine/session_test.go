package engine_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/engine/memory"
	"github.com/specialistvlad/pafigrid/internal/template"
	"github.com/specialistvlad/pafigrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_RecordsFailuresAndContinues(t *testing.T) {
	ctx, logs := testutil.Context(t)
	eng := memory.New(memory.Options{Fail: func(cmd string) bool { return strings.HasPrefix(cmd, "thermo") }})
	s := engine.NewSession(eng, 0)

	s.Stage("PreRun")
	ok := s.Run(ctx, "units metal\n  thermo 10\n\nrun 0\n")
	assert.False(t, ok)
	assert.Equal(t, []string{"units metal", "thermo 10", "run 0"}, eng.History())

	require.Len(t, s.Errors(), 1)
	var serr *engine.StageError
	require.True(t, errors.As(s.Errors()[0], &serr))
	assert.Equal(t, "PreRun", serr.Stage)
	assert.Equal(t, "thermo 10", serr.Command)
	testutil.AssertLogged(t, logs, "Engine call failed.", "stage=PreRun")

	_, ok = s.Scalar(ctx, "f_missing")
	assert.False(t, ok)
	assert.Len(t, s.Errors(), 2)

	s.Reset()
	assert.Empty(t, s.Errors())
}

func TestSession_ScriptSubstitution(t *testing.T) {
	ctx, _ := testutil.Context(t)
	eng := memory.New(memory.Options{})
	s := engine.NewSession(eng, 0)

	assert.True(t, s.Script(ctx, "PreRun", "run %Steps%\nprint %Unknown%", template.Values{"Steps": "5"}))
	assert.Equal(t, []string{"run 5", "print %Unknown%"}, eng.History())
	assert.True(t, s.Script(ctx, "Empty", "  \n", nil))
}

func TestInitialize(t *testing.T) {
	ctx, _ := testutil.Context(t)

	err := engine.Initialize(ctx, engine.NewSession(memory.New(memory.Options{Version: 20210101, Packages: []string{"EXTRA-FIX"}}), 0), "", nil)
	assert.ErrorIs(t, err, engine.ErrInit, "before 20210728 the fix lives in USER-MISC")

	err = engine.Initialize(ctx, engine.NewSession(memory.New(memory.Options{Version: 20210101, Packages: []string{"USER-MISC"}}), 0), "units metal", nil)
	assert.NoError(t, err)

	err = engine.Initialize(ctx, engine.NewSession(memory.New(memory.Options{}), 0), "read_data %FirstPathConfiguration%", template.Values{
		template.FirstPathConfiguration: "/does/not/exist.dat",
	})
	assert.ErrorIs(t, err, engine.ErrInit)
	assert.ErrorContains(t, err, "/does/not/exist.dat")
}
