package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vals := Values{
		"Temperature": "300",
		"Temp":        "x",
		Potential:     "/pot/Fe.eam.fs",
	}

	testCases := []struct {
		name   string
		script string
		want   string
	}{
		{name: "known token", script: "pair_coeff * * %Potential% Fe", want: "pair_coeff * * /pot/Fe.eam.fs Fe"},
		{name: "unknown token passes through", script: "print %Unknown% done", want: "print %Unknown% done"},
		{name: "similar names", script: "velocity all create %Temperature% 1", want: "velocity all create 300 1"},
		{name: "repeated", script: "%Temp% %Temp%", want: "x x"},
		{name: "lone percent", script: "fix 1 all print 10 \"100%\"", want: "fix 1 all print 10 \"100%\""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.script, vals))
		})
	}
}

func TestLines(t *testing.T) {
	got := Lines("\n  run %N%\n\n  thermo 10  \n", Values{"N": "0"})
	assert.Equal(t, []string{"run 0", "thermo 10"}, got)
}
