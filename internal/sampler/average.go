package sampler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/results"
)

// AverageHook adds its own averages to the constrained stage. Before runs
// after the constraint average is set up and before the sampling run;
// After runs once the run is over and stores what it measured in the
// record. Failures are recorded by the session and leave fields missing.
type AverageHook interface {
	// Fields names the record fields the hook writes, so every record of
	// a run carries them even when the hook fails.
	Fields() []string
	Before(ctx context.Context, s *engine.Session, steps int)
	After(ctx context.Context, s *engine.Session, rec *results.Record)
}

// TimeAverage time-averages one engine reference, such as v_dV or c_pe,
// over the sampling run and stores it as ave_<Name>.
type TimeAverage struct {
	Name string
	Ref  string
}

func (a TimeAverage) id() string { return "ave_" + a.Name }

// Fields implements AverageHook.
func (a TimeAverage) Fields() []string { return []string{a.id()} }

// Before implements AverageHook.
func (a TimeAverage) Before(ctx context.Context, s *engine.Session, steps int) {
	s.Runf(ctx, "fix %s all ave/time 1 %d %d %s", a.id(), steps, steps, a.Ref)
}

// After implements AverageHook.
func (a TimeAverage) After(ctx context.Context, s *engine.Session, rec *results.Record) {
	v, ok := s.Scalar(ctx, "f_"+a.id())
	rec.Set(a.id(), results.FloatOr(v, ok))
	s.Run(ctx, "unfix "+a.id())
}

var (
	averageName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	averageRef  = regexp.MustCompile(`^[cfv]_[A-Za-z0-9_]+(\[[0-9]+\])?$`)
)

// ParseSampleFixes reads the SampleFixes parameter: references separated
// by whitespace or semicolons, each either name=ref or a bare ref whose
// name is the ref without its c_, f_ or v_ prefix.
func ParseSampleFixes(spec string) ([]AverageHook, error) {
	var (
		hooks []AverageHook
		seen  = make(map[string]bool)
	)
	tokens := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	for _, tok := range tokens {
		name, ref, named := strings.Cut(tok, "=")
		if !named {
			ref = tok
			name = ref
			if len(ref) > 2 {
				name = ref[2:]
			}
			if i := strings.IndexByte(name, '['); i >= 0 {
				name = name[:i]
			}
		}
		if !averageRef.MatchString(ref) {
			return nil, config.Errorf("%s: %q is not a c_, f_ or v_ reference", config.SampleFixes, ref)
		}
		if !averageName.MatchString(name) {
			return nil, config.Errorf("%s: invalid average name %q", config.SampleFixes, name)
		}
		if seen[name] {
			return nil, config.Errorf("%s: average %q defined twice", config.SampleFixes, name)
		}
		seen[name] = true
		hooks = append(hooks, TimeAverage{Name: name, Ref: ref})
	}
	return hooks, nil
}

func (a TimeAverage) String() string { return fmt.Sprintf("%s=%s", a.Name, a.Ref) }
