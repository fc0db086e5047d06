package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
)

// Builder assembles a Config from defaults plus explicit settings. Loaders
// feed it decoded values; tests use it directly.
type Builder struct {
	logger *slog.Logger
	cfg    *Config
	errs   []error
}

// NewBuilder returns a builder seeded with the default parameters and
// scripts and no axes.
func NewBuilder(ctx context.Context) *Builder {
	return &Builder{
		logger: ctxlog.FromContext(ctx),
		cfg: &Config{
			Parameters: DefaultParameters(),
			scripts:    defaultScripts(),
		},
	}
}

// DefaultAxes adds Temperature = [0] and ReactionCoordinate = 9 points over
// [0, 1] unless they are already defined.
func (b *Builder) DefaultAxes() *Builder {
	if _, ok := b.cfg.Axis(AxisReactionCoordinate); !ok {
		b.setAxis(AxisReactionCoordinate, Linspace(0, 1, 9))
	}
	if _, ok := b.cfg.Axis(AxisTemperature); !ok {
		b.setAxis(AxisTemperature, []float64{0})
	}
	return b
}

// Source records the file the configuration comes from.
func (b *Builder) Source(path string) *Builder {
	b.cfg.Source = path
	return b
}

// AxisSpec defines an axis from a specification, expanding (lo, hi, n).
func (b *Builder) AxisSpec(name string, spec []float64) *Builder {
	if len(spec) == 0 {
		b.errs = append(b.errs, Errorf("axis %q has no values", name))
		return b
	}
	b.setAxis(name, ExpandAxis(spec))
	return b
}

// AxisValues defines an axis from a literal list of values.
func (b *Builder) AxisValues(name string, values []float64) *Builder {
	if len(values) == 0 {
		b.errs = append(b.errs, Errorf("axis %q has no values", name))
		return b
	}
	b.setAxis(name, slices.Clone(values))
	return b
}

// Parameter sets a registered parameter. Unknown keys are logged and skipped.
func (b *Builder) Parameter(name string, raw any) *Builder {
	if !b.cfg.Parameters.Has(name) {
		b.logger.Warn("Unknown parameter, skipping.", "key", name)
		return b
	}
	if err := b.cfg.Parameters.Override(name, raw); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Script sets the template text of a named script.
func (b *Builder) Script(name, text string) *Builder {
	if _, ok := b.cfg.scripts[name]; !ok {
		b.logger.Debug("Adding script.", "name", name)
	}
	b.cfg.scripts[name] = text
	return b
}

// Pathway sets the pathway files and potential.
func (b *Builder) Pathway(p Pathway) *Builder {
	b.cfg.Pathway = Pathway{
		Directory: p.Directory,
		Potential: p.Potential,
		Files:     slices.Clone(p.Files),
	}
	return b
}

// Fail records an error found by a loader, so it is reported by Build.
func (b *Builder) Fail(err error) *Builder {
	if !errors.Is(err, ErrConfiguration) {
		err = fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	b.errs = append(b.errs, err)
	return b
}

// Build validates and returns the configuration.
func (b *Builder) Build() (*Config, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return b.cfg.Clone(), nil
}

// setAxis replaces an axis in place or appends a new one.
func (b *Builder) setAxis(name string, values []float64) {
	for i, a := range b.cfg.axes {
		if a.Name == name {
			b.cfg.axes[i].Values = values
			return
		}
	}
	b.cfg.axes = append(b.cfg.axes, Axis{Name: name, Values: values})
}
