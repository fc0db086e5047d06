// Package yamlconf implements config.Loader for YAML run files. The sections
// mirror the HCL blocks: axes, parameters, scripts and pathway.
package yamlconf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions recognised as YAML run files.
var Extensions = []string{".yaml", ".yml"}

// Loader reads YAML run files.
type Loader struct{}

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every file in order and returns the resolved configuration.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.ExpandPaths(paths, Extensions...)
	if err != nil {
		return nil, config.Errorf("%v", err)
	}
	if len(files) == 0 {
		return nil, config.Errorf("no YAML files found in %v", paths)
	}

	b := config.NewBuilder(ctx).Source(files[0])
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, config.Errorf("reading %s: %v", file, err)
		}
		if err := l.apply(ctx, b, file, src); err != nil {
			return nil, err
		}
	}
	logger.Debug("YAML loading complete.", "files", len(files))
	return b.Build()
}

// Parse decodes a single in-memory YAML document.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Config, error) {
	b := config.NewBuilder(ctx).Source(filename)
	if err := l.apply(ctx, b, filename, src); err != nil {
		return nil, err
	}
	return b.Build()
}

func (l *Loader) apply(ctx context.Context, b *config.Builder, file string, src []byte) error {
	logger := ctxlog.FromContext(ctx)

	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(src))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return config.Errorf("failed to parse YAML file %s: %v", file, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return config.Errorf("%s: top level must be a mapping", file)
	}

	for key, val := range pairs(root) {
		var err error
		switch key.Value {
		case "axes":
			err = applyAxes(b, val)
		case "parameters":
			err = applyParameters(b, val)
		case "scripts":
			err = applyScripts(b, val)
		case "pathway":
			err = applyPathway(ctx, b, val)
		default:
			logger.Warn("Unknown section, skipping.", "section", key.Value, "line", key.Line)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil
}

func applyAxes(b *config.Builder, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return config.Errorf("axes must be a mapping (line %d)", node.Line)
	}
	for key, val := range pairs(node) {
		if val.Kind == yaml.MappingNode {
			var literal struct {
				Values []float64 `yaml:"values"`
			}
			if err := val.Decode(&literal); err != nil || literal.Values == nil {
				return config.Errorf("axis %s: object form needs a numeric `values` list (line %d)", key.Value, val.Line)
			}
			b.AxisValues(key.Value, literal.Values)
			continue
		}
		spec, err := floats(val)
		if err != nil {
			return config.Errorf("axis %s: %v", key.Value, err)
		}
		b.AxisSpec(key.Value, spec)
	}
	return nil
}

func applyParameters(b *config.Builder, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return config.Errorf("parameters must be a mapping (line %d)", node.Line)
	}
	for key, val := range pairs(node) {
		raw, err := toRaw(val)
		if err != nil {
			return config.Errorf("parameter %s: %v", key.Value, err)
		}
		b.Parameter(key.Value, raw)
	}
	return nil
}

func applyScripts(b *config.Builder, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return config.Errorf("scripts must be a mapping (line %d)", node.Line)
	}
	for key, val := range pairs(node) {
		if val.Kind != yaml.ScalarNode {
			return config.Errorf("script %s must be a string (line %d)", key.Value, val.Line)
		}
		b.Script(key.Value, val.Value)
	}
	return nil
}

func applyPathway(ctx context.Context, b *config.Builder, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return config.Errorf("pathway must be a mapping (line %d)", node.Line)
	}
	var p config.Pathway
	for key, val := range pairs(node) {
		switch key.Value {
		case "directory":
			p.Directory = val.Value
		case "potential":
			p.Potential = val.Value
		case "files":
			switch val.Kind {
			case yaml.ScalarNode:
				p.Files = config.SplitLines(val.Value)
			case yaml.SequenceNode:
				if err := val.Decode(&p.Files); err != nil {
					return config.Errorf("pathway files: %v", err)
				}
			default:
				return config.Errorf("pathway files must be a list or a string (line %d)", val.Line)
			}
		default:
			ctxlog.FromContext(ctx).Warn("Unknown pathway attribute, skipping.", "name", key.Value)
		}
	}
	b.Pathway(p)
	return nil
}

// pairs iterates the key/value nodes of a mapping in document order.
func pairs(node *yaml.Node) func(yield func(*yaml.Node, *yaml.Node) bool) {
	return func(yield func(*yaml.Node, *yaml.Node) bool) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !yield(node.Content[i], node.Content[i+1]) {
				return
			}
		}
	}
}

// toRaw decodes a scalar or a sequence of scalars into the plain values
// config.Coerce accepts.
func toRaw(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!int", "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return nil, err
			}
			return f, nil
		case "!!bool":
			var v bool
			if err := node.Decode(&v); err != nil {
				return nil, err
			}
			return v, nil
		case "!!null":
			return nil, fmt.Errorf("value is null (line %d)", node.Line)
		default:
			return node.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			raw, err := toRaw(item)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value (line %d)", node.Line)
}

func floats(node *yaml.Node) ([]float64, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return config.ParseFloats(node.Value)
	case yaml.SequenceNode:
		var out []float64
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of numbers (line %d)", node.Line)
}
