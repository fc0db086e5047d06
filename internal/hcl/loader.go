package hcl

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the file extension of HCL run files.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// pathwayBlock is the gohcl schema of the `pathway` block.
type pathwayBlock struct {
	Directory string         `hcl:"directory,optional"`
	Potential string         `hcl:"potential,optional"`
	Files     hcl.Expression `hcl:"files,optional"`
	Remain    hcl.Body       `hcl:",remain"`
}

// Load parses every file in order and returns the resolved configuration.
// Later files override earlier ones.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.ExpandPaths(paths, Extension)
	if err != nil {
		return nil, config.Errorf("%v", err)
	}
	if len(files) == 0 {
		return nil, config.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	b := config.NewBuilder(ctx).Source(files[0])
	parser := hclparse.NewParser()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, config.Errorf("failed to parse HCL file %s: %s", file, diags.Error())
		}
		body, ok := f.Body.(*hclsyntax.Body)
		if !ok {
			return nil, config.Errorf("%s is not a native HCL file", file)
		}
		if err := l.apply(ctx, b, body); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "axes", len(cfg.Axes()), "scripts", len(cfg.ScriptNames()), "pathway_files", len(cfg.Pathway.Files))
	return cfg, nil
}

// Parse decodes a single in-memory HCL document. It is used by tests and by
// tooling that already holds the file contents.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Config, error) {
	f, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, config.Errorf("failed to parse HCL %s: %s", filename, diags.Error())
	}
	b := config.NewBuilder(ctx).Source(filename)
	if err := l.apply(ctx, b, f.Body.(*hclsyntax.Body)); err != nil {
		return nil, err
	}
	return b.Build()
}

// apply feeds the blocks of one file into the builder.
func (l *Loader) apply(ctx context.Context, b *config.Builder, body *hclsyntax.Body) error {
	logger := ctxlog.FromContext(ctx)

	for _, attr := range sortedAttributes(body.Attributes) {
		logger.Warn("Ignoring top-level attribute.", "name", attr.Name, "range", attr.SrcRange.String())
	}

	for _, block := range body.Blocks {
		var err error
		switch block.Type {
		case "axes":
			err = l.applyAxes(b, block.Body)
		case "parameters":
			err = l.applyParameters(b, block.Body)
		case "scripts":
			err = l.applyScripts(b, block.Body)
		case "pathway":
			err = l.applyPathway(ctx, b, block.Body)
		default:
			logger.Warn("Unknown block, skipping.", "type", block.Type, "range", block.TypeRange.String())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// applyAxes defines the axes in source order. Strings and lists go through
// the (lo, hi, n) heuristic; the object form `{ values = [...] }` is literal.
func (l *Loader) applyAxes(b *config.Builder, body *hclsyntax.Body) error {
	for _, attr := range sortedAttributes(body.Attributes) {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return config.Errorf("axis %s: %s", attr.Name, diags.Error())
		}

		if ty := val.Type(); ty.IsObjectType() {
			if !ty.HasAttribute("values") {
				return config.Errorf("axis %s: object form needs a `values` attribute", attr.Name)
			}
			values, err := toFloats(val.GetAttr("values"))
			if err != nil {
				return config.Errorf("axis %s: %v", attr.Name, err)
			}
			b.AxisValues(attr.Name, values)
			continue
		}

		spec, err := toFloats(val)
		if err != nil {
			return config.Errorf("axis %s: %v", attr.Name, err)
		}
		b.AxisSpec(attr.Name, spec)
	}
	return nil
}

func (l *Loader) applyParameters(b *config.Builder, body *hclsyntax.Body) error {
	for _, attr := range sortedAttributes(body.Attributes) {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return config.Errorf("parameter %s: %s", attr.Name, diags.Error())
		}
		raw, err := toRaw(val)
		if err != nil {
			return config.Errorf("parameter %s: %v", attr.Name, err)
		}
		b.Parameter(attr.Name, raw)
	}
	return nil
}

func (l *Loader) applyScripts(b *config.Builder, body *hclsyntax.Body) error {
	for _, attr := range sortedAttributes(body.Attributes) {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return config.Errorf("script %s: %s", attr.Name, diags.Error())
		}
		if val.IsNull() || val.Type() != cty.String {
			return config.Errorf("script %s must be a string", attr.Name)
		}
		b.Script(attr.Name, val.AsString())
	}
	return nil
}

func (l *Loader) applyPathway(ctx context.Context, b *config.Builder, body *hclsyntax.Body) error {
	var pb pathwayBlock
	if diags := gohcl.DecodeBody(body, nil, &pb); diags.HasErrors() {
		return config.Errorf("pathway: %s", diags.Error())
	}
	if pb.Remain != nil {
		if attrs, _ := pb.Remain.JustAttributes(); len(attrs) > 0 {
			for name := range attrs {
				ctxlog.FromContext(ctx).Warn("Unknown pathway attribute, skipping.", "name", name)
			}
		}
	}

	var files []string
	if isExprDefined(pb.Files) {
		val, diags := pb.Files.Value(nil)
		if diags.HasErrors() {
			return config.Errorf("pathway files: %s", diags.Error())
		}
		var err error
		if files, err = toStrings(val); err != nil {
			return config.Errorf("pathway files: %v", err)
		}
	}

	b.Pathway(config.Pathway{Directory: pb.Directory, Potential: pb.Potential, Files: files})
	return nil
}

// isExprDefined reports whether an optional attribute was present in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder, so a nil check is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// sortedAttributes returns the attributes of a body in source order.
func sortedAttributes(attrs hclsyntax.Attributes) []*hclsyntax.Attribute {
	out := make([]*hclsyntax.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *hclsyntax.Attribute) int {
		return a.SrcRange.Start.Byte - b.SrcRange.Start.Byte
	})
	return out
}
