package hcl

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Encoder writes a configuration as an HCL document that Loader reads back
// to the same axes, parameters, scripts and pathway.
type Encoder struct{}

// NewEncoder creates a new HCL snapshot encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Extension implements config.Encoder.
func (e *Encoder) Extension() string { return Extension }

// Encode implements config.Encoder.
func (e *Encoder) Encode(cfg *config.Config) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	axes := root.AppendNewBlock("axes", nil).Body()
	for _, a := range cfg.Axes() {
		list := numberTuple(a.Values)
		if config.IsGridSpec(a.Values) {
			// Written as a list this axis would be expanded on reload.
			axes.SetAttributeValue(a.Name, cty.ObjectVal(map[string]cty.Value{"values": list}))
			continue
		}
		axes.SetAttributeValue(a.Name, list)
	}
	root.AppendNewline()

	params := root.AppendNewBlock("parameters", nil).Body()
	for _, key := range cfg.Parameters.Keys() {
		v, _ := cfg.Parameters.Get(key)
		params.SetAttributeValue(key, ctyValue(v))
	}
	root.AppendNewline()

	scripts := root.AppendNewBlock("scripts", nil).Body()
	for _, name := range cfg.ScriptNames() {
		text, _ := cfg.Script(name)
		scripts.SetAttributeValue(name, cty.StringVal(text))
	}
	root.AppendNewline()

	pathway := root.AppendNewBlock("pathway", nil).Body()
	pathway.SetAttributeValue("directory", cty.StringVal(cfg.Pathway.Directory))
	pathway.SetAttributeValue("potential", cty.StringVal(cfg.Pathway.Potential))
	files := make([]cty.Value, len(cfg.Pathway.Files))
	for i, name := range cfg.Pathway.Files {
		files[i] = cty.StringVal(name)
	}
	if len(files) == 0 {
		pathway.SetAttributeValue("files", cty.EmptyTupleVal)
	} else {
		pathway.SetAttributeValue("files", cty.TupleVal(files))
	}

	return f.Bytes(), nil
}

func ctyValue(v config.Value) cty.Value {
	switch v.Kind() {
	case config.KindInt:
		return cty.NumberIntVal(int64(v.Int()))
	case config.KindFloat:
		return cty.NumberFloatVal(v.Float())
	case config.KindBool:
		return cty.BoolVal(v.Bool())
	case config.KindVector:
		return numberTuple(v.Vector())
	default:
		return cty.StringVal(v.String())
	}
}

func numberTuple(values []float64) cty.Value {
	if len(values) == 0 {
		return cty.EmptyTupleVal
	}
	out := make([]cty.Value, len(values))
	for i, x := range values {
		out[i] = cty.NumberFloatVal(x)
	}
	return cty.TupleVal(out)
}
