// Package results holds sample records, reduces them across worker groups
// into the ensemble dataset and persists and summarizes that dataset.
package results

import (
	"slices"
	"strings"
)

// Output field names.
const (
	FieldWorkerID  = "WorkerID"
	FieldRank      = "Rank"
	FieldErrors    = "Errors"
	FieldAveF      = "aveF"
	FieldVarF      = "varF"
	FieldAvePsi    = "avePsi"
	FieldDXTangent = "dXTangent"
	FieldMinEnergy = "MinEnergy"
	FieldPreT      = "preT"
	FieldPostT     = "postT"
	FieldMaxDev    = "MaxDev"
	FieldDev       = "Dev"
	FieldMaxJump   = "MaxJump"
	FieldValid     = "Valid"
)

var outputs = []string{
	FieldWorkerID, FieldRank, FieldErrors, FieldAveF, FieldVarF, FieldAvePsi, FieldDXTangent,
	FieldMinEnergy, FieldPreT, FieldPostT, FieldMaxDev, FieldDev, FieldMaxJump, FieldValid,
}

// IsOutput reports whether name is a measured or identity field rather
// than a request parameter. Custom time averages are named ave_<name>.
func IsOutput(name string) bool {
	return slices.Contains(outputs, name) || strings.HasPrefix(name, "ave_")
}

// Field is a named value.
type Field struct {
	Name  string
	Value Value
}

// Record is the ordered result of one sample request.
type Record struct {
	fields []Field
}

// Set replaces the value of name, or appends it.
func (r *Record) Set(name string, v Value) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Get returns the value of name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Names returns the field names in order.
func (r Record) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Fields returns a copy of the fields.
func (r Record) Fields() []Field { return slices.Clone(r.fields) }

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := Record{fields: make([]Field, len(r.fields))}
	for i, f := range r.fields {
		if f.Value.kind == KindVector {
			f.Value = Vector(f.Value.v)
		}
		c.fields[i] = f
	}
	return c
}

// Equal reports whether two records have the same fields in the same order.
func (r Record) Equal(o Record) bool {
	return slices.EqualFunc(r.fields, o.fields, func(a, b Field) bool {
		return a.Name == b.Name && a.Value.Equal(b.Value)
	})
}

// workerID returns the WorkerID field or -1.
func (r Record) workerID() int {
	v, ok := r.Get(FieldWorkerID)
	if !ok {
		return -1
	}
	n, ok := v.Number()
	if !ok {
		return -1
	}
	return int(n)
}
