// Package config defines the format-agnostic run configuration: the sweep
// axes, the typed parameter schema, the named script templates and the
// reaction pathway file list.
//
// A Config is built once, either by a format-specific Loader (see the hcl and
// yamlconf packages) or programmatically through a Builder, and is treated as
// read-only afterwards. Every rank works on its own Clone.
package config
