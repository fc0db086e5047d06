package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths, applying them in order,
	// and returns the resolved, validated configuration.
	Load(ctx context.Context, paths ...string) (*Config, error)
}

// Encoder renders a configuration back into a loadable document. It is used
// to write the provenance snapshot of every run.
type Encoder interface {
	Encode(cfg *Config) ([]byte, error)
	// Extension is the file extension of the encoded document, e.g. ".hcl".
	Extension() string
}
