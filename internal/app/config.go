package app

import (
	"errors"
	"fmt"
)

// Config holds the process-level settings of a run. The sampling settings
// live in the run configuration file at ConfigPath.
type Config struct {
	ConfigPath string // hcl or yaml file
	Ranks      int

	// EngineURL locates the engine server. Without it every rank runs the
	// in-memory engine.
	EngineURL          string
	EngineNamespace    string
	InsecureSkipVerify bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Ranks == 0 {
		cfg.Ranks = 1
	}
	if cfg.Ranks < 0 {
		return nil, fmt.Errorf("the number of ranks must be positive, got %d", cfg.Ranks)
	}
	return &cfg, nil
}
