package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/engine/memory"
	"github.com/specialistvlad/pafigrid/internal/engine/remote"
	"github.com/specialistvlad/pafigrid/internal/hcl"
	"github.com/specialistvlad/pafigrid/internal/socketio"
	"github.com/specialistvlad/pafigrid/internal/yamlconf"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	ctx        context.Context
	config     *Config
	factory    engine.Factory
	httpServer *http.Server
	rounds     atomic.Int64
}

// Option customizes an App.
type Option func(*App)

// WithEngineFactory replaces the engine chosen from the configuration.
func WithEngineFactory(f engine.Factory) Option {
	return func(a *App) { a.factory = f }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	a := &App{
		outW:   outW,
		logger: logger,
		ctx:    ctxlog.WithLogger(context.Background(), logger),
		config: cfg,
	}
	logger.Debug("Logger configured successfully.")
	for _, o := range opts {
		o(a)
	}
	if a.factory == nil {
		a.factory = a.engineFactory()
	}
	return a
}

// Rounds returns the number of rounds completed so far.
func (a *App) Rounds() int64 { return a.rounds.Load() }

func (a *App) engineFactory() engine.Factory {
	if a.config.EngineURL == "" {
		a.logger.Warn("No engine URL configured, using the in-memory engine.")
		return memory.Factory(memory.Options{}, nil)
	}
	return remote.Factory(socketio.Options{
		URL:                a.config.EngineURL,
		Namespace:          a.config.EngineNamespace,
		InsecureSkipVerify: a.config.InsecureSkipVerify,
	})
}

// loaderFor picks the run configuration format from the file extension.
func loaderFor(path string) config.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlconf.NewLoader()
	default:
		return hcl.NewLoader()
	}
}
