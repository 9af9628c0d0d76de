package app

import (
	"io"
	"log/slog"

	"github.com/vk/recipegrid/internal/condabuild"
	"github.com/vk/recipegrid/internal/config"
	"github.com/vk/recipegrid/internal/executor"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
	runner executor.Runner
}

// Option customizes an App.
type Option func(*App)

// WithRunner replaces the conda-build runner, primarily for testing.
func WithRunner(r executor.Runner) Option {
	return func(a *App) { a.runner = r }
}

// NewApp is the constructor for the main application. It returns an App
// with its own isolated logger, reading environment files with loader.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) *App {
	a := &App{
		outW:   outW,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, outW),
		config: cfg,
		loader: loader,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = condabuild.NewRunner(cfg.CondaBuild, cfg.OutputFolder, cfg.RepositoryFolder)
	}
	a.logger.Debug("Logger configured successfully.")
	return a
}

// Config returns the application's configuration.
func (a *App) Config() *Config {
	return a.config
}
