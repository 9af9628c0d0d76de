package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/dag"
	"github.com/vk/recipegrid/internal/envfile"
	"github.com/vk/recipegrid/internal/executor"
	"github.com/vk/recipegrid/internal/fsutil"
	"github.com/vk/recipegrid/internal/resolve"
	"github.com/vk/recipegrid/internal/scheduler"
)

// Result summarizes a finished run.
type Result struct {
	// Commands are the build commands in schedule order.
	Commands []*dag.BuildCommand
	// EnvFiles are the paths of the written environment files.
	EnvFiles []string
}

// Run executes one build run: the environment files are loaded, the
// dependency graph is built and scheduled, the builds are run unless
// SkipBuild is set, and one environment file per variant is written.
func (a *App) Run(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()
	ctx = ctxlog.WithLogger(ctx, a.logger.With("run_id", runID))
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	model, conv, err := a.loader.Load(ctx, a.config.EnvFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}
	logger.Info("Environment files loaded.", "files", model.Sources, "recipes", len(model.Recipes))

	logger.Debug("Building dependency graph from config model...")
	graph, err := dag.Build(ctx, model, conv, a.config.Matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Debug("Dependency graph built.", "node_count", graph.Len())

	order, err := scheduler.Order(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule builds: %w", err)
	}
	res := &Result{Commands: scheduler.BuildCommands(order)}

	switch {
	case a.config.SkipBuild:
		logger.Info("Skipping builds.", "commands", len(res.Commands))
	case len(res.Commands) == 0:
		logger.Warn("No build commands in graph, execution not required.")
	default:
		logger.Info("🚀 Starting builds...", "commands", len(res.Commands), "workers", a.config.WorkerCount)
		exec, err := executor.New(graph, order, a.runner, a.config.WorkerCount)
		if err != nil {
			return nil, err
		}
		if err := exec.Run(ctx); err != nil {
			return nil, fmt.Errorf("execution failed: %w", err)
		}
		logger.Info("🏁 Builds finished.")
	}

	envs, err := resolve.ResolveVariants(graph, a.config.Matrix, model.ExternalDependencies, a.config.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environments: %w", err)
	}

	toWrite := make([]envfile.Environment, 0, len(envs))
	for _, env := range envs {
		for _, c := range env.Constraints.Conflicts() {
			logger.Warn("Conflicting constraints in environment.", "variant", env.Variant.String(), "package", c.Name, "constraints", c.Constraints)
		}
		toWrite = append(toWrite, envfile.Environment{Variant: env.Variant, Dependencies: env.Constraints.Sorted()})
	}

	channels := envfile.Channels(appendUnique(model.Channels, a.config.Channels...), a.config.OutputFolder)
	res.EnvFiles, err = envfile.WriteAll(ctx, a.config.OutputFolder, fsutil.Stem(a.config.EnvFiles[0]), channels, toWrite)
	if err != nil {
		return nil, fmt.Errorf("failed to write environment files: %w", err)
	}
	logger.Info("Environment files written.", "files", res.EnvFiles)

	logger.Debug("App.Run method finished.")
	return res, nil
}

func appendUnique(dst []string, items ...string) []string {
	out := append([]string(nil), dst...)
	for _, item := range items {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
