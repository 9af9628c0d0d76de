// Package condabuild runs conda-build for the build commands of a graph.
package condabuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/dag"
	"github.com/vk/recipegrid/internal/feedstock"
	"github.com/vk/recipegrid/internal/variant"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultCondaBuild is the conda-build executable looked up in PATH.
	DefaultCondaBuild = "conda-build"
	// DefaultRecipePath is the recipe folder inside a feedstock.
	DefaultRecipePath = "recipe"

	// outputTailLines is how much of a failed build's output is kept in the error.
	outputTailLines = 40
)

// CheckoutFunc makes the feedstock at url available in dir.
type CheckoutFunc func(ctx context.Context, url, tag, dir string) (string, error)

// ExecFunc runs name with args in dir and returns its combined output.
type ExecFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Runner builds one BuildCommand with conda-build. The zero value of the
// optional fields selects the defaults.
type Runner struct {
	OutputFolder     string
	RepositoryFolder string

	// CondaBuild is the conda-build executable.
	CondaBuild string
	Checkout   CheckoutFunc
	Exec       ExecFunc
}

// NewRunner returns a Runner writing packages to outputFolder and checking
// feedstocks out under repositoryFolder.
func NewRunner(condaBuild, outputFolder, repositoryFolder string) *Runner {
	return &Runner{
		OutputFolder:     outputFolder,
		RepositoryFolder: repositoryFolder,
		CondaBuild:       condaBuild,
	}
}

// Run builds cmd unless every one of its output files is already present in
// the output folder.
func (r *Runner) Run(ctx context.Context, cmd *dag.BuildCommand) error {
	logger := ctxlog.FromContext(ctx).With("variant", cmd.Variant.String())

	built, err := r.alreadyBuilt(cmd)
	if err != nil {
		return err
	}
	if built {
		logger.Info("All outputs already exist, skipping build.", "outputs", cmd.OutputFiles)
		return nil
	}

	checkout := r.Checkout
	if checkout == nil {
		checkout = feedstock.Checkout
	}
	dir, err := checkout(ctx, cmd.Repository, cmd.GitTag, r.feedstockDir(cmd))
	if err != nil {
		return fmt.Errorf("checkout of %s: %w", cmd.Recipe, err)
	}

	args, err := Args(cmd, r.OutputFolder)
	if err != nil {
		return err
	}
	name := r.CondaBuild
	if name == "" {
		name = DefaultCondaBuild
	}

	run := r.Exec
	if run == nil {
		run = execCombined
	}
	logger.Debug("Running conda-build.", "dir", dir, "args", args)
	out, err := run(ctx, dir, name, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, tail(out, outputTailLines))
	}
	return nil
}

// Args returns the conda-build arguments for cmd. The recipe folder is
// relative to the feedstock checkout.
func Args(cmd *dag.BuildCommand, outputFolder string) ([]string, error) {
	variants, err := VariantsArg(cmd.Variant)
	if err != nil {
		return nil, err
	}
	args := []string{"--output-folder", outputFolder, "--variants", variants}
	for _, ch := range cmd.Channels {
		args = append(args, "-c", ch)
	}
	recipePath := cmd.RecipePath
	if recipePath == "" {
		recipePath = DefaultRecipePath
	}
	return append(args, recipePath), nil
}

// VariantsArg renders v as the flow-style YAML map conda-build expects for
// --variants. Unset axes are left out.
func VariantsArg(v variant.Variant) (string, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	add := func(key, value string) {
		if value == "" {
			return
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
		)
	}
	add("python", v.Python)
	add("build_type", v.BuildType)
	add("mpi_type", v.MPIType)
	add("cudatoolkit", v.Toolkit)

	out, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode variants %s: %w", v, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// alreadyBuilt reports whether every output file of cmd exists in the output
// folder, either directly or in a platform subdirectory.
func (r *Runner) alreadyBuilt(cmd *dag.BuildCommand) (bool, error) {
	if len(cmd.OutputFiles) == 0 {
		return false, nil
	}
	for _, file := range cmd.OutputFiles {
		if _, err := os.Stat(filepath.Join(r.OutputFolder, file)); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("check output %s: %w", file, err)
		}
		matches, err := filepath.Glob(filepath.Join(r.OutputFolder, "*", file))
		if err != nil {
			return false, fmt.Errorf("check output %s: %w", file, err)
		}
		if len(matches) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// feedstockDir is where the feedstock of cmd is checked out: the repository
// name for remote feedstocks, the recipe name for local ones.
func (r *Runner) feedstockDir(cmd *dag.BuildCommand) string {
	name := cmd.Recipe
	if cmd.Repository != "" {
		name = strings.TrimSuffix(path.Base(strings.TrimRight(cmd.Repository, "/")), ".git")
	}
	return filepath.Join(r.RepositoryFolder, name)
}

func execCombined(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	return c.CombinedOutput()
}

func tail(out []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
