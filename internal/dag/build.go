package dag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/recipegrid/internal/config"
	"github.com/vk/recipegrid/internal/constraint"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/variant"
)

// Build constructs a complete, validated dependency graph from a config model
// and the requested variant matrix.
func Build(ctx context.Context, model *config.Model, conv config.Converter, m variant.Matrix) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "recipes", len(model.Recipes))
	g := New()
	variants := m.Variants()

	// First pass: one build node per recipe and applicable variant.
	var builds []*Node
	producers := make(map[string][]*Node)
	for _, r := range model.Recipes {
		nodes, err := recipeNodes(ctx, r, conv, variants, model.Channels)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if err := checkDuplicateProducers(n, producers); err != nil {
				return nil, err
			}
			g.AddNode(n)
			builds = append(builds, n)
			for _, pkg := range n.Command.Packages {
				producers[pkg] = append(producers[pkg], n)
			}
		}
	}
	logger.Debug("Build: Node creation complete.", "build_nodes", len(builds))

	// Second pass: link run dependencies to the nodes producing them.
	for _, n := range builds {
		if err := linkNode(g, n, producers); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: Node linking complete.", "node_count", g.Len())

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Graph construction successful.")
	return g, nil
}

// recipeNodes expands a recipe over the requested variants. Axes the recipe
// does not depend on are cleared so identical builds collapse to one node.
func recipeNodes(ctx context.Context, r *config.Recipe, conv config.Converter, variants []variant.Variant, channels []string) ([]*Node, error) {
	logger := ctxlog.FromContext(ctx).With("recipe", r.Name)
	if err := validateRecipe(r); err != nil {
		return nil, err
	}

	seen := make(map[variant.Variant]bool)
	linted := make(map[string]bool)
	var nodes []*Node
	for _, requested := range variants {
		v, ok := applicableVariant(r, requested)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true

		when, err := conv.EvalBool(r.When, v)
		if err != nil {
			return nil, fmt.Errorf("recipe %q: evaluating when for %s: %w", r.Name, v, err)
		}
		if !when {
			logger.Debug("Recipe excluded for variant by its when expression.", "variant", v.String())
			continue
		}

		cmd, err := newBuildCommand(r, conv, v, channels)
		if err != nil {
			return nil, err
		}
		for _, dep := range cmd.RunDependencies {
			if linted[dep] {
				continue
			}
			linted[dep] = true
			for _, w := range constraint.Lint(dep) {
				logger.Warn("Run dependency will be passed through as written.", "constraint", w.Constraint, "reason", w.Message)
			}
		}
		nodes = append(nodes, NewBuildNode(cmd))
	}

	if len(nodes) == 0 {
		logger.Debug("Recipe does not apply to any requested variant.")
	}
	return nodes, nil
}

func validateRecipe(r *config.Recipe) error {
	fail := func(format string, args ...any) error {
		return &ConstructionError{Recipe: r.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if r.Version == "" || strings.ContainsAny(r.Version, "- ") {
		return fail("version %q is not a valid package version", r.Version)
	}
	if len(r.Outputs) == 0 {
		return fail("declares no outputs")
	}
	names := make(map[string]bool, len(r.Outputs))
	for _, o := range r.Outputs {
		if names[o.Name] {
			return fail("declares output %q twice", o.Name)
		}
		names[o.Name] = true
	}
	for _, bt := range r.BuildTypes {
		if !variant.IsKnownBuildType(bt) {
			return fail("unknown build type %q", bt)
		}
	}
	if r.RequiresToolkit && !slices.Contains(r.BuildTypes, variant.BuildTypeCUDA) {
		return fail("requires a CUDA toolkit but does not build for %q", variant.BuildTypeCUDA)
	}
	return nil
}

// applicableVariant maps a requested variant onto the axes the recipe depends
// on. It returns false when the recipe is not built for the variant at all.
func applicableVariant(r *config.Recipe, requested variant.Variant) (variant.Variant, bool) {
	v := requested
	if !r.Python {
		v.Python = ""
	}

	switch {
	case len(r.BuildTypes) == 0:
		v.BuildType, v.Toolkit = "", ""
	case !slices.Contains(r.BuildTypes, v.BuildType):
		return v, false
	case r.RequiresToolkit && v.BuildType != variant.BuildTypeCUDA:
		return v, false
	}

	switch {
	case len(r.MPITypes) == 0:
		v.MPIType = ""
	case !slices.Contains(r.MPITypes, v.MPIType):
		return v, false
	}
	return v, true
}

func newBuildCommand(r *config.Recipe, conv config.Converter, v variant.Variant, channels []string) (*BuildCommand, error) {
	cmd := &BuildCommand{
		Recipe:     r.Name,
		Repository: r.Repository,
		GitTag:     r.GitTag,
		RecipePath: r.RecipePath,
		Version:    r.Version,
		Variant:    v,
		Channels:   slices.Clone(channels),
	}

	for _, o := range r.Outputs {
		build, err := conv.EvalString(o.BuildString, v)
		if err != nil {
			return nil, fmt.Errorf("recipe %q: evaluating build_string of %q for %s: %w", r.Name, o.Name, v, err)
		}
		if build == "" {
			build = DefaultBuildString(v)
		}
		if strings.ContainsAny(build, "- ") {
			return nil, &ConstructionError{Recipe: r.Name, Reason: fmt.Sprintf("build string %q of output %q contains '-' or a space", build, o.Name)}
		}
		cmd.Packages = append(cmd.Packages, o.Name)
		cmd.OutputFiles = append(cmd.OutputFiles, constraint.OutputFileName(o.Name, r.Version, build))
	}

	deps, err := conv.EvalStringList(r.RunDependencies, v)
	if err != nil {
		return nil, fmt.Errorf("recipe %q: evaluating run_dependencies for %s: %w", r.Name, v, err)
	}
	cmd.RunDependencies = deps
	return cmd, nil
}

// DefaultBuildString is the build string of an output that declares none,
// e.g. "py38_cuda11.2_openmpi" or "py39_cpu".
func DefaultBuildString(v variant.Variant) string {
	var parts []string
	if v.Python != "" {
		parts = append(parts, "py"+v.PyNoDot())
	}
	if v.BuildType != "" {
		parts = append(parts, v.BuildType+v.Toolkit)
	}
	if v.MPIType != "" {
		parts = append(parts, v.MPIType)
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "_")
}

// checkDuplicateProducers rejects a node producing a package that another
// recipe already produces for an overlapping variant, since a consumer could
// not tell the two builds apart.
func checkDuplicateProducers(n *Node, producers map[string][]*Node) error {
	for _, pkg := range n.Command.Packages {
		for _, p := range producers[pkg] {
			if p.Command.Variant.Overlaps(n.Command.Variant) {
				return &ConstructionError{
					Recipe: n.Command.Recipe,
					Reason: fmt.Sprintf("package %q for %s is also produced by recipe %q for %s", pkg, n.Command.Variant, p.Command.Recipe, p.Command.Variant),
				}
			}
		}
	}
	return nil
}

// linkNode adds an edge from every producer of one of n's run dependencies to
// n. A producer qualifies when its variant overlaps n's: for a consumer that
// leaves an axis unset, every build of the package along that axis must
// exist before it. A dependency no build node in the run produces becomes an
// external node.
func linkNode(g *Graph, n *Node, producers map[string][]*Node) error {
	for _, dep := range n.Command.RunDependencies {
		name := constraint.Name(dep)
		linked := false
		for _, p := range producers[name] {
			if p == n {
				linked = true
				continue
			}
			if !p.Command.Variant.Overlaps(n.Command.Variant) {
				continue
			}
			if err := g.AddEdge(p.Key(), n.Key()); err != nil {
				return err
			}
			linked = true
		}
		if linked {
			continue
		}
		ext := g.AddNode(NewExternalNode(dep))
		if err := g.AddEdge(ext.Key(), n.Key()); err != nil {
			return err
		}
	}
	return nil
}
