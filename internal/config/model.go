package config

import (
	"github.com/hashicorp/hcl/v2"
)

// Model is the unified, format-agnostic representation of every environment
// file loaded for a run, with imports already merged.
type Model struct {
	// Recipes in declaration order, imported files first.
	Recipes []*Recipe
	// Channels requested by the environment files, de-duplicated.
	Channels []string
	// ExternalDependencies are constraints on packages never built by the
	// run; they are pinned into every generated environment file.
	ExternalDependencies []string
	// Sources lists the loaded files in the order they were merged.
	Sources []string
}

// Recipe is the format-agnostic representation of a `recipe` block.
type Recipe struct {
	Name       string
	Repository string
	GitTag     string
	RecipePath string
	Version    string

	// Python is false for recipes whose outputs do not depend on the
	// interpreter version.
	Python bool
	// BuildTypes restricts the hardware variants; empty means all requested.
	BuildTypes []string
	// MPITypes restricts the MPI variants; empty means MPI independent.
	MPITypes []string
	// RequiresToolkit marks recipes that can only be built against CUDA.
	RequiresToolkit bool

	When            hcl.Expression
	RunDependencies hcl.Expression
	Outputs         []*Output

	// Source is the file the recipe was declared in.
	Source string
}

// Output is one package produced by a recipe.
type Output struct {
	Name        string
	BuildString hcl.Expression
}

// RecipeByName returns the recipe with the given name.
func (m *Model) RecipeByName(name string) (*Recipe, bool) {
	for _, r := range m.Recipes {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}
