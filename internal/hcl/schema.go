package hcl

import "github.com/hashicorp/hcl/v2"

// envFile is the top-level structure of an environment file.
type envFile struct {
	Imports              []string       `hcl:"imports,optional"`
	Channels             []string       `hcl:"channels,optional"`
	ExternalDependencies []string       `hcl:"external_dependencies,optional"`
	Recipes              []*recipeBlock `hcl:"recipe,block"`
}

// recipeBlock represents a `recipe` block. Attributes that vary per build
// variant are kept as expressions and evaluated later by the Converter.
type recipeBlock struct {
	Name            string         `hcl:"name,label"`
	Repository      string         `hcl:"repository,optional"`
	GitTag          string         `hcl:"git_tag,optional"`
	RecipePath      string         `hcl:"recipe_path,optional"`
	Version         string         `hcl:"version"`
	Python          *bool          `hcl:"python,optional"`
	BuildTypes      []string       `hcl:"build_types,optional"`
	MPITypes        []string       `hcl:"mpi_types,optional"`
	RequiresToolkit bool           `hcl:"requires_toolkit,optional"`
	When            hcl.Expression `hcl:"when,optional"`
	RunDependencies hcl.Expression `hcl:"run_dependencies,optional"`
	Outputs         []*outputBlock `hcl:"output,block"`
}

// outputBlock represents an `output` block inside a recipe.
type outputBlock struct {
	Name        string         `hcl:"name,label"`
	BuildString hcl.Expression `hcl:"build_string,optional"`
}
