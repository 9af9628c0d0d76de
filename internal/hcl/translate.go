package hcl

import (
	"github.com/vk/recipegrid/internal/config"
)

// translateRecipe converts the HCL-specific recipe schema into the agnostic model.
func (l *Loader) translateRecipe(r *recipeBlock, source string) *config.Recipe {
	python := true
	if r.Python != nil {
		python = *r.Python
	}
	recipe := &config.Recipe{
		Name:            r.Name,
		Repository:      r.Repository,
		GitTag:          r.GitTag,
		RecipePath:      r.RecipePath,
		Version:         r.Version,
		Python:          python,
		BuildTypes:      r.BuildTypes,
		MPITypes:        r.MPITypes,
		RequiresToolkit: r.RequiresToolkit,
		When:            r.When,
		RunDependencies: r.RunDependencies,
		Source:          source,
	}
	for _, o := range r.Outputs {
		recipe.Outputs = append(recipe.Outputs, &config.Output{
			Name:        o.Name,
			BuildString: o.BuildString,
		})
	}
	return recipe
}
