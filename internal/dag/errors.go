package dag

import (
	"fmt"
	"strings"
)

// ConstructionError reports a recipe whose definition cannot be turned into
// build nodes, for example because its variant applicability contradicts
// itself.
type ConstructionError struct {
	Recipe string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("recipe %q: %s", e.Recipe, e.Reason)
}

// CycleError reports a dependency cycle. Recipes lists the recipes on the
// cycle in dependency order, starting and ending with the same recipe.
type CycleError struct {
	Recipes []string
}

func (e *CycleError) Error() string {
	return "cycle detected between recipes: " + strings.Join(e.Recipes, " -> ")
}
