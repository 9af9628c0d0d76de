package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/recipegrid/internal/variant"
)

// Loader is the interface for a format-specific environment file loader.
type Loader interface {
	// Load reads the environment files at the given paths or URLs, follows
	// their imports, translates everything into the format-agnostic model
	// and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter evaluates the deferred expressions of a recipe for one variant.
// A nil or null expression evaluates to the zero value of its result.
type Converter interface {
	// EvalBool evaluates an applicability expression. Null evaluates to true.
	EvalBool(expr hcl.Expression, v variant.Variant) (bool, error)
	// EvalString evaluates a string expression. Null evaluates to "".
	EvalString(expr hcl.Expression, v variant.Variant) (string, error)
	// EvalStringList evaluates a list of strings, dropping null and empty
	// elements. Null evaluates to an empty list.
	EvalStringList(expr hcl.Expression, v variant.Variant) ([]string, error)
}
