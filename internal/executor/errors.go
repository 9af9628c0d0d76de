package executor

import (
	"fmt"

	"github.com/vk/recipegrid/internal/variant"
)

// BuildError is the failure of one build command.
type BuildError struct {
	Recipe  string
	Variant variant.Variant
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of recipe %q for %s failed: %v", e.Recipe, e.Variant, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
