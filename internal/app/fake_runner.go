package app

import (
	"context"
	"sync"

	"github.com/vk/recipegrid/internal/dag"
)

// RecordingRunner is a fake conda-build runner that remembers the recipes it
// was asked to build, in the order the builds started. Tests of this and
// other packages use it in place of a real conda-build.
type RecordingRunner struct {
	mu    sync.Mutex
	Built []string
	// Fail makes the build of the named recipe fail with the given error.
	Fail map[string]error
}

func (r *RecordingRunner) Run(_ context.Context, cmd *dag.BuildCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Built = append(r.Built, cmd.Recipe+"@"+cmd.Variant.String())
	return r.Fail[cmd.Recipe]
}
