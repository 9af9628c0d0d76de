package resolve

import (
	"github.com/vk/recipegrid/internal/dag"
	"github.com/vk/recipegrid/internal/variant"
)

// Partition returns the build nodes of g made for buildType or for no
// hardware at all. A cpu partition therefore never holds a node built
// against a CUDA toolkit.
func Partition(g *dag.Graph, buildType string) []*dag.Node {
	var out []*dag.Node
	for _, n := range g.Nodes() {
		if n.IsExternal() {
			continue
		}
		if bt := n.Command.Variant.BuildType; bt == "" || bt == buildType {
			out = append(out, n)
		}
	}
	return out
}

// Environment is the resolved content of the environment file of one
// variant.
type Environment struct {
	Variant variant.Variant
	// Nodes are the starting nodes the constraints were resolved from.
	Nodes       []*dag.Node
	Constraints Set
}

// ResolveVariants resolves one environment per variant of m. The starting
// nodes of a variant are the nodes of its build type partition whose other
// axes are unset or equal to the variant's. Dependencies are followed only
// into nodes of that same kind. Variants without any starting node are left
// out.
func ResolveVariants(g *dag.Graph, m variant.Matrix, external, exclude []string) ([]Environment, error) {
	var envs []Environment
	partitions := make(map[string][]*dag.Node)
	for _, v := range m.Variants() {
		part, ok := partitions[v.BuildType]
		if !ok {
			part = Partition(g, v.BuildType)
			partitions[v.BuildType] = part
		}

		var starting []*dag.Node
		for _, n := range part {
			if n.Command.Variant.Satisfies(v) {
				starting = append(starting, n)
			}
		}
		if len(starting) == 0 {
			continue
		}

		set, err := ResolveVariant(g, starting, v, external, exclude)
		if err != nil {
			return nil, err
		}
		envs = append(envs, Environment{Variant: v, Nodes: starting, Constraints: set})
	}
	return envs, nil
}
