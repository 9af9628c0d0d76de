// Package resolve computes the package constraints that go into an
// environment file: everything a set of build nodes produces and needs at run
// time, plus the caller's external constraints.
//
// The resolver builds a set, it does not solve. Two different constraints on
// one package are both kept and reported through Set.Conflicts so the
// installing tool fails loudly instead of this package picking a winner.
package resolve

import (
	"fmt"
	"slices"

	"github.com/vk/recipegrid/internal/constraint"
	"github.com/vk/recipegrid/internal/dag"
	"github.com/vk/recipegrid/internal/variant"
)

// Resolve returns the normalized constraints of the starting nodes and of
// every node they depend on, transitively, together with the external
// constraints. Constraints whose package name is listed in exclude are
// dropped.
//
// A build node contributes "<pkg> <version>.* <build>" for each of its output
// files and the normalized form of each run dependency. An external node
// contributes its normalized constraint.
func Resolve(g *dag.Graph, starting []*dag.Node, external, exclude []string) (Set, error) {
	return resolve(g, starting, nil, external, exclude)
}

// ResolveVariant is Resolve restricted to the nodes that can live in an
// environment of variant v. The traversal does not enter a build node whose
// variant does not satisfy v, so a node agnostic of the build type that was
// built after both its cpu and cuda producers only pulls in the producer
// matching v.
func ResolveVariant(g *dag.Graph, starting []*dag.Node, v variant.Variant, external, exclude []string) (Set, error) {
	return resolve(g, starting, func(n *dag.Node) bool {
		return n.IsExternal() || n.Command.Variant.Satisfies(v)
	}, external, exclude)
}

// resolve walks the dependencies of starting breadth first. A nil accept
// admits every node.
func resolve(g *dag.Graph, starting []*dag.Node, accept func(*dag.Node) bool, external, exclude []string) (Set, error) {
	set := make(Set)

	visited := make(map[string]bool)
	queue := make([]string, 0, len(starting))
	for _, n := range starting {
		queue = append(queue, n.Key())
	}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true

		n, ok := g.Node(key)
		if !ok {
			return nil, fmt.Errorf("resolve: node not found: %s", key)
		}
		if accept != nil && !accept(n) {
			continue
		}
		if err := addNode(set, n); err != nil {
			return nil, err
		}

		deps, err := g.Dependencies(key)
		if err != nil {
			return nil, err
		}
		queue = append(queue, deps...)
	}

	for _, c := range external {
		set.Add(constraint.Normalize(c))
	}

	if len(exclude) > 0 {
		names := make([]string, 0, len(exclude))
		for _, e := range exclude {
			names = append(names, constraint.Name(e))
		}
		for c := range set {
			if slices.Contains(names, constraint.Name(c)) {
				delete(set, c)
			}
		}
	}
	return set, nil
}

func addNode(set Set, n *dag.Node) error {
	if n.IsExternal() {
		set.Add(constraint.Normalize(n.Constraint))
		return nil
	}

	cmd := n.Command
	if len(cmd.OutputFiles) != len(cmd.Packages) {
		return fmt.Errorf("resolve: %s has %d packages but %d output files", n, len(cmd.Packages), len(cmd.OutputFiles))
	}
	for i, pkg := range cmd.Packages {
		c, err := constraint.FromOutputFile(pkg, cmd.OutputFiles[i])
		if err != nil {
			return fmt.Errorf("resolve: %s: %w", n, err)
		}
		set.Add(c)
	}
	for _, dep := range cmd.RunDependencies {
		set.Add(constraint.Normalize(dep))
	}
	return nil
}
