package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/dag"
	"github.com/vk/recipegrid/internal/variant"
)

// Order returns every node of g so that each producer appears before the
// nodes depending on it. External nodes come first, ordered by constraint,
// followed by build nodes as their dependencies allow.
func Order(ctx context.Context, g *dag.Graph) ([]*dag.Node, error) {
	logger := ctxlog.FromContext(ctx)

	// Report cycles by recipe name before handing the graph over.
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	nodes := g.Nodes()
	byKey := make(map[string]*dag.Node, len(nodes))
	tg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, n := range nodes {
		byKey[n.Key()] = n
		if err := tg.AddVertex(n.Key()); err != nil {
			return nil, fmt.Errorf("scheduler: add %s: %w", n, err)
		}
	}
	for _, n := range nodes {
		deps, err := g.Dependencies(n.Key())
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if err := tg.AddEdge(dep, n.Key()); err != nil {
				return nil, fmt.Errorf("scheduler: link %s to %s: %w", dep, n, err)
			}
		}
	}

	keys, err := graph.StableTopologicalSort(tg, func(a, b string) bool {
		return Less(byKey[a], byKey[b])
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	order := make([]*dag.Node, 0, len(keys))
	for _, key := range keys {
		order = append(order, byKey[key])
	}
	logger.Debug("Build order computed.", "nodes", len(order))
	return order, nil
}

// Less is the tie-breaking order between nodes that have no dependency on
// each other. It is a total order over distinct nodes.
func Less(a, b *dag.Node) bool {
	if a.IsExternal() != b.IsExternal() {
		return a.IsExternal()
	}
	if a.IsExternal() {
		if c := strings.Compare(a.Name(), b.Name()); c != 0 {
			return c < 0
		}
		return a.Key() < b.Key()
	}
	if c := strings.Compare(a.Command.Recipe, b.Command.Recipe); c != 0 {
		return c < 0
	}
	if c := variant.Compare(a.Command.Variant, b.Command.Variant); c != 0 {
		return c < 0
	}
	return a.Key() < b.Key()
}

// BuildCommands returns the commands of the build nodes in order, dropping
// external nodes.
func BuildCommands(order []*dag.Node) []*dag.BuildCommand {
	var cmds []*dag.BuildCommand
	for _, n := range order {
		if !n.IsExternal() {
			cmds = append(cmds, n.Command)
		}
	}
	return cmds
}
