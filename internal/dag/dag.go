package dag

import (
	"fmt"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		vertices: make(map[string]*vertex),
	}
}

// AddNode adds n to the graph and returns it. If a node with the same key
// already exists, the graph is left unchanged and the existing node is
// returned instead.
func (g *Graph) AddNode(n *Node) *Node {
	key := n.Key()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if v, ok := g.vertices[key]; ok {
		return v.node
	}

	g.vertices[key] = &vertex{
		node:       n,
		deps:       make(map[string]*vertex),
		dependents: make(map[string]*vertex),
	}
	return n
}

// AddEdge creates a directed edge from the `fromKey` node to the `toKey` node.
// This signifies that `toKey` has a dependency on `fromKey`: the producer
// must be built before its consumer. An error is returned if either node does
// not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromKey, toKey string) error {
	if fromKey == toKey {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromKey, fromKey)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	from, ok := g.vertices[fromKey]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromKey)
	}

	to, ok := g.vertices[toKey]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toKey)
	}

	to.deps[fromKey] = from
	from.dependents[toKey] = to

	return nil
}

// Node returns the node registered under key.
func (g *Graph) Node(key string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[key]
	if !ok {
		return nil, false
	}
	return v.node, true
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.vertices)
}

// Nodes returns every node in the graph sorted by key.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	nodes := make([]*Node, 0, len(g.vertices))
	for _, key := range sortedKeys(g.vertices) {
		nodes = append(nodes, g.vertices[key].node)
	}
	return nodes
}

// Dependencies returns the sorted keys of the nodes the given node depends on.
func (g *Graph) Dependencies(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[key]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", key)
	}
	return sortedKeys(v.deps), nil
}

// Dependents returns the sorted keys of the nodes that depend on the given
// node.
func (g *Graph) Dependents(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[key]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", key)
	}
	return sortedKeys(v.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming the recipes on the first cycle found, visiting nodes in key order so
// the report is stable between runs.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: fully visited and not part of a cycle.
	// onStack: in the recursion stack of the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []*vertex

	var visit func(key string, v *vertex) *CycleError
	visit = func(key string, v *vertex) *CycleError {
		if permanent[key] {
			return nil
		}
		if onStack[key] {
			return cycleFrom(stack, v)
		}

		onStack[key] = true
		stack = append(stack, v)

		for _, depKey := range sortedKeys(v.dependents) {
			if err := visit(depKey, v.dependents[depKey]); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, key)
		permanent[key] = true
		return nil
	}

	for _, key := range sortedKeys(g.vertices) {
		if err := visit(key, g.vertices[key]); err != nil {
			return err
		}
	}
	return nil
}

// cycleFrom extracts the cycle closing at v from the DFS stack.
func cycleFrom(stack []*vertex, v *vertex) *CycleError {
	start := slices.Index(stack, v)
	var recipes []string
	for _, s := range stack[start:] {
		recipes = append(recipes, s.node.Name())
	}
	recipes = append(recipes, v.node.Name())
	return &CycleError{Recipes: recipes}
}

func sortedKeys(m map[string]*vertex) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
