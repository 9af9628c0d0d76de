package dag

import (
	"slices"
	"strings"
	"sync"

	"github.com/vk/recipegrid/internal/constraint"
	"github.com/vk/recipegrid/internal/variant"
)

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the vertices map during concurrent access.
	mutex sync.RWMutex
	// vertices stores all nodes in the graph, keyed by Node.Key.
	vertices map[string]*vertex
}

// vertex is the graph's private bookkeeping for a node. It is un-exported to
// enforce interaction with the graph via the public API (using keys), not by
// direct struct manipulation.
type vertex struct {
	node *Node
	// deps holds the vertices this one depends on (producers).
	deps map[string]*vertex
	// dependents holds the vertices that depend on this one (consumers).
	dependents map[string]*vertex
}

// BuildCommand describes one invocation of conda-build for one recipe under
// one variant. It is not modified once the graph is built.
type BuildCommand struct {
	Recipe     string
	Repository string
	GitTag     string
	RecipePath string
	Version    string

	// Packages produced by the recipe, in declaration order.
	Packages []string
	Variant  variant.Variant
	// OutputFiles has one artifact filename per package, in the same order.
	OutputFiles []string
	// RunDependencies are raw, unnormalized constraint strings.
	RunDependencies []string
	Channels        []string
}

// Node is a graph vertex: either a build node wrapping a BuildCommand or an
// external node wrapping one constraint on a package the run never builds.
type Node struct {
	Command    *BuildCommand
	Constraint string
}

// NewBuildNode returns the node for a build command.
func NewBuildNode(cmd *BuildCommand) *Node {
	return &Node{Command: cmd}
}

// NewExternalNode returns the node for a constraint on an external package.
func NewExternalNode(raw string) *Node {
	return &Node{Constraint: raw}
}

// IsExternal reports whether n stands for a package the run does not build.
func (n *Node) IsExternal() bool {
	return n.Command == nil
}

// Key is the structural identity of a node. Build nodes are identified by
// the sorted set of packages they produce and their variant, external nodes
// by their normalized constraint.
func (n *Node) Key() string {
	if n.IsExternal() {
		return "external:" + constraint.Normalize(n.Constraint)
	}
	pkgs := slices.Clone(n.Command.Packages)
	slices.Sort(pkgs)
	return "build:" + strings.Join(pkgs, ",") + "@" + n.Command.Variant.String()
}

// Name returns the recipe name of a build node or the package name of an
// external node.
func (n *Node) Name() string {
	if n.IsExternal() {
		return constraint.Name(n.Constraint)
	}
	return n.Command.Recipe
}

// Packages returns the packages a node produces; nil for external nodes.
func (n *Node) Packages() []string {
	if n.IsExternal() {
		return nil
	}
	return n.Command.Packages
}

// Variant returns the variant of a build node; the zero Variant for external
// nodes.
func (n *Node) Variant() variant.Variant {
	if n.IsExternal() {
		return variant.Variant{}
	}
	return n.Command.Variant
}

func (n *Node) String() string {
	if n.IsExternal() {
		return "external " + n.Constraint
	}
	return n.Command.Recipe + " (" + n.Command.Variant.String() + ")"
}
