package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/recipegrid/internal/variant"
)

// testNode returns a build node for recipe producing a package of the same
// name, for the cpu build of python 3.8.
func testNode(recipe string) *Node {
	return NewBuildNode(&BuildCommand{
		Recipe:      recipe,
		Version:     "1.0",
		Packages:    []string{recipe},
		Variant:     variant.Variant{Python: "3.8", BuildType: "cpu"},
		OutputFiles: []string{recipe + "-1.0-py38_cpu.tar.bz2"},
	})
}

// addNodes adds a test node per recipe name and returns their keys.
func addNodes(g *Graph, recipes ...string) map[string]string {
	keys := make(map[string]string, len(recipes))
	for _, r := range recipes {
		keys[r] = g.AddNode(testNode(r)).Key()
	}
	return keys
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.vertices)
	assert.Zero(t, g.Len())
}

func TestNode_Key(t *testing.T) {
	n := NewBuildNode(&BuildCommand{
		Recipe:   "tensorflow",
		Packages: []string{"tensorflow-base", "tensorflow-estimator"},
		Variant:  variant.Variant{Python: "3.8", BuildType: "cuda", Toolkit: "11.2"},
	})
	reordered := NewBuildNode(&BuildCommand{
		Recipe:   "tensorflow",
		Packages: []string{"tensorflow-estimator", "tensorflow-base"},
		Variant:  variant.Variant{Python: "3.8", BuildType: "cuda", Toolkit: "11.2"},
	})
	assert.Equal(t, "build:tensorflow-base,tensorflow-estimator@py3.8-cuda-11.2", n.Key())
	assert.Equal(t, n.Key(), reordered.Key())
	assert.False(t, n.IsExternal())
	assert.Equal(t, "tensorflow", n.Name())

	ext := NewExternalNode("cudnn   8.1")
	assert.Equal(t, "external:cudnn 8.1.*", ext.Key())
	assert.True(t, ext.IsExternal())
	assert.Equal(t, "cudnn", ext.Name())
	assert.Nil(t, ext.Packages())
	assert.Equal(t, variant.Variant{}, ext.Variant())
}

func TestAddNode(t *testing.T) {
	g := New()

	a := testNode("a")
	assert.Same(t, a, g.AddNode(a))
	assert.Equal(t, 1, g.Len())

	// Test idempotency: a structurally equal node resolves to the first one.
	assert.Same(t, a, g.AddNode(testNode("a")))
	assert.Equal(t, 1, g.Len())

	g.AddNode(testNode("b"))
	assert.Equal(t, 2, g.Len())

	got, ok := g.Node(a.Key())
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = g.Node("build:missing@any")
	assert.False(t, ok)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		keys := addNodes(g, "a", "b")

		err := g.AddEdge(keys["a"], keys["b"]) // b depends on a
		require.NoError(t, err)

		deps, err := g.Dependencies(keys["b"])
		require.NoError(t, err)
		assert.Equal(t, []string{keys["a"]}, deps)

		dependents, err := g.Dependents(keys["a"])
		require.NoError(t, err)
		assert.Equal(t, []string{keys["b"]}, dependents)

		deps, err = g.Dependencies(keys["a"])
		require.NoError(t, err)
		assert.Empty(t, deps)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		keys := addNodes(g, "a", "b")

		err := g.AddEdge("dne", keys["a"])
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge(keys["a"], "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge(keys["a"], keys["a"])
		assert.ErrorContains(t, err, "self-referential edge")

		_, err = g.Dependencies("dne")
		assert.ErrorContains(t, err, "node not found")

		_, err = g.Dependents("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestNodes_SortedByKey(t *testing.T) {
	g := New()
	addNodes(g, "c", "a", "b")
	g.AddNode(NewExternalNode("zlib"))

	var keys []string
	for _, n := range g.Nodes() {
		keys = append(keys, n.Key())
	}
	assert.Equal(t, []string{
		"build:a@py3.8-cpu",
		"build:b@py3.8-cpu",
		"build:c@py3.8-cpu",
		"external:zlib",
	}, keys)
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		addNodes(g, "a", "b", "c")
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		k := addNodes(g, "a", "b", "c", "d")
		require.NoError(t, g.AddEdge(k["a"], k["b"]))
		require.NoError(t, g.AddEdge(k["b"], k["c"]))
		require.NoError(t, g.AddEdge(k["a"], k["c"])) // Transitive edge
		require.NoError(t, g.AddEdge(k["c"], k["d"]))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		k := addNodes(g, "a", "b")
		require.NoError(t, g.AddEdge(k["a"], k["b"]))
		require.NoError(t, g.AddEdge(k["b"], k["a"])) // Cycle
		err := g.DetectCycles()

		var cycleErr *CycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, []string{"a", "b", "a"}, cycleErr.Recipes)
		assert.ErrorContains(t, err, "cycle detected between recipes: a -> b -> a")
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		k := addNodes(g, "a", "b", "c", "d")
		require.NoError(t, g.AddEdge(k["a"], k["b"]))
		require.NoError(t, g.AddEdge(k["b"], k["c"]))
		require.NoError(t, g.AddEdge(k["c"], k["d"]))
		require.NoError(t, g.AddEdge(k["d"], k["a"])) // Cycle back to the start

		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, []string{"a", "b", "c", "d", "a"}, cycleErr.Recipes)
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		// Component 1 (valid)
		k := addNodes(g, "a", "b", "x", "y", "z")
		require.NoError(t, g.AddEdge(k["a"], k["b"]))

		// Component 2 (has a cycle)
		require.NoError(t, g.AddEdge(k["x"], k["y"]))
		require.NoError(t, g.AddEdge(k["y"], k["z"]))
		require.NoError(t, g.AddEdge(k["z"], k["y"])) // Cycle

		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, []string{"y", "z", "y"}, cycleErr.Recipes)
	})
}
