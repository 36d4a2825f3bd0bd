package graph_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/imdat99/bun-di-sub000/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_TopologicalSort(t *testing.T) {
	t.Run("dependencies first", func(t *testing.T) {
		g := graph.New[string]()
		g.AddEdge("app", "users")
		g.AddEdge("app", "config")
		g.AddEdge("users", "db")
		g.AddEdge("db", "config")

		sorted, err := g.TopologicalSort()
		require.NoError(t, err)
		require.Len(t, sorted, 4)

		pos := make(map[string]int)
		for i, n := range sorted {
			pos[n] = i
		}
		assert.Less(t, pos["config"], pos["db"])
		assert.Less(t, pos["db"], pos["users"])
		assert.Less(t, pos["users"], pos["app"])
	})

	t.Run("cycle", func(t *testing.T) {
		g := graph.New[string]()
		g.AddEdge("a", "b")
		g.AddEdge("b", "a")
		g.AddNode("c")

		sorted, err := g.TopologicalSort()
		require.Error(t, err)
		assert.Equal(t, []string{"c"}, sorted)

		var cycleErr *graph.CycleError[string]
		require.ErrorAs(t, err, &cycleErr)
		assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
	})
}

func TestGraph_Distances(t *testing.T) {
	g := graph.New[string]()
	g.AddEdge("root", "a")
	g.AddEdge("root", "b")
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a") // import cycle

	dist := g.Distances("root")
	assert.Equal(t, 0, dist["root"])
	assert.Equal(t, 1, dist["a"])
	assert.Equal(t, 2, dist["b"])
	assert.Equal(t, 3, dist["c"])

	assert.Empty(t, g.Distances("missing"))
}

func TestReacher(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a", "req"},
		"x": {"y"},
		"y": {"x"},
	}
	r := graph.NewReacher(
		func(k string) []string { return edges[k] },
		func(k string) bool { return k == "req" },
	)

	t.Run("through a cycle", func(t *testing.T) {
		assert.True(t, r.Reaches("a"))
		assert.True(t, r.Reaches("b"))
		assert.True(t, r.Reaches("c"))
	})

	t.Run("cycle without match terminates", func(t *testing.T) {
		assert.False(t, r.Reaches("x"))
		assert.False(t, r.Reaches("y"))
	})

	t.Run("start itself is not a match", func(t *testing.T) {
		assert.False(t, r.Reaches("req"))
	})
}

func TestGraph_Write(t *testing.T) {
	g := graph.New[string]()
	g.AddEdge("app", "users")
	g.AddEdge("app", "users")

	assert.Equal(t, []string{"app", "users"}, g.Nodes())

	var dot bytes.Buffer
	require.NoError(t, g.WriteDOT(&dot, "modules", strings.ToUpper))
	assert.Contains(t, dot.String(), `digraph "modules"`)
	assert.Contains(t, dot.String(), `n0 [label="APP"]`)
	assert.Contains(t, dot.String(), "n0 -> n1;")

	var text bytes.Buffer
	require.NoError(t, g.WriteText(&text, func(s string) string { return s }))
	assert.Equal(t, "app -> users\nusers\n", text.String())
}
