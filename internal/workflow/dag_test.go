package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodesAndEdgesEmpty(t *testing.T) {
	nodes, err := ParseNodes("")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	edges, err := ParseEdges("")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestParseNodesInvalidJSON(t *testing.T) {
	_, err := ParseNodes("{not json")
	assert.Error(t, err)
}

func validDAG() ([]Node, []Edge) {
	nodes := []Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a", "b"}},
	}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "c"},
	}
	return nodes, edges
}

func TestValidateAcceptsValidDAG(t *testing.T) {
	nodes, edges := validDAG()
	assert.NoError(t, Validate(nodes, edges))
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "a"}}
	assert.Error(t, Validate(nodes, nil))
}

func TestValidateRejectsEdgeToUnknownNode(t *testing.T) {
	nodes := []Node{{ID: "a"}}
	edges := []Edge{{From: "a", To: "ghost"}}
	assert.Error(t, Validate(nodes, edges))
}

func TestValidateRejectsDependsOnWithoutMatchingEdge(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "b", DependsOn: []string{"a"}}}
	// no edge a->b
	assert.Error(t, Validate(nodes, nil))
}

func TestValidateRejectsCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	edges := []Edge{
		{From: "b", To: "a"},
		{From: "a", To: "b"},
	}
	err := Validate(nodes, edges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestIndegreesAndSuccessors(t *testing.T) {
	nodes, _ := validDAG()

	deg := indegrees(nodes)
	assert.Equal(t, 0, deg["a"])
	assert.Equal(t, 1, deg["b"])
	assert.Equal(t, 2, deg["c"])

	succ := successors(nodes)
	assert.ElementsMatch(t, []string{"b", "c"}, succ["a"])
	assert.ElementsMatch(t, []string{"c"}, succ["b"])
}
