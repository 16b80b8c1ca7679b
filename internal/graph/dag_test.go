package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/ir"
	"github.com/roach88/critpath/internal/testutil"
)

func finalize(t *testing.T, nodes []ir.Node, edges [][2]string) *DAG {
	t.Helper()
	b := NewBuilder()
	for _, n := range nodes {
		record(t, b, n)
	}
	for _, e := range edges {
		require.NoError(t, b.RecordEdge(e[0], e[1]))
	}
	dag, err := b.Finalize()
	require.NoError(t, err)
	return dag
}

func keys(d *DAG, order []NodeIndex) []string {
	out := make([]string, len(order))
	for i, n := range order {
		out[i] = d.Node(n).Key
	}
	return out
}

func TestTopologicalOrder_LexicographicReadySet(t *testing.T) {
	// Recorded in reverse so index order and lexicographic order disagree.
	dag := finalize(t, []ir.Node{
		node("z", ir.KindAnalysis, 10, 20),
		node("m", ir.KindAnalysis, 10, 20),
		node("b", ir.KindAnalysis, 0, 10),
		node("a", ir.KindLoad, 0, 10),
	}, [][2]string{{"a", "z"}, {"b", "m"}, {"a", "m"}})

	order, err := dag.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "m", "z"}, keys(dag, order))
}

func TestTopologicalOrder_RespectsEdges(t *testing.T) {
	chain := testutil.FourStepChain()
	var nodes []ir.Node
	for i := len(chain.Nodes) - 1; i >= 0; i-- {
		nodes = append(nodes, chain.Nodes[i])
	}
	var edges [][2]string
	for _, e := range chain.Edges {
		edges = append(edges, [2]string{e.From, e.To})
	}
	dag := finalize(t, nodes, edges)

	order, err := dag.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, dag.Len())

	pos := make(map[NodeIndex]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for u := 0; u < dag.Len(); u++ {
		for _, v := range dag.Successors(NodeIndex(u)) {
			assert.Less(t, pos[NodeIndex(u)], pos[v])
		}
	}
	assert.Equal(t, testutil.Key(ir.KindLoad, "root//"), dag.Node(order[0]).Key)
}

func TestDAG_Compare(t *testing.T) {
	a := node("k2", ir.KindAction, 0, 1)
	a.Identifier = ir.Identifier{Label: "root//:x", Category: "write", Qualifier: "a.txt"}
	b := node("k1", ir.KindAction, 0, 1)
	b.Identifier = ir.Identifier{Label: "root//:x", Category: "write", Qualifier: "b.txt"}
	c := node("k0", ir.KindAction, 0, 1)
	c.Identifier = a.Identifier

	dag := finalize(t, []ir.Node{a, b, c}, nil)
	ai, _ := dag.Lookup("k2")
	bi, _ := dag.Lookup("k1")
	ci, _ := dag.Lookup("k0")

	assert.Negative(t, dag.Compare(ai, bi))
	assert.Positive(t, dag.Compare(ai, ci), "equal identifiers fall back to key")
	assert.Zero(t, dag.Compare(ai, ai))
}

func TestDAG_EmptyGraph(t *testing.T) {
	dag, err := NewBuilder().Finalize()
	require.NoError(t, err)
	assert.Equal(t, 0, dag.Len())
	assert.Empty(t, dag.Sinks())

	order, err := dag.TopologicalOrder()
	require.NoError(t, err)
	assert.Empty(t, order)
}
