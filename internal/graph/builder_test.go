package graph

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/ir"
	"github.com/roach88/critpath/internal/testutil"
)

var base = testutil.ChainStart

func node(key string, kind ir.NodeKind, startUS, endUS int64) ir.Node {
	payload, _ := ir.PayloadFor(kind)
	if kind == ir.KindAction {
		payload = ir.Action{ExecutionKind: ir.ExecutionLocal}
	}
	n := ir.Node{
		Key:        key,
		Identifier: ir.Identifier{Label: key},
		Start:      base.Add(time.Duration(startUS) * time.Microsecond),
		Payload:    payload,
	}
	if endUS >= 0 {
		n.End = base.Add(time.Duration(endUS) * time.Microsecond)
	}
	return n
}

func record(t *testing.T, b *Builder, n ir.Node) NodeIndex {
	t.Helper()
	i, err := b.RecordNode(n)
	require.NoError(t, err)
	return i
}

func TestBuilder_StableIndices(t *testing.T) {
	b := NewBuilder()
	a := record(t, b, node("a", ir.KindLoad, 0, -1))
	c := record(t, b, node("c", ir.KindAnalysis, 0, -1))

	again := record(t, b, node("a", ir.KindLoad, 0, 10))
	assert.Equal(t, a, again)
	assert.Equal(t, NodeIndex(0), a)
	assert.Equal(t, NodeIndex(1), c)
	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Node(a).Finished())
}

func TestBuilder_MergeKeepsIdentifier(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, -1))

	end := node("a", ir.KindLoad, 0, 10)
	end.Identifier = ir.Identifier{}
	i := record(t, b, end)
	assert.Equal(t, "a", b.Node(i).Identifier.Label)
}

func TestBuilder_RejectsConflicts(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, 10))

	_, err := b.RecordNode(node("a", ir.KindAnalysis, 0, 10))
	assert.ErrorContains(t, err, "recorded as load")

	_, err = b.RecordNode(node("a", ir.KindLoad, 0, 20))
	assert.ErrorContains(t, err, "already finalized")

	// Identical re-finalization and late start records are ignored.
	_, err = b.RecordNode(node("a", ir.KindLoad, 0, 10))
	assert.NoError(t, err)
	_, err = b.RecordNode(node("a", ir.KindLoad, 0, -1))
	assert.NoError(t, err)

	_, err = b.RecordNode(node("", ir.KindLoad, 0, 10))
	assert.Error(t, err)
}

func TestBuilder_RejectsBadEdges(t *testing.T) {
	b := NewBuilder()
	assert.Error(t, b.RecordEdge("", "b"))
	assert.Error(t, b.RecordEdge("a", "a"))
}

func TestBuilder_ForwardReferences(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.RecordEdge("a", "b"))
	require.NoError(t, b.RecordEdge("b", "c"))
	assert.Equal(t, 2, b.PendingEdges())

	record(t, b, node("c", ir.KindAction, 20, 30))
	assert.Equal(t, 2, b.PendingEdges(), "b is still unknown")

	record(t, b, node("b", ir.KindAnalysis, 10, 20))
	assert.Equal(t, 1, b.PendingEdges(), "b->c resolves, a->b waits for a")

	record(t, b, node("a", ir.KindLoad, 0, 10))
	assert.Equal(t, 0, b.PendingEdges())

	dag, err := b.Finalize()
	require.NoError(t, err)

	ai, _ := dag.Lookup("a")
	bi, _ := dag.Lookup("b")
	ci, _ := dag.Lookup("c")
	assert.True(t, dag.HasEdge(ai, bi))
	assert.True(t, dag.HasEdge(bi, ci))
	assert.False(t, dag.HasEdge(ai, ci))
	assert.Equal(t, []NodeIndex{ci}, dag.Sinks())
}

func TestBuilder_DuplicateEdges(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, 10))
	record(t, b, node("b", ir.KindAnalysis, 10, 20))
	require.NoError(t, b.RecordEdge("a", "b"))
	require.NoError(t, b.RecordEdge("a", "b"))

	dag, err := b.Finalize()
	require.NoError(t, err)
	assert.Len(t, dag.Successors(0), 1)
	assert.Len(t, dag.Journal(), 3)
}

func TestBuilder_Journal(t *testing.T) {
	var seen []Happening
	b := NewBuilder(ObserverFunc(func(v View, h Happening) {
		seen = append(seen, h)
		if h.Kind == NodeFinalized {
			assert.True(t, v.Node(h.Node).Finished())
		}
	}))

	require.NoError(t, b.RecordEdge("a", "b"))
	record(t, b, node("b", ir.KindAnalysis, 10, -1))
	record(t, b, node("a", ir.KindLoad, 0, 10))
	record(t, b, node("b", ir.KindAnalysis, 10, 20))

	// a arrives finalized: its pending edge resolves first, then it
	// finalizes.
	want := []Happening{
		{Kind: EdgeResolved, Node: NoNode, From: 1, To: 0},
		{Kind: NodeFinalized, Node: 1, From: NoNode, To: NoNode},
		{Kind: NodeFinalized, Node: 0, From: NoNode, To: NoNode},
	}
	assert.Equal(t, want, seen)

	dag, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, want, dag.Journal())
}

func TestBuilder_FinalizeIncomplete(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, 10))
	record(t, b, node("b", ir.KindAnalysis, 10, -1))
	require.NoError(t, b.RecordEdge("a", "b"))
	require.NoError(t, b.RecordEdge("b", "ghost"))

	_, err := b.Finalize()
	require.Error(t, err)
	assert.True(t, IsIncompleteGraphError(err))

	var ie *IncompleteGraphError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"b"}, ie.Unfinished)
	assert.Equal(t, []string{"ghost"}, ie.Dangling)
	assert.Contains(t, err.Error(), "unfinished")
}

func TestBuilder_FinalizeCycle(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindAnalysis, 0, 10))
	record(t, b, node("b", ir.KindAnalysis, 10, 20))
	record(t, b, node("c", ir.KindAnalysis, 20, 30))
	require.NoError(t, b.RecordEdge("a", "b"))
	require.NoError(t, b.RecordEdge("b", "c"))
	require.NoError(t, b.RecordEdge("c", "b"))

	_, err := b.Finalize()
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"b", "c"}, ce.Keys)
}

func TestBuilder_FinalizeIsASnapshotInTime(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, 10))

	dag, err := b.Finalize()
	require.NoError(t, err)

	record(t, b, node("b", ir.KindAnalysis, 10, 20))
	require.NoError(t, b.RecordEdge("a", "b"))

	assert.Equal(t, 1, dag.Len())
	assert.Empty(t, dag.Successors(0))
	assert.Len(t, dag.Journal(), 1)
}

func TestBuilder_Snapshot(t *testing.T) {
	b := NewBuilder()
	record(t, b, node("a", ir.KindLoad, 0, 10))
	record(t, b, node("running", ir.KindAnalysis, 10, -1))
	record(t, b, node("c", ir.KindAnalysis, 10, 25))
	require.NoError(t, b.RecordEdge("a", "running"))
	require.NoError(t, b.RecordEdge("a", "c"))
	require.NoError(t, b.RecordEdge("c", "ghost"))

	dag := b.Snapshot()
	require.Equal(t, 2, dag.Len())

	ai, ok := dag.Lookup("a")
	require.True(t, ok)
	ci, ok := dag.Lookup("c")
	require.True(t, ok)
	_, ok = dag.Lookup("running")
	assert.False(t, ok)

	assert.Equal(t, []NodeIndex{ci}, dag.Successors(ai))
	assert.Equal(t, []NodeIndex{ai}, dag.Predecessors(ci))
	assert.Equal(t, 15*time.Microsecond, dag.Weight(ci))

	for _, h := range dag.Journal() {
		if h.Kind == EdgeResolved {
			assert.Equal(t, Happening{Kind: EdgeResolved, Node: NoNode, From: ai, To: ci}, h)
		}
	}
}

func TestBuilder_FourStepChainAnyArrivalOrder(t *testing.T) {
	chain := testutil.FourStepChain()
	events := chain.Events()[1:]

	for seed := uint64(0); seed < 20; seed++ {
		shuffled := make([]ir.Event, len(events))
		copy(shuffled, events)
		rng := rand.New(rand.NewPCG(seed, seed))
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		b := NewBuilder()
		for _, ev := range shuffled {
			switch ev.Type {
			case ir.EventNode:
				n, err := ev.Node.ToNode()
				require.NoError(t, err)
				// A start record arriving after the end record is ignored.
				_, err = b.RecordNode(n)
				require.NoError(t, err)
			case ir.EventEdge:
				require.NoError(t, b.RecordEdge(ev.Edge.From, ev.Edge.To))
			}
		}

		dag, err := b.Finalize()
		require.NoError(t, err, "seed %d", seed)
		assert.Equal(t, len(chain.Nodes), dag.Len())

		var edges int
		for i := 0; i < dag.Len(); i++ {
			edges += len(dag.Successors(NodeIndex(i)))
		}
		assert.Equal(t, len(chain.Edges), edges)
	}
}
