package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/critpath/internal/ir"
)

// Observer receives journal happenings as the Builder records them.
//
// Observe is called synchronously from RecordNode or RecordEdge, after the
// happening is applied. v reflects the graph at that moment.
type Observer interface {
	Observe(v View, h Happening)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(v View, h Happening)

// Observe calls f(v, h).
func (f ObserverFunc) Observe(v View, h Happening) { f(v, h) }

// Builder accumulates node and edge observations into a graph.
type Builder struct {
	nodes     []ir.Node
	index     map[string]NodeIndex
	preds     [][]NodeIndex
	succs     [][]NodeIndex
	edges     map[[2]NodeIndex]struct{}
	pending   map[string][]ir.EdgeRecord
	journal   []Happening
	observers []Observer
}

// NewBuilder creates an empty builder notifying the given observers.
func NewBuilder(observers ...Observer) *Builder {
	return &Builder{
		index:     make(map[string]NodeIndex),
		edges:     make(map[[2]NodeIndex]struct{}),
		pending:   make(map[string][]ir.EdgeRecord),
		observers: observers,
	}
}

// Len returns the number of recorded nodes, finished or not.
func (b *Builder) Len() int { return len(b.nodes) }

// Node returns the current state of the node at index i.
func (b *Builder) Node(i NodeIndex) ir.Node { return b.nodes[i] }

// Lookup returns the index of the node with the given key.
func (b *Builder) Lookup(key string) (NodeIndex, bool) {
	i, ok := b.index[key]
	return i, ok
}

// PendingEdges returns the number of edges waiting for an unknown endpoint.
func (b *Builder) PendingEdges() int {
	n := 0
	for _, edges := range b.pending {
		n += len(edges)
	}
	return n
}

// RecordNode records a node start or finalization.
//
// The first record for a key allocates its index. A later record for the
// same key replaces the node's fields until it is finalized; the identifier
// is kept when the later record leaves it empty. Once finalized, identical
// re-finalizations and late start records are ignored, and a conflicting
// finalization is an error.
func (b *Builder) RecordNode(n ir.Node) (NodeIndex, error) {
	if err := n.Validate(); err != nil {
		return NoNode, err
	}

	if i, ok := b.index[n.Key]; ok {
		return i, b.merge(i, n)
	}

	i := NodeIndex(len(b.nodes))
	b.nodes = append(b.nodes, n)
	b.preds = append(b.preds, nil)
	b.succs = append(b.succs, nil)
	b.index[n.Key] = i

	// Incoming and outgoing edges resolve before the node finalizes, so a
	// finalized arrival already sees its known dependencies.
	b.resolvePending(n.Key)

	if n.Finished() {
		b.emit(Happening{Kind: NodeFinalized, Node: i, From: NoNode, To: NoNode})
	}
	return i, nil
}

func (b *Builder) merge(i NodeIndex, n ir.Node) error {
	cur := b.nodes[i]
	if cur.Kind() != n.Kind() {
		return fmt.Errorf("node %q recorded as %s, now %s", n.Key, cur.Kind(), n.Kind())
	}

	if cur.Finished() {
		if !n.Finished() {
			return nil
		}
		if n.Start.Equal(cur.Start) && n.End.Equal(cur.End) {
			return nil
		}
		return fmt.Errorf("node %q already finalized", n.Key)
	}

	if n.Identifier == (ir.Identifier{}) {
		n.Identifier = cur.Identifier
	}
	b.nodes[i] = n
	if n.Finished() {
		b.emit(Happening{Kind: NodeFinalized, Node: i, From: NoNode, To: NoNode})
	}
	return nil
}

// RecordEdge records that from must complete before to may start. Either
// endpoint may still be unknown; the edge resolves once both are recorded.
// Duplicate edges are ignored.
func (b *Builder) RecordEdge(from, to string) error {
	if from == "" || to == "" {
		return fmt.Errorf("edge has empty endpoint (from=%q, to=%q)", from, to)
	}
	if from == to {
		return fmt.Errorf("self-edge on node %q", from)
	}
	b.place(ir.EdgeRecord{From: from, To: to})
	return nil
}

// place adds the edge if both endpoints are known, otherwise buffers it
// under the first missing key.
func (b *Builder) place(e ir.EdgeRecord) {
	fi, ok := b.index[e.From]
	if !ok {
		b.pending[e.From] = append(b.pending[e.From], e)
		return
	}
	ti, ok := b.index[e.To]
	if !ok {
		b.pending[e.To] = append(b.pending[e.To], e)
		return
	}
	b.addEdge(fi, ti)
}

func (b *Builder) resolvePending(key string) {
	edges, ok := b.pending[key]
	if !ok {
		return
	}
	delete(b.pending, key)
	for _, e := range edges {
		b.place(e)
	}
}

func (b *Builder) addEdge(from, to NodeIndex) {
	k := [2]NodeIndex{from, to}
	if _, dup := b.edges[k]; dup {
		return
	}
	b.edges[k] = struct{}{}
	b.succs[from] = append(b.succs[from], to)
	b.preds[to] = append(b.preds[to], from)
	b.emit(Happening{Kind: EdgeResolved, Node: NoNode, From: from, To: to})
}

func (b *Builder) emit(h Happening) {
	b.journal = append(b.journal, h)
	for _, o := range b.observers {
		o.Observe(b, h)
	}
}

// Finalize returns the completed DAG.
//
// Fails with *IncompleteGraphError while any recorded node is unfinished or
// any edge references a node that was never recorded, and with *CycleError
// if the edges do not form a DAG. The builder remains usable afterwards.
func (b *Builder) Finalize() (*DAG, error) {
	var unfinished []string
	for _, n := range b.nodes {
		if !n.Finished() {
			unfinished = append(unfinished, n.Key)
		}
	}
	dangling := slices.Sorted(maps.Keys(b.pending))
	if len(unfinished) > 0 || len(dangling) > 0 {
		slices.Sort(unfinished)
		return nil, &IncompleteGraphError{Unfinished: unfinished, Dangling: dangling}
	}

	d := &DAG{
		nodes:   slices.Clone(b.nodes),
		index:   maps.Clone(b.index),
		preds:   cloneAdjacency(b.preds),
		succs:   cloneAdjacency(b.succs),
		journal: slices.Clone(b.journal),
	}
	if _, err := d.TopologicalOrder(); err != nil {
		return nil, err
	}
	return d, nil
}

// Snapshot returns a DAG of the finalized nodes and the edges between them,
// with a journal restricted to those nodes and edges. Unlike Finalize it
// never fails on unfinished work, and it does not check for cycles.
func (b *Builder) Snapshot() *DAG {
	remap := make([]NodeIndex, len(b.nodes))
	d := &DAG{index: make(map[string]NodeIndex)}
	for i, n := range b.nodes {
		if !n.Finished() {
			remap[i] = NoNode
			continue
		}
		j := NodeIndex(len(d.nodes))
		remap[i] = j
		d.nodes = append(d.nodes, n)
		d.index[n.Key] = j
	}
	d.preds = make([][]NodeIndex, len(d.nodes))
	d.succs = make([][]NodeIndex, len(d.nodes))

	for _, h := range b.journal {
		switch h.Kind {
		case NodeFinalized:
			d.journal = append(d.journal, Happening{Kind: NodeFinalized, Node: remap[h.Node], From: NoNode, To: NoNode})
		case EdgeResolved:
			from, to := remap[h.From], remap[h.To]
			if from == NoNode || to == NoNode {
				continue
			}
			d.succs[from] = append(d.succs[from], to)
			d.preds[to] = append(d.preds[to], from)
			d.journal = append(d.journal, Happening{Kind: EdgeResolved, Node: NoNode, From: from, To: to})
		}
	}
	return d
}

func cloneAdjacency(adj [][]NodeIndex) [][]NodeIndex {
	out := make([][]NodeIndex, len(adj))
	for i, a := range adj {
		out[i] = slices.Clone(a)
	}
	return out
}
