package graph

import (
	"cmp"
	"time"

	"github.com/roach88/critpath/internal/ir"
)

// NodeIndex is the stable arena position of a node.
type NodeIndex int

// NoNode marks the absence of a node, e.g. a path root's predecessor.
const NoNode NodeIndex = -1

// HappeningKind distinguishes journal records.
type HappeningKind int

const (
	// NodeFinalized records that a node received its end timestamp.
	NodeFinalized HappeningKind = iota + 1
	// EdgeResolved records that an edge gained both endpoints.
	EdgeResolved
)

func (k HappeningKind) String() string {
	switch k {
	case NodeFinalized:
		return "node-finalized"
	case EdgeResolved:
		return "edge-resolved"
	default:
		return "unknown"
	}
}

// Happening is one journal record. Node is set for NodeFinalized; From and
// To are set for EdgeResolved.
type Happening struct {
	Kind HappeningKind
	Node NodeIndex
	From NodeIndex
	To   NodeIndex
}

// View is read access to a graph under construction or a finalized DAG.
type View interface {
	Len() int
	Node(i NodeIndex) ir.Node
}

// DAG is an immutable directed acyclic graph of finalized build nodes.
type DAG struct {
	nodes   []ir.Node
	index   map[string]NodeIndex
	preds   [][]NodeIndex
	succs   [][]NodeIndex
	journal []Happening
}

// Len returns the number of nodes.
func (d *DAG) Len() int { return len(d.nodes) }

// Node returns the node at index i.
func (d *DAG) Node(i NodeIndex) ir.Node { return d.nodes[i] }

// Lookup returns the index of the node with the given key.
func (d *DAG) Lookup(key string) (NodeIndex, bool) {
	i, ok := d.index[key]
	return i, ok
}

// Predecessors returns the direct dependencies of i in resolution order.
// The returned slice must not be modified.
func (d *DAG) Predecessors(i NodeIndex) []NodeIndex { return d.preds[i] }

// Successors returns the direct dependents of i in resolution order.
// The returned slice must not be modified.
func (d *DAG) Successors(i NodeIndex) []NodeIndex { return d.succs[i] }

// HasEdge reports whether from -> to is an edge.
func (d *DAG) HasEdge(from, to NodeIndex) bool {
	for _, s := range d.succs[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Weight is the node's own duration, end - start.
func (d *DAG) Weight(i NodeIndex) time.Duration {
	return d.nodes[i].TotalDuration()
}

// Journal returns the observation-ordered happenings that built the DAG.
// The returned slice must not be modified.
func (d *DAG) Journal() []Happening { return d.journal }

// Sinks returns the nodes without successors, in index order.
func (d *DAG) Sinks() []NodeIndex {
	var sinks []NodeIndex
	for i := range d.nodes {
		if len(d.succs[i]) == 0 {
			sinks = append(sinks, NodeIndex(i))
		}
	}
	return sinks
}

// Compare orders nodes by identifier string, then key. It is the
// lexicographic order used for reproducible tie-breaks.
func (d *DAG) Compare(a, b NodeIndex) int {
	na, nb := d.nodes[a], d.nodes[b]
	if c := cmp.Compare(na.Identifier.String(), nb.Identifier.String()); c != 0 {
		return c
	}
	return cmp.Compare(na.Key, nb.Key)
}
