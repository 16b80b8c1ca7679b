package criticalpath

import (
	"slices"
	"time"

	"github.com/roach88/critpath/internal/graph"
)

// weightFunc returns the duration a node contributes to a path.
type weightFunc func(graph.NodeIndex) time.Duration

// longest runs the longest-path dynamic program over a topological order.
//
// finish[v] is the longest path ending at v, v included:
//
//	finish[v] = max over predecessors u of finish[u], plus w(v)
//
// Equal candidates prefer the predecessor that sorts first by dag.Compare.
func longest(dag *graph.DAG, order []graph.NodeIndex, w weightFunc) (finish []time.Duration, pred []graph.NodeIndex) {
	finish = make([]time.Duration, dag.Len())
	pred = make([]graph.NodeIndex, dag.Len())
	for _, v := range order {
		best := graph.NoNode
		var in time.Duration
		for _, u := range dag.Predecessors(v) {
			switch {
			case best == graph.NoNode, finish[u] > in:
			case finish[u] == in && dag.Compare(u, best) < 0:
			default:
				continue
			}
			best, in = u, finish[u]
		}
		pred[v] = best
		finish[v] = in + w(v)
	}
	return finish, pred
}

type longestPathBackend struct{}

func (longestPathBackend) Kind() BackendKind { return BackendLongestPathGraph }

// Compute returns the exact longest path ending at target.
func (longestPathBackend) Compute(dag *graph.DAG, target graph.NodeIndex) (Path, error) {
	if target == graph.NoNode {
		return Path{}, nil
	}
	order, err := dag.TopologicalOrder()
	if err != nil {
		return Path{}, err
	}
	finish, pred := longest(dag, order, dag.Weight)

	var nodes []graph.NodeIndex
	for n := target; n != graph.NoNode; n = pred[n] {
		nodes = append(nodes, n)
	}
	slices.Reverse(nodes)
	return Path{Nodes: nodes, Length: finish[target]}, nil
}
