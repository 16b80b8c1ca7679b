package criticalpath

import (
	"time"

	"github.com/roach88/critpath/internal/graph"
	"github.com/roach88/critpath/internal/ir"
)

// Estimator computes potential improvements against an exact longest-path
// baseline.
//
// The improvement of a node is how much the longest path to the target
// shrinks if that node took no time. It is found by re-running the DP with a
// shadow weight that zeroes the node; the DAG itself is never modified.
type Estimator struct {
	dag      *graph.DAG
	order    []graph.NodeIndex
	baseline []time.Duration
}

// NewEstimator prepares an estimator for dag. Fails with *graph.CycleError
// if dag is not acyclic.
func NewEstimator(dag *graph.DAG) (*Estimator, error) {
	order, err := dag.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	baseline, _ := longest(dag, order, dag.Weight)
	return &Estimator{dag: dag, order: order, baseline: baseline}, nil
}

// Longest returns the exact longest path length ending at target.
func (e *Estimator) Longest(target graph.NodeIndex) time.Duration {
	return e.baseline[target]
}

// Improvement returns the potential improvement of removing n from the path
// to target, clamped to [0, weight(n)].
func (e *Estimator) Improvement(target, n graph.NodeIndex) time.Duration {
	w := e.dag.Weight(n)
	if w == 0 {
		return 0
	}
	shadow := func(i graph.NodeIndex) time.Duration {
		if i == n {
			return 0
		}
		return e.dag.Weight(i)
	}
	without, _ := longest(e.dag, e.order, shadow)
	return clamp(e.baseline[target]-without[target], 0, w)
}

// Entries converts a path into result entries with potential improvements
// filled in. The result sentinel is not included.
func (e *Estimator) Entries(path Path) []ir.Entry {
	if path.Empty() {
		return []ir.Entry{}
	}
	target := path.Nodes[len(path.Nodes)-1]
	entries := make([]ir.Entry, len(path.Nodes))
	for i, n := range path.Nodes {
		entries[i] = ir.EntryFromNode(e.dag.Node(n))
		entries[i].PotentialImprovement = e.Improvement(target, n)
	}
	return entries
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}
