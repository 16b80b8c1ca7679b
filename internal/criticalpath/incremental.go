package criticalpath

import (
	"slices"
	"time"

	"github.com/roach88/critpath/internal/graph"
)

// Incremental is the relaxation state of the default backend.
//
// It implements graph.Observer: attach it to a graph.Builder to relax the
// graph live, or feed it a DAG's journal to replay the build offline. Each
// resolved edge is relaxed exactly once, when its source finalizes or on
// arrival if the source is already final. A destination that is already
// final takes the new predecessor but its successors are not revisited, so
// PathLen of a successor can trail the chain its predecessor links now
// describe. Path reports the length of the chain it walks.
//
// Incremental is not safe for concurrent use.
type Incremental struct {
	bestIn  []time.Duration
	pathLen []time.Duration
	pred    []graph.NodeIndex
	final   []bool
	succs   [][]graph.NodeIndex
	relaxed int
}

var _ graph.Observer = (*Incremental)(nil)

// NewIncremental creates empty relaxation state.
func NewIncremental() *Incremental {
	return &Incremental{}
}

// Replay runs every happening of the DAG's journal through a fresh state.
func Replay(dag *graph.DAG) *Incremental {
	s := NewIncremental()
	for _, h := range dag.Journal() {
		s.Observe(dag, h)
	}
	return s
}

// Observe applies one journal happening.
func (s *Incremental) Observe(v graph.View, h graph.Happening) {
	s.grow(v.Len())
	switch h.Kind {
	case graph.NodeFinalized:
		n := h.Node
		s.final[n] = true
		s.pathLen[n] = s.bestIn[n] + v.Node(n).TotalDuration()
		for _, succ := range s.succs[n] {
			s.relax(v, n, succ)
		}
	case graph.EdgeResolved:
		s.succs[h.From] = append(s.succs[h.From], h.To)
		if s.final[h.From] {
			s.relax(v, h.From, h.To)
		}
	}
}

func (s *Incremental) relax(v graph.View, from, to graph.NodeIndex) {
	s.relaxed++
	cand := s.pathLen[from]
	cur := s.pred[to]
	switch {
	case cur == graph.NoNode, cand > s.bestIn[to]:
	case cand == s.bestIn[to] && v.Node(from).End.After(v.Node(cur).End):
	default:
		return
	}
	s.bestIn[to] = cand
	s.pred[to] = from
	if s.final[to] {
		s.pathLen[to] = cand + v.Node(to).TotalDuration()
	}
}

func (s *Incremental) grow(n int) {
	for len(s.pred) < n {
		s.bestIn = append(s.bestIn, 0)
		s.pathLen = append(s.pathLen, 0)
		s.pred = append(s.pred, graph.NoNode)
		s.final = append(s.final, false)
		s.succs = append(s.succs, nil)
	}
}

// Relaxations returns the number of edge relaxations performed so far.
func (s *Incremental) Relaxations() int { return s.relaxed }

// PathLen returns the current path length ending at n, or 0 if n is not
// final.
func (s *Incremental) PathLen(n graph.NodeIndex) time.Duration {
	if int(n) >= len(s.final) || !s.final[n] {
		return 0
	}
	return s.pathLen[n]
}

// Predecessor returns the chosen predecessor of n, or graph.NoNode.
func (s *Incremental) Predecessor(n graph.NodeIndex) graph.NodeIndex {
	if int(n) >= len(s.pred) {
		return graph.NoNode
	}
	return s.pred[n]
}

// Path walks predecessor links back from target and sums the durations of
// the walked nodes, read from v. An unfinished or unknown target yields an
// empty path.
func (s *Incremental) Path(v graph.View, target graph.NodeIndex) Path {
	if target == graph.NoNode || int(target) >= len(s.final) || !s.final[target] {
		return Path{}
	}
	var nodes []graph.NodeIndex
	var length time.Duration
	seen := make(map[graph.NodeIndex]bool)
	for n := target; n != graph.NoNode && !seen[n]; n = s.pred[n] {
		seen[n] = true
		nodes = append(nodes, n)
		length += v.Node(n).TotalDuration()
	}
	slices.Reverse(nodes)
	return Path{Nodes: nodes, Length: length}
}

type incrementalBackend struct{}

func (incrementalBackend) Kind() BackendKind { return BackendDefault }

// Compute replays the DAG's journal.
func (incrementalBackend) Compute(dag *graph.DAG, target graph.NodeIndex) (Path, error) {
	if target == graph.NoNode {
		return Path{}, nil
	}
	return Replay(dag).Path(dag, target), nil
}
