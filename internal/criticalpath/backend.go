package criticalpath

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/critpath/internal/graph"
	"github.com/roach88/critpath/internal/ir"
)

// BackendKind selects the critical path algorithm.
type BackendKind string

const (
	// BackendDefault is the incremental, journal-driven backend.
	BackendDefault BackendKind = "default"
	// BackendLongestPathGraph is the exact topological-order backend.
	BackendLongestPathGraph BackendKind = "longest-path-graph"
)

// Backends lists every known backend in presentation order.
var Backends = []BackendKind{BackendDefault, BackendLongestPathGraph}

// ErrUnknownBackend is returned for backend names that are not in Backends.
var ErrUnknownBackend = errors.New("unknown critical path backend")

// ErrNoCriticalPath is returned when no path can be computed, e.g. a batch
// backend asked for a result before the build completed.
var ErrNoCriticalPath = errors.New("no critical path")

// ParseBackend parses a backend name. The empty string selects
// BackendDefault.
func ParseBackend(s string) (BackendKind, error) {
	if s == "" {
		return BackendDefault, nil
	}
	k := BackendKind(strings.TrimSpace(s))
	if slices.Contains(Backends, k) {
		return k, nil
	}
	return "", fmt.Errorf("%w %q (valid: %s)", ErrUnknownBackend, s, backendList())
}

func backendList() string {
	names := make([]string, len(Backends))
	for i, b := range Backends {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

// Path is a critical path: nodes ordered from the root to the target.
type Path struct {
	Nodes []graph.NodeIndex
	// Length is the sum of the own durations of Nodes.
	Length time.Duration
}

// Empty reports whether the path has no nodes.
func (p Path) Empty() bool { return len(p.Nodes) == 0 }

// Backend computes the critical path ending at target.
type Backend interface {
	Kind() BackendKind
	Compute(dag *graph.DAG, target graph.NodeIndex) (Path, error)
}

// New returns the backend for kind.
func New(kind BackendKind) (Backend, error) {
	switch kind {
	case BackendDefault, "":
		return incrementalBackend{}, nil
	case BackendLongestPathGraph:
		return longestPathBackend{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, kind)
	}
}

// SelectTarget picks the node the critical path ends at.
//
// With a non-empty label, the materialization of that label with the latest
// end is chosen. Otherwise, or if the label has no materialization, the
// sink with the latest end is chosen. Ties go to the smallest identifier.
// Returns false if the DAG is empty.
func SelectTarget(dag *graph.DAG, label string) (graph.NodeIndex, bool) {
	if dag.Len() == 0 {
		return graph.NoNode, false
	}

	if label != "" {
		var mats []graph.NodeIndex
		for i := 0; i < dag.Len(); i++ {
			n := dag.Node(graph.NodeIndex(i))
			if n.Kind() == ir.KindMaterialization && n.Identifier.Label == label {
				mats = append(mats, graph.NodeIndex(i))
			}
		}
		if len(mats) > 0 {
			return latest(dag, mats), true
		}
	}

	candidates := dag.Sinks()
	if len(candidates) == 0 {
		// Only possible for a cyclic snapshot.
		for i := 0; i < dag.Len(); i++ {
			candidates = append(candidates, graph.NodeIndex(i))
		}
	}
	return latest(dag, candidates), true
}

func latest(dag *graph.DAG, nodes []graph.NodeIndex) graph.NodeIndex {
	best := nodes[0]
	for _, n := range nodes[1:] {
		end, bestEnd := dag.Node(n).End, dag.Node(best).End
		if end.After(bestEnd) || (end.Equal(bestEnd) && dag.Compare(n, best) < 0) {
			best = n
		}
	}
	return best
}
