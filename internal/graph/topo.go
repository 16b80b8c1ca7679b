package graph

import (
	"container/heap"
	"slices"
)

// TopologicalOrder returns every node such that each edge's source precedes
// its destination.
//
// Kahn's algorithm with the ready set kept in Compare order, so the result
// depends only on the graph and never on map iteration or arrival order.
// Returns *CycleError if some nodes can never become ready.
func (d *DAG) TopologicalOrder() ([]NodeIndex, error) {
	indegree := make([]int, len(d.nodes))
	for i := range d.nodes {
		indegree[i] = len(d.preds[i])
	}

	ready := &readySet{less: func(a, b NodeIndex) bool { return d.Compare(a, b) < 0 }}
	for i, deg := range indegree {
		if deg == 0 {
			ready.items = append(ready.items, NodeIndex(i))
		}
	}
	heap.Init(ready)

	order := make([]NodeIndex, 0, len(d.nodes))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(NodeIndex)
		order = append(order, u)
		for _, v := range d.succs[u] {
			indegree[v]--
			if indegree[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	if len(order) != len(d.nodes) {
		var stuck []string
		for i, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, d.nodes[i].Key)
			}
		}
		slices.Sort(stuck)
		return nil, &CycleError{Keys: stuck}
	}
	return order, nil
}

// readySet is a min-heap of node indices.
type readySet struct {
	items []NodeIndex
	less  func(a, b NodeIndex) bool
}

func (r *readySet) Len() int           { return len(r.items) }
func (r *readySet) Less(i, j int) bool { return r.less(r.items[i], r.items[j]) }
func (r *readySet) Swap(i, j int)      { r.items[i], r.items[j] = r.items[j], r.items[i] }
func (r *readySet) Push(x any)         { r.items = append(r.items, x.(NodeIndex)) }

func (r *readySet) Pop() any {
	n := len(r.items)
	x := r.items[n-1]
	r.items = r.items[:n-1]
	return x
}
