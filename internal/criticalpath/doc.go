// Package criticalpath finds the critical path of a build DAG and estimates
// how much each step on it costs the build.
//
// A critical path is a longest chain of causally dependent steps ending at
// the build's target, where a chain's length is the sum of its nodes' own
// durations. Two backends compute it:
//
//   - default: an incremental relaxation driven by the graph journal. It
//     can run live while the build is still in progress, relaxes each edge
//     exactly once in observation order and never revisits a node once it
//     is final. Its result is exact when every node's end record arrives
//     after the end records of all its predecessors; under any other
//     completion order it is an approximation and concurrent producers
//     without that order can yield different paths from run to run.
//   - longest-path-graph: an exact dynamic program over a topological order
//     of the finalized DAG.
//
// Both backends break ties deterministically but differently: the
// incremental backend prefers the predecessor that ended later, the batch
// backend the predecessor with the smallest identifier. On graphs where
// analyses do not overlap they agree on every action and materialization.
package criticalpath
