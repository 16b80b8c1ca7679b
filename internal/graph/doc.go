// Package graph assembles the build DAG from a stream of node and edge
// observations.
//
// ARCHITECTURE:
//
// Arena Storage:
// Nodes live in a slice and are addressed by NodeIndex, which never changes
// once assigned. Adjacency lists store indices, not keys.
//
// Forward References:
// An edge may be observed before either of its endpoints. Such edges are
// buffered under the first missing key and resolved when that node arrives.
//
// Journal:
// The Builder records every node finalization and every edge resolution in
// observation order. Observers receive the same Happenings live, and the
// finalized DAG keeps the journal so the observation order can be replayed
// later.
//
// The Builder is not safe for concurrent use. It is owned by a single
// assembler goroutine (see package engine).
package graph
