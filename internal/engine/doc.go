// Package engine turns a build's event stream into its critical path.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Producers (one per event source) call RecordNode, RecordEdge or Record
// concurrently. Calls only enqueue onto a bounded queue; senders block
// while it is full. One Run goroutine dequeues events and is the only
// mutator of the graph builder and the incremental relaxation state.
//
// Event Processing Flow:
// 1. Event enqueued (blocks while the queue is full)
// 2. Run() dequeues and stamps it with the next seq from Clock
// 3. The event is validated and appended to the event log, if any
// 4. processEvent() applies it to the graph builder
// 5. Under the default backend, the builder notifies the live relaxation
//
// Snapshot queries travel through the same queue, so they see the state
// after every earlier event and never a half-applied one. Finish closes the
// queue, waits for Run to drain it and computes the final result outside the
// loop, once nothing mutates the graph any more.
//
// CRITICAL PATTERNS:
//
// Log and Continue:
// A rejected event is logged with full context and skipped. It never
// aborts the build's result.
//
// Logical Arrival Order:
// The event log orders by seq, the order the Run loop accepted events.
// Replaying the log feeds the builder in the same order, so the
// incremental backend reproduces the live result.
package engine
