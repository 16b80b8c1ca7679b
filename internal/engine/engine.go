package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/roach88/critpath/internal/criticalpath"
	"github.com/roach88/critpath/internal/graph"
	"github.com/roach88/critpath/internal/ir"
)

// EventLog receives every accepted event in arrival order.
// Implemented by *store.Store.
type EventLog interface {
	AppendEvent(ctx context.Context, buildID string, seq int64, ev ir.Event) error
}

// Result is a computed critical path with its context.
type Result struct {
	BuildID string
	// Build is the invocation metadata seen in build_start events.
	Build   ir.BuildStart
	Backend criticalpath.BackendKind
	// Target is the key of the node the path ends at, empty for an empty
	// graph.
	Target string
	// Entries are ordered root first; the last entry is the
	// ComputeCriticalPath sentinel. Empty for an empty graph.
	Entries []ir.Entry
	// Total is the summed duration of the critical path's nodes.
	Total time.Duration
	// Partial is set when the result covers only the finalized part of a
	// build that did not complete.
	Partial bool
	// Diagnostics are the non-fatal problems met while building the graph.
	Diagnostics []error
}

// Engine assembles one build's DAG from concurrently produced events and
// computes its critical path.
//
// CRITICAL: All graph mutations happen in the single-writer Run loop
// goroutine. Producers use RecordNode, RecordEdge, StartBuild or Record,
// which only enqueue.
//
// Thread-safety model:
//   - Record*/StartBuild/Snapshot: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Finish(): call once producers are done; it stops the loop
type Engine struct {
	buildID string
	build   ir.BuildStart
	target  string

	backend criticalpath.BackendKind
	impl    criticalpath.Backend

	queue     *eventQueue
	queueSize int
	clock     *Clock
	builder   *graph.Builder
	live      *criticalpath.Incremental // nil unless backend is default

	log     EventLog
	now     func() time.Time
	metrics *Metrics
	idGen   IDGenerator

	diagnostics []error
	reported    map[string]bool // keys with a reported missing execution kind
	logFailures int

	started   atomic.Bool
	cancelled bool // written by Run before done is closed
	done      chan struct{}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithBackend selects the critical path backend. Default: BackendDefault.
func WithBackend(kind criticalpath.BackendKind) EngineOption {
	return func(e *Engine) {
		e.backend = kind
	}
}

// WithTarget sets the label whose materialization ends the critical path.
// It takes precedence over the target named by a build_start event.
func WithTarget(label string) EngineOption {
	return func(e *Engine) {
		e.target = label
	}
}

// WithQueueSize sets the capacity of the event queue.
//
// Default: 1024 (DefaultQueueSize)
func WithQueueSize(n int) EngineOption {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// WithEventLog appends every accepted event to log. The caller owns log.
func WithEventLog(log EventLog) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithNow sets the wall clock used to measure computation cost.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator sets the generator for the build ID.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.idGen = g
	}
}

// WithBuildID fixes the build ID, e.g. to recompute a logged build.
func WithBuildID(id string) EngineOption {
	return func(e *Engine) {
		e.buildID = id
	}
}

// New creates an Engine for one build invocation.
//
// Returns an error if the backend is unknown.
func New(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		backend:   criticalpath.BackendDefault,
		queueSize: DefaultQueueSize,
		clock:     NewClock(),
		now:       time.Now,
		idGen:     UUIDv7Generator{},
		reported:  make(map[string]bool),
		done:      make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	impl, err := criticalpath.New(e.backend)
	if err != nil {
		return nil, err
	}
	e.impl = impl

	if e.buildID == "" {
		e.buildID = e.idGen.Generate()
	}
	e.build.BuildID = e.buildID
	e.queue = newEventQueue(e.queueSize)

	if e.backend == criticalpath.BackendDefault {
		e.live = criticalpath.NewIncremental()
		e.builder = graph.NewBuilder(e.live)
	} else {
		e.builder = graph.NewBuilder()
	}
	return e, nil
}

// BuildID returns the ID of the build this engine assembles.
func (e *Engine) BuildID() string {
	return e.buildID
}

// Backend returns the selected backend.
func (e *Engine) Backend() criticalpath.BackendKind {
	return e.backend
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Record submits a wire event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Blocks while the queue is full. Returns ctx.Err() if ctx is done first,
// or ErrStopped once the engine is finishing. Invalid events are accepted
// here and rejected (logged) by the Run loop.
func (e *Engine) Record(ctx context.Context, ev ir.Event) error {
	return e.queue.Enqueue(ctx, message{event: ev})
}

// StartBuild submits build metadata.
func (e *Engine) StartBuild(ctx context.Context, b ir.BuildStart) error {
	return e.Record(ctx, ir.BuildStartEvent(b))
}

// RecordNode submits a node start or finalization.
func (e *Engine) RecordNode(ctx context.Context, n ir.Node) error {
	return e.Record(ctx, ir.NodeEvent(n))
}

// RecordEdge submits a dependency from -> to.
func (e *Engine) RecordEdge(ctx context.Context, from, to string) error {
	return e.Record(ctx, ir.EdgeEvent(from, to))
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Finish() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On event processing failure, the error is logged with full
// event context and processing continues. A bad event never aborts the
// build's critical path.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: Run called more than once")
	}
	defer close(e.done)
	defer e.queue.markStopped()

	slog.Info("engine starting",
		"build_id", e.buildID,
		"backend", e.backend,
		"queue_size", e.queue.Cap(),
	)

	for {
		select {
		case <-ctx.Done():
			e.cancelled = true
			slog.Info("engine stopping: context cancelled", "build_id", e.buildID)
			return ctx.Err()

		case m := <-e.queue.Messages():
			e.handle(ctx, m)

		case <-e.queue.Closing():
			// No new messages can arrive; drain what was accepted.
			for {
				m, ok := e.queue.TryDequeue()
				if !ok {
					break
				}
				e.handle(ctx, m)
			}
			slog.Info("engine stopping: queue closed", "build_id", e.buildID)
			return nil
		}
	}
}

// handle processes one message.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) handle(ctx context.Context, m message) {
	if m.reply != nil {
		res, err := e.snapshot()
		m.reply <- snapshotReply{result: res, err: err}
		return
	}

	seq := e.clock.Next()
	if err := e.processEvent(ctx, seq, m.event); err != nil {
		logEventError(seq, m.event, err)
		var re *RuntimeError
		if errors.As(err, &re) {
			e.metrics.observeError(re.Code)
		}
	}
	relaxed := 0
	if e.live != nil {
		relaxed = e.live.Relaxations()
	}
	e.metrics.observeGraph(e.builder.Len(), e.builder.PendingEdges(), e.queue.Len(), relaxed)
}

// processEvent validates, logs and applies one event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, seq int64, ev ir.Event) error {
	if err := ev.Validate(); err != nil {
		return &RuntimeError{Code: ErrCodeInvalidEvent, Message: "invalid event", Seq: seq, Err: err}
	}

	// A logging failure never changes the computation: the event is still
	// applied, and the first failure becomes a diagnostic.
	var logErr error
	if e.log != nil {
		if err := e.log.AppendEvent(ctx, e.buildID, seq, ev); err != nil {
			logErr = &RuntimeError{Code: ErrCodeEventLog, Message: "append event to log", Seq: seq, Err: err}
			if e.logFailures == 0 {
				e.diagnostics = append(e.diagnostics, logErr)
			}
			e.logFailures++
		}
	}
	e.metrics.observeEvent(ev.Type)

	if err := e.applyEvent(seq, ev); err != nil {
		return err
	}
	return logErr
}

// applyEvent updates the build metadata or the graph with one valid event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) applyEvent(seq int64, ev ir.Event) error {
	switch ev.Type {
	case ir.EventBuildStart:
		e.applyBuildStart(*ev.Build)
		return nil

	case ir.EventNode:
		n, err := ev.Node.ToNode()
		if err != nil {
			return &RuntimeError{Code: ErrCodeInvalidEvent, Message: "invalid node", Key: ev.Node.Key, Seq: seq, Err: err}
		}
		idx, err := e.builder.RecordNode(n)
		if err != nil {
			return &RuntimeError{Code: ErrCodeInvalidEvent, Message: "node rejected", Key: n.Key, Seq: seq, Err: err}
		}
		slog.Debug("node recorded", "key", n.Key, "kind", n.Kind(), "finished", n.Finished(), "seq", seq)
		e.checkExecutionKind(seq, e.builder.Node(idx))
		return nil

	case ir.EventEdge:
		if err := e.builder.RecordEdge(ev.Edge.From, ev.Edge.To); err != nil {
			return &RuntimeError{Code: ErrCodeInvalidEvent, Message: "edge rejected", Key: ev.Edge.To, Seq: seq, Err: err}
		}
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

func (e *Engine) applyBuildStart(b ir.BuildStart) {
	if b.BuildID != "" && b.BuildID != e.buildID {
		slog.Debug("build_start names a different build id", "build_id", e.buildID, "event_build_id", b.BuildID)
	}
	if b.Target != "" {
		e.build.Target = b.Target
		if e.target == "" {
			e.target = b.Target
		}
	}
	if b.Username != "" {
		e.build.Username = b.Username
	}
	if b.Client != "" {
		e.build.Client = b.Client
	}
	if b.Oncall != "" {
		e.build.Oncall = b.Oncall
	}
}

// checkExecutionKind records a diagnostic for a finalized action without an
// execution kind. The node stays in the graph.
func (e *Engine) checkExecutionKind(seq int64, n ir.Node) {
	err := n.CheckExecutionKind()
	if err == nil || e.reported[n.Key] {
		return
	}
	e.reported[n.Key] = true
	e.diagnostics = append(e.diagnostics, &RuntimeError{
		Code:    ErrCodeMissingExecutionKind,
		Message: "action finalized without execution kind",
		Key:     n.Key,
		Seq:     seq,
		Err:     err,
	})
	e.metrics.observeError(ErrCodeMissingExecutionKind)
	slog.Warn("action finalized without execution kind",
		"key", n.Key,
		"identifier", n.Identifier.String(),
		"seq", seq,
	)
}

// Snapshot returns the critical path of the build so far.
// Thread-safe: the query is answered by the Run loop between events, so it
// sees fully relaxed state.
//
// Under the default backend the result covers the finalized nodes and is
// marked Partial while work is outstanding. The batch backend needs a
// complete graph and fails with an INCOMPLETE_GRAPH RuntimeError until then.
func (e *Engine) Snapshot(ctx context.Context) (*Result, error) {
	reply := make(chan snapshotReply, 1)
	if err := e.queue.Enqueue(ctx, message{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		select {
		case r := <-reply:
			return r.result, r.err
		default:
			return nil, ErrStopped
		}
	}
}

// snapshot computes a result from the current graph.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) snapshot() (*Result, error) {
	if e.live == nil {
		dag, err := e.builder.Finalize()
		if err != nil {
			return nil, graphError(err)
		}
		return e.compute(dag, false)
	}
	dag := e.builder.Snapshot()
	partial := dag.Len() != e.builder.Len() || e.builder.PendingEdges() > 0
	return e.compute(dag, partial)
}

// Finish stops accepting events, waits for the Run loop to process the
// ones already accepted and computes the final critical path.
//
// If the build did not complete (Run was cancelled, or nodes never
// finished), the default backend returns a Partial result over the
// finalized nodes with the incomplete graph listed in Diagnostics. When no
// node finalized, or under the batch backend after cancellation, Finish
// fails with a NO_CRITICAL_PATH RuntimeError that wraps
// criticalpath.ErrNoCriticalPath. The batch backend fails with
// INCOMPLETE_GRAPH for a build that ended without finishing its nodes.
//
// Run must have been started; otherwise Finish blocks until ctx is done.
func (e *Engine) Finish(ctx context.Context) (*Result, error) {
	e.queue.Close()
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	dag, err := e.builder.Finalize()
	if err == nil {
		return e.compute(dag, false)
	}
	if !graph.IsIncompleteGraphError(err) {
		return nil, graphError(err)
	}

	incomplete := graphError(err)
	if e.live != nil {
		if snap := e.builder.Snapshot(); snap.Len() > 0 {
			res, cerr := e.compute(snap, true)
			if cerr != nil {
				return nil, cerr
			}
			res.Diagnostics = append(res.Diagnostics, incomplete)
			slog.Warn("returning partial critical path",
				"build_id", e.buildID,
				"finalized", snap.Len(),
				"recorded", e.builder.Len(),
				"cancelled", e.cancelled,
			)
			return res, nil
		}
	}
	if e.live != nil || e.cancelled {
		return nil, &RuntimeError{
			Code:    ErrCodeNoCriticalPath,
			Message: "build ended before a critical path was available",
			Err:     errors.Join(criticalpath.ErrNoCriticalPath, err),
		}
	}
	return nil, incomplete
}

// compute selects the target, computes the path with the configured backend
// and fills in improvements. The sentinel's duration is the wall-clock cost
// of both steps.
func (e *Engine) compute(dag *graph.DAG, partial bool) (*Result, error) {
	start := e.now()
	res := &Result{
		BuildID:     e.buildID,
		Build:       e.build,
		Backend:     e.backend,
		Entries:     []ir.Entry{},
		Partial:     partial,
		Diagnostics: slices.Clone(e.diagnostics),
	}

	target, ok := criticalpath.SelectTarget(dag, e.target)
	if !ok {
		slog.Info("no nodes finalized, critical path is empty", "build_id", e.buildID)
		return res, nil
	}

	path, err := e.path(dag, target)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeNoCriticalPath, Message: "compute critical path", Err: err}
	}
	est, err := criticalpath.NewEstimator(dag)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeNoCriticalPath, Message: "estimate improvements", Err: err}
	}

	res.Target = dag.Node(target).Key
	res.Total = path.Length
	res.Entries = est.Entries(path)

	cost := e.now().Sub(start)
	res.Entries = append(res.Entries, ir.SentinelEntry(cost))
	e.metrics.observeCompute(string(e.backend), cost)

	slog.Info("critical path computed",
		"build_id", e.buildID,
		"backend", e.backend,
		"target", res.Target,
		"entries", len(res.Entries),
		"length_us", ir.Micros(res.Total),
		"partial", partial,
	)
	return res, nil
}

// path returns the path to target in dag's index space. Under the default
// backend it reads the live relaxation state instead of replaying.
func (e *Engine) path(dag *graph.DAG, target graph.NodeIndex) (criticalpath.Path, error) {
	if e.live == nil {
		return e.impl.Compute(dag, target)
	}

	key := dag.Node(target).Key
	bi, ok := e.builder.Lookup(key)
	if !ok {
		return criticalpath.Path{}, fmt.Errorf("target %q not recorded", key)
	}
	live := e.live.Path(e.builder, bi)
	nodes := make([]graph.NodeIndex, 0, len(live.Nodes))
	for _, n := range live.Nodes {
		k := e.builder.Node(n).Key
		di, ok := dag.Lookup(k)
		if !ok {
			return criticalpath.Path{}, fmt.Errorf("path node %q not finalized", k)
		}
		nodes = append(nodes, di)
	}
	return criticalpath.Path{Nodes: nodes, Length: live.Length}, nil
}

// graphError maps graph construction errors to runtime errors.
func graphError(err error) *RuntimeError {
	if graph.IsIncompleteGraphError(err) {
		return &RuntimeError{Code: ErrCodeIncompleteGraph, Message: "graph is incomplete", Err: err}
	}
	return &RuntimeError{Code: ErrCodeNoCriticalPath, Message: "graph is not a DAG", Err: err}
}

// logEventError logs an event processing failure with full event context.
func logEventError(seq int64, ev ir.Event, err error) {
	switch ev.Type {
	case ir.EventNode:
		if ev.Node != nil {
			slog.Error("node processing failed",
				"error", err,
				"seq", seq,
				"key", ev.Node.Key,
				"kind", ev.Node.Kind,
				"label", ev.Node.Label,
			)
		} else {
			slog.Error("node processing failed",
				"error", err,
				"seq", seq,
				"note", "node data was nil",
			)
		}

	case ir.EventEdge:
		if ev.Edge != nil {
			slog.Error("edge processing failed",
				"error", err,
				"seq", seq,
				"from", ev.Edge.From,
				"to", ev.Edge.To,
			)
		} else {
			slog.Error("edge processing failed",
				"error", err,
				"seq", seq,
				"note", "edge data was nil",
			)
		}

	default:
		slog.Error("event processing failed",
			"error", err,
			"seq", seq,
			"event_type", ev.Type,
		)
	}
}
