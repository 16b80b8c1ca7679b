package engine

import (
	"context"
	"fmt"

	"github.com/roach88/critpath/internal/ir"
)

// Replay recomputes a logged build's critical path from its events.
//
// # Replay and Determinism
//
// Replay is not a special mode. The events go through the same queue and
// the same Run loop as a live build, in the seq order they were logged, so
// the graph builder sees the exact observation order of the original run.
// The journal, and therefore the incremental backend's result, is
// identical to the live one.
//
// Replaying with a different backend (WithBackend) is how the two
// backends are compared on one recorded build. Replay never writes: an
// EventLog passed in opts is ignored.
func Replay(ctx context.Context, events []ir.Event, opts ...EngineOption) (*Result, error) {
	opts = append(opts, WithEventLog(nil))
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	for i, ev := range events {
		if err := e.Record(ctx, ev); err != nil {
			return nil, fmt.Errorf("replay event %d: %w", i+1, err)
		}
	}

	res, err := e.Finish(ctx)
	if rerr := <-runErr; rerr != nil && err == nil {
		return nil, fmt.Errorf("replay: %w", rerr)
	}
	return res, err
}
