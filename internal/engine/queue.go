package engine

import (
	"context"
	"sync"

	"github.com/roach88/critpath/internal/ir"
)

// DefaultQueueSize is the default capacity of the event queue.
const DefaultQueueSize = 1024

// message is one unit of work for the Run loop: a wire event, or a
// snapshot query when reply is set.
type message struct {
	event ir.Event
	reply chan<- snapshotReply
}

type snapshotReply struct {
	result *Result
	err    error
}

// eventQueue is a bounded, thread-safe FIFO between producers and the
// Run loop.
//
// Senders block while the queue is full and honour their context. Close
// stops new sends; messages already accepted are still delivered. Once the
// consumer exits, blocked senders are released with ErrStopped.
type eventQueue struct {
	mu      sync.RWMutex // held shared by senders, exclusively by Close
	closed  bool
	ch      chan message
	closing chan struct{} // closed by Close
	stopped chan struct{} // closed when the consumer exits
	stop    sync.Once
}

// newEventQueue creates an empty queue holding at most size messages.
func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &eventQueue{
		ch:      make(chan message, size),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Enqueue adds a message to the back of the queue, blocking while it is full.
// Thread-safe: may be called from any goroutine.
func (q *eventQueue) Enqueue(ctx context.Context, m message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrStopped
	}
	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		return ErrStopped
	}
}

// TryDequeue attempts to dequeue without blocking.
// Returns (message{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return message{}, false
	}
}

// Messages returns the receive side of the queue.
func (q *eventQueue) Messages() <-chan message {
	return q.ch
}

// Closing returns a channel that is closed once Close has been called.
// After it fires no further messages can be accepted, so draining with
// TryDequeue empties the queue for good.
func (q *eventQueue) Closing() <-chan struct{} {
	return q.closing
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *eventQueue) Cap() int {
	return cap(q.ch)
}

// Close signals that no more messages will be enqueued. It waits for
// in-flight sends to complete or give up.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.closing)
}

// markStopped releases blocked senders after the consumer has exited.
func (q *eventQueue) markStopped() {
	q.stop.Do(func() { close(q.stopped) })
}
