package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/ir"
)

func edgeMsg(from, to string) message {
	return message{event: ir.EdgeEvent(from, to)}
}

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue(4)

	require.NoError(t, q.Enqueue(context.Background(), edgeMsg("a", "b")))

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, ir.EventEdge, got.event.Type)
	assert.Equal(t, "a", got.event.Edge.From)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue(4)
	ctx := context.Background()

	for _, from := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(ctx, edgeMsg(from, "z")))
	}

	for _, want := range []string{"A", "B", "C"} {
		m, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, m.event.Edge.From)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue(4)

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultQueueSize, newEventQueue(0).Cap())
	assert.Equal(t, 7, newEventQueue(7).Cap())
}

func TestEventQueue_Enqueue_BlocksWhenFull(t *testing.T) {
	q := newEventQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), edgeMsg("a", "b")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, edgeMsg("c", "d"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_Enqueue_UnblocksWhenDrained(t *testing.T) {
	q := newEventQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), edgeMsg("a", "b")))

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), edgeMsg("c", "d"))
	}()

	// Give goroutine time to block
	time.Sleep(10 * time.Millisecond)

	_, ok := q.TryDequeue()
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock")
	}
}

func TestEventQueue_Enqueue_AfterClose(t *testing.T) {
	q := newEventQueue(4)
	q.Close()
	q.Close() // idempotent

	err := q.Enqueue(context.Background(), edgeMsg("a", "b"))
	assert.ErrorIs(t, err, ErrStopped)

	select {
	case <-q.Closing():
	default:
		t.Fatal("closing channel should be closed")
	}
}

func TestEventQueue_MarkStopped_ReleasesSenders(t *testing.T) {
	q := newEventQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), edgeMsg("a", "b")))

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), edgeMsg("c", "d"))
	}()

	time.Sleep(10 * time.Millisecond)
	q.markStopped()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("sender was not released")
	}
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue(8)

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				from := fmt.Sprintf("p%d-%d", producerID, i)
				assert.NoError(t, q.Enqueue(context.Background(), edgeMsg(from, "sink")))
			}
		}(p)
	}

	received := make(map[string]bool)
	deadline := time.After(5 * time.Second)
	for len(received) < producers*eventsPerProducer {
		select {
		case m := <-q.Messages():
			received[m.event.Edge.From] = true
		case <-deadline:
			t.Fatalf("consumer timeout: received %d events", len(received))
		}
	}
	wg.Wait()

	assert.Len(t, received, producers*eventsPerProducer)
}
