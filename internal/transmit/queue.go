// Package transmit implements the sending half of the relay: a bounded
// hand-off queue fed by the capture callback and a sender loop that drains
// it to the receiver over TCP, reconnecting with a fixed backoff and a
// bounded retry budget.
package transmit

import (
	"context"
	"sync"
)

// Queue is the hand-off point between the real-time capture callback and the
// sender loop. It is a single-producer, single-consumer bounded FIFO of byte
// chunks.
//
// Push never blocks: when the queue is full the oldest chunk is dropped, so
// a stalled network can never back memory or latency up into the capture
// path. For a live stream, losing the oldest audio is the right trade —
// stale samples are worthless by the time the network recovers.
type Queue struct {
	mu      sync.Mutex
	ring    [][]byte
	head    int
	count   int
	dropped uint64
	closed  bool

	// signal wakes the consumer after a push. Capacity 1: coalesced wakeups
	// are fine because Pop re-checks the count.
	signal chan struct{}
}

// NewQueue creates a queue holding at most capacity chunks. Capacity must be
// at least 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ring:   make([][]byte, capacity),
		signal: make(chan struct{}, 1),
	}
}

// Push enqueues a chunk. If the queue is full, the oldest chunk is dropped
// to make room. Push never blocks and is safe to call from the capture
// callback. Pushes after Close are discarded.
func (q *Queue) Push(chunk []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.count == len(q.ring) {
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
		q.count--
		q.dropped++
	}
	q.ring[(q.head+q.count)%len(q.ring)] = chunk
	q.count++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop dequeues the oldest chunk, blocking until one is available, the queue
// is closed and drained, or ctx is cancelled. The second return value is
// false when no further chunks will arrive.
func (q *Queue) Pop(ctx context.Context) ([]byte, bool) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			chunk := q.ring[q.head]
			q.ring[q.head] = nil
			q.head = (q.head + 1) % len(q.ring)
			q.count--
			q.mu.Unlock()
			return chunk, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.signal:
		}
	}
}

// Close marks the queue as finished. The consumer drains remaining chunks
// and then sees the closed state. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many chunks have been discarded under backlog
// pressure since the queue was created.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
