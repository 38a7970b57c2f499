package buffer

import (
	"context"
	"sync"
)

// growAt is the fill ratio, in percent, at which the ring doubles.
const growAt = 70

// Queue is a goroutine-safe FIFO backed by a ring that doubles before it
// fills, so Push never blocks or drops.
type Queue[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int
	n      int
	closed bool

	// Signalled (non-blocking) whenever an item arrives or the queue closes.
	ready chan struct{}

	pushed  int64
	popped  int64
	resizes int
}

// Stats describes a queue.
type Stats struct {
	Len     int
	Cap     int
	Pushed  int64
	Popped  int64
	Resizes int
}

// New creates a queue with the given starting capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Queue[T]{
		ring:  make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends items. It returns false once the queue is closed.
func (q *Queue[T]) Push(items ...T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	for _, item := range items {
		if (q.n+1)*100 >= len(q.ring)*growAt {
			q.resize(len(q.ring) * 2)
		}
		q.ring[(q.head+q.n)%len(q.ring)] = item
		q.n++
		q.pushed++
	}
	q.mu.Unlock()

	q.signal()
	return true
}

// Drain removes up to max items (all when max <= 0) without blocking.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.n
	if max > 0 && max < k {
		k = max
	}
	if k == 0 {
		return nil
	}

	out := make([]T, k)
	var zero T
	for i := range out {
		out[i] = q.ring[q.head]
		q.ring[q.head] = zero
		q.head = (q.head + 1) % len(q.ring)
	}
	q.n -= k
	q.popped += int64(k)

	if q.n > 0 {
		q.signal()
	}
	return out
}

// Wait blocks until the queue has items, is closed, or ctx is done. It
// reports whether items may be available.
func (q *Queue[T]) Wait(ctx context.Context) bool {
	for {
		q.mu.Lock()
		n, closed := q.n, q.closed
		q.mu.Unlock()

		if n > 0 {
			return true
		}
		if closed {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-q.ready:
		}
	}
}

// Close stops accepting items. Items already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:     q.n,
		Cap:     len(q.ring),
		Pushed:  q.pushed,
		Popped:  q.popped,
		Resizes: q.resizes,
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// resize moves the live items to the front of a new ring. Lock must be held.
func (q *Queue[T]) resize(capacity int) {
	ring := make([]T, capacity)
	for i := 0; i < q.n; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
	q.resizes++
}
