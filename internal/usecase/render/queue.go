package render

import "sync"

// queue is a thread-safe FIFO that never blocks the producer. With a
// positive capacity it drops the oldest items once full and counts them.
type queue[T any] struct {
	mu      sync.Mutex
	items   []T
	max     int
	pushed  int64 // total items ever pushed (including dropped)
	dropped int64
}

func newQueue[T any](capacity int) *queue[T] {
	return &queue[T]{max: capacity}
}

// Push appends v. Thread-safe.
func (q *queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, v)
	q.pushed++
	if q.max > 0 && len(q.items) > q.max {
		over := len(q.items) - q.max
		q.dropped += int64(over)
		q.items = append(q.items[:0:0], q.items[over:]...)
	}
}

// Drain removes and returns every queued item in production order.
func (q *queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pushed returns the number of items ever pushed.
func (q *queue[T]) Pushed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// Dropped returns the number of items discarded because the queue was full.
func (q *queue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
