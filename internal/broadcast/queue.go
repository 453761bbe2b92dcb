package broadcast

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO queue safe for any number of producers and
// consumers. Each value is received by exactly one consumer. Push never
// blocks; memory grows while nobody drains the queue.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
}

// NewQueue creates an empty Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
	}
}

// Push appends v. It returns ErrClosed if the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.signal()
	return nil
}

// Recv removes and returns the oldest value, waiting until one is
// available. After Close it keeps returning queued values and then
// ErrClosed.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok, err := q.pop(); ok || err != nil {
			return v, err
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryRecv removes and returns the oldest value without waiting.
func (q *Queue[T]) TryRecv() (T, bool) {
	v, ok, _ := q.pop()
	return v, ok
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new values and wakes every waiting consumer.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *Queue[T]) pop() (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		if q.closed {
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}

	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	// Pass the wakeup on so another waiting consumer sees the rest.
	if len(q.items) > 0 {
		q.signal()
	}
	return v, true, nil
}

// signal must be called with q.mu held.
func (q *Queue[T]) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
