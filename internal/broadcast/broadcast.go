// Package broadcast implements the two delivery mechanisms used between the
// pollers and their consumers: a bounded multi-subscriber broadcast that
// drops the oldest unread value on overflow, and an unbounded FIFO queue.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer size used when a
// non-positive capacity is given.
const DefaultCapacity = 5

// ErrClosed is returned when receiving from a closed subscription or queue.
var ErrClosed = errors.New("broadcast: closed")

// DropFunc is called once for every value discarded because a subscriber
// fell behind.
type DropFunc func()

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	onDrop DropFunc
}

// WithDropHook registers fn to observe values dropped due to subscriber lag.
func WithDropHook(fn DropFunc) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// Broadcaster delivers every published value to every current subscriber.
//
// Each subscriber owns a buffer of fixed capacity. When a subscriber's
// buffer is full, its oldest unread value is discarded to make room, so a
// slow subscriber lags but never blocks the publisher or its peers. All
// subscribers observe values in publish order. Values published before a
// subscription was created are never delivered to it.
//
// Thread-safety: all methods may be called concurrently.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	capacity int
	subs     map[uint64]*Subscription[T]
	nextID   uint64
	closed   bool
	opts     options
}

// New creates a Broadcaster whose subscribers buffer up to capacity values.
func New[T any](capacity int, opts ...Option) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	b := &Broadcaster[T]{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription[T]),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

// Subscribe registers a new subscriber. Subscribing to a closed
// Broadcaster returns an already closed subscription.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		b:  b,
		id: b.nextID,
		ch: make(chan T, b.capacity),
	}
	b.nextID++

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subs[sub.id] = sub
	return sub
}

// Publish delivers v to every current subscriber and returns how many
// subscribers it reached. Having no subscribers is not an error.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	for _, sub := range b.subs {
		sub.deliver(v, b.opts.onDrop)
	}
	return len(b.subs)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Buffered values remain readable.
// Publishing after Close is a no-op.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Subscription is one subscriber's view of a Broadcaster.
type Subscription[T any] struct {
	b       *Broadcaster[T]
	id      uint64
	ch      chan T
	dropped atomic.Uint64
}

// deliver must be called with the broadcaster lock held, which makes this
// the only sender on ch.
func (s *Subscription[T]) deliver(v T, onDrop DropFunc) {
	select {
	case s.ch <- v:
		return
	default:
	}

	// Full: discard the oldest unread value. A concurrent reader may have
	// taken it already, in which case there is room anyway.
	select {
	case <-s.ch:
		s.dropped.Add(1)
		if onDrop != nil {
			onDrop()
		}
	default:
	}

	select {
	case s.ch <- v:
	default:
	}
}

// C returns the channel values are delivered on. It is closed when the
// subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Recv waits for the next value. It returns ErrClosed once the
// subscription has ended and its buffer is drained, or ctx's error if ctx
// ends first.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Dropped returns how many values this subscriber lost to overflow.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe detaches the subscription and closes its channel. It is safe
// to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.b.remove(s.id)
}
