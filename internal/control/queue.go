// SPDX-License-Identifier: MIT
package control

import (
	"sync/atomic"

	"fxengine/pkg/bitint"
)

// Queue is a bounded single-producer single-consumer ring. Push and Pop never
// block or allocate; exactly one goroutine may push and exactly one may pop.
type Queue[T any] struct {
	buf  []T
	mask uint64

	head atomic.Uint64 // next slot to read, written by the consumer
	_    [56]byte
	tail atomic.Uint64 // next slot to write, written by the producer
}

// NewQueue returns a queue holding at least capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	size := bitint.NextPowerOfTwo(max(capacity, 2))
	return &Queue[T]{
		buf:  make([]T, size),
		mask: uint64(bitint.Mask(size)),
	}
}

// Push appends v, returning false if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	t := q.tail.Load()
	if t-q.head.Load() == uint64(len(q.buf)) {
		return false
	}
	q.buf[t&q.mask] = v
	q.tail.Store(t + 1)
	return true
}

// Pop removes the oldest item, returning false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	h := q.head.Load()
	if h == q.tail.Load() {
		return zero, false
	}
	v := q.buf[h&q.mask]
	q.buf[h&q.mask] = zero
	q.head.Store(h + 1)
	return v, true
}

// Len returns the number of queued items. It is exact only when called from
// the producer or consumer while the other side is idle.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Channel joins the control context to the real-time context: commands flow
// in, responses flow out. Responses are announced on a wake channel with a
// non-blocking send so the real-time side never waits.
type Channel struct {
	Commands  *Queue[Command]
	Responses *Queue[Response]
	wake      chan struct{}
}

// NewChannel allocates both queues with the given capacity.
func NewChannel(capacity int) *Channel {
	return &Channel{
		Commands:  NewQueue[Command](capacity),
		Responses: NewQueue[Response](capacity),
		wake:      make(chan struct{}, 1),
	}
}

// Notify signals that responses are waiting. Safe from the real-time context.
func (c *Channel) Notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled after Notify.
func (c *Channel) Wake() <-chan struct{} {
	return c.wake
}
