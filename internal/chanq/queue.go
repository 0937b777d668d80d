// Package chanq provides a typed, bounded queue for handing values between
// goroutines.
package chanq

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("chanq: queue closed")

// Queue is a bounded FIFO backed by a channel. Put blocks while the queue
// is full. Close is safe to call concurrently with Put and Get.
type Queue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding up to size values. size <= 0 means 1.
func New[T any](size int) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	return &Queue[T]{
		ch:   make(chan T, size),
		done: make(chan struct{}),
	}
}

// Put appends v, waiting for room. It fails when ctx ends or the queue is
// closed.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut appends v without waiting. It reports false when the queue is
// full or closed.
func (q *Queue[T]) TryPut(v T) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Get removes the oldest value, waiting until one is available. ok is
// false when ctx ends or the queue is closed and empty.
func (q *Queue[T]) Get(ctx context.Context) (v T, ok bool) {
	select {
	case v = <-q.ch:
		return v, true
	case <-q.done:
		return q.TryGet()
	case <-ctx.Done():
		return v, false
	}
}

// TryGet removes the oldest value without waiting.
func (q *Queue[T]) TryGet() (v T, ok bool) {
	select {
	case v = <-q.ch:
		return v, true
	default:
		return v, false
	}
}

// Drain discards every queued value and returns how many were dropped.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.TryGet(); !ok {
			return n
		}
		n++
	}
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Close stops further Puts. Values already queued can still be read.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Done is closed once the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// C exposes the receive side for use in select statements. It is never
// closed; pair it with Done.
func (q *Queue[T]) C() <-chan T { return q.ch }
