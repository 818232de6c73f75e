// queue package

package queue

import (
	"context"
)

const (
	// QueueBufferSize represents the default capacity of a queue
	QueueBufferSize = 1024
)

// InMemoryQueue implements an in-memory queue backed by a buffered channel.
type InMemoryQueue[T any] struct {
	ch chan T
}

// NewInMemoryQueue creates a new queue. A size of zero or less uses QueueBufferSize.
func NewInMemoryQueue[T any](size int) *InMemoryQueue[T] {
	if size <= 0 {
		size = QueueBufferSize
	}
	return &InMemoryQueue[T]{
		ch: make(chan T, size),
	}
}

// Enqueue adds an item to the end of the queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chan returns the channel items are delivered on.
func (q *InMemoryQueue[T]) Chan() <-chan T {
	return q.ch
}

// Size returns the current size of the queue.
func (q *InMemoryQueue[T]) Size() int {
	return len(q.ch)
}

// Drain removes and returns all pending items without blocking.
func (q *InMemoryQueue[T]) Drain() []T {
	var items []T
	for {
		select {
		case item := <-q.ch:
			items = append(items, item)
		default:
			return items
		}
	}
}
