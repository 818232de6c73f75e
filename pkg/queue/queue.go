package queue

import "context"

// Queue is a FIFO of items consumed by a single reader.
type Queue[T any] interface {
	// Enqueue adds an item to the end of the queue, blocking while the queue is full.
	Enqueue(ctx context.Context, item T) error
	// Chan returns the receive side of the queue for use in select loops.
	Chan() <-chan T
	Size() int
}
