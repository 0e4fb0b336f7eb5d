// Package queue carries change notifications from mutations to the
// evaluation worker.
//
// The queue is bounded and never blocks producers: a mutation that cannot
// be announced is still committed, and the periodic evaluation picks it up.
package queue

import (
	"context"
	"sync"

	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a change to the queue. It returns ErrFull or ErrClosed
	// when the change was not enqueued.
	Enqueue(ctx context.Context, c model.Change) error

	// Dequeue returns a channel that receives changes as they become
	// available. The channel is closed when the queue is closed or ctx ends.
	Dequeue(ctx context.Context) <-chan model.Change

	// Len returns the current number of queued changes.
	Len() int

	// Close stops accepting changes. Queued changes are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	changes  chan model.Change
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.changes = make(chan model.Change, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a change to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c model.Change) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.changes <- c:
		metrics.RecordQueueEnqueue()
		q.publishSize()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive changes as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Change {
	out := make(chan model.Change)
	go func() {
		defer close(out)
		for {
			select {
			case c, ok := <-q.changes:
				if !ok {
					return
				}
				select {
				case out <- c:
					metrics.RecordQueueDequeue()
					q.publishSize()
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued changes.
func (q *InMemoryQueue) Len() int {
	return len(q.changes)
}

// Capacity returns the maximum number of queued changes.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting changes.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.changes)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishSize() {
	size := len(q.changes)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
