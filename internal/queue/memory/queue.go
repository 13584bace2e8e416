// Package memory provides a bounded in-process task queue backed by a
// buffered channel.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/userpulse/insight-miner/internal/miner"
)

// ErrQueueClosed is returned once the queue is shut down.
var ErrQueueClosed = errors.New("queue closed")

// ErrQueueFull is returned when Enqueue would block on a full buffer.
var ErrQueueFull = errors.New("queue full")

// Queue is a fixed-depth FIFO of mining tasks.
type Queue struct {
	tasks chan miner.Task

	mu     sync.Mutex
	closed bool
}

// New builds a Queue with the given depth.
func New(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{tasks: make(chan miner.Task, depth)}
}

// Enqueue adds a task without blocking. A full queue is an error so the
// caller can surface backpressure instead of hanging the submit path.
func (q *Queue) Enqueue(ctx context.Context, task miner.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a task is available, the context is canceled, or the
// queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (miner.Task, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return miner.Task{}, ErrQueueClosed
		}
		return task, nil
	case <-ctx.Done():
		return miner.Task{}, ctx.Err()
	}
}

// Close stops accepting tasks. Queued tasks remain dequeueable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}
