package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New(4)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, miner.Task{JobID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if task.JobID != want {
			t.Fatalf("want %s got %s", want, task.JobID)
		}
	}
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, miner.Task{JobID: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, miner.Task{JobID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestCloseDrainsThenErrors(t *testing.T) {
	t.Parallel()

	q := New(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, miner.Task{JobID: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Close()

	if err := q.Enqueue(ctx, miner.Task{JobID: "b"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close: %v", err)
	}
	task, err := q.Dequeue(ctx)
	if err != nil || task.JobID != "a" {
		t.Fatalf("queued task must drain: %v %v", task, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("drained closed queue must error: %v", err)
	}
}
