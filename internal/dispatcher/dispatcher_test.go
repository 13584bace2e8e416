package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
	queuemem "github.com/userpulse/insight-miner/internal/queue/memory"
	storemem "github.com/userpulse/insight-miner/internal/storage/memory"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type countingRunner struct {
	mu   sync.Mutex
	seen map[string]bool
	done chan struct{}
	want int
}

func (r *countingRunner) Run(_ context.Context, task miner.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[task.JobID] = true
	if len(r.seen) == r.want {
		close(r.done)
	}
	return nil
}

func TestDispatcherProcessesAllQueuedTasks(t *testing.T) {
	t.Parallel()

	store := storemem.NewJobStore(systemClock{})
	q := queuemem.New(8)
	runner := &countingRunner{seen: map[string]bool{}, done: make(chan struct{}), want: 4}

	d := New(q, store, runner, 3, nil)
	d.Start(context.Background())
	defer d.Stop()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		if err := store.Create(context.Background(), miner.Job{ID: id, Status: miner.JobStatusQueued}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if err := q.Enqueue(context.Background(), miner.Task{JobID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d of %d tasks ran", len(runner.seen), runner.want)
	}
}

func TestStopReturnsAfterWorkersDrain(t *testing.T) {
	t.Parallel()

	store := storemem.NewJobStore(systemClock{})
	q := queuemem.New(1)
	runner := &countingRunner{seen: map[string]bool{}, done: make(chan struct{}), want: 1}

	d := New(q, store, runner, 2, nil)
	d.Start(context.Background())

	finished := make(chan struct{})
	go func() {
		d.Stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
