// Package worker consumes queued mining tasks and drives the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/metrics"
	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/queue/memory"
)

// Runner executes one mining job to a terminal state.
type Runner interface {
	Run(ctx context.Context, task miner.Task) error
}

// Worker is a single queue consumer.
type Worker struct {
	id     int
	queue  miner.Queue
	store  miner.JobStore
	runner Runner
	logger *zap.Logger
}

// New builds a Worker.
func New(id int, queue miner.Queue, store miner.JobStore, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		store:  store,
		runner: runner,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Loop dequeues and executes tasks until the context is canceled or the
// queue closes.
func (w *Worker) Loop(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, memory.ErrQueueClosed) {
				w.logger.Info("worker stopping")
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			continue
		}
		w.execute(ctx, task)
	}
}

// execute runs one task. A panicking pipeline must still leave the job in a
// terminal state, otherwise pollers would wait on it forever.
func (w *Worker) execute(ctx context.Context, task miner.Task) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panicked",
				zap.String("job_id", task.JobID),
				zap.Any("panic", r),
			)
			msg := fmt.Sprintf("internal error: %v", r)
			if err := w.store.Fail(ctx, task.JobID, msg); err != nil {
				w.logger.Error("recording panic failure", zap.Error(err))
			}
		}
	}()

	w.logger.Info("job started", zap.String("job_id", task.JobID), zap.String("entity", task.Input.Entity))
	if err := w.runner.Run(ctx, task); err != nil {
		// The runner already recorded the failure; this is operator context.
		w.logger.Warn("job failed", zap.String("job_id", task.JobID), zap.Error(err))
		return
	}
	w.logger.Info("job finished", zap.String("job_id", task.JobID))
}
