// Package dispatcher runs the worker pool.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/worker"
)

// Dispatcher fans a fixed number of workers out over the task queue.
type Dispatcher struct {
	queue   miner.Queue
	store   miner.JobStore
	runner  worker.Runner
	workers int
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Dispatcher with workers consumers.
func New(queue miner.Queue, store miner.JobStore, runner worker.Runner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		store:   store,
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker pool. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.logger.Info("starting workers", zap.Int("count", d.workers))
	for i := 0; i < d.workers; i++ {
		w := worker.New(i, d.queue, d.store, d.runner, d.logger)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Loop(ctx)
		}()
	}
}

// Stop cancels the workers and blocks until the pool drains. In-flight jobs
// observe the cancellation through their context.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("workers stopped")
}
