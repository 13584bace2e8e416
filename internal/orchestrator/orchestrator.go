// Package orchestrator owns the job lifecycle surface: submit, poll, fetch,
// wait. Execution itself happens out of band in the worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/report"
)

// Config tunes caller-side polling.
type Config struct {
	// PollInterval is the Wait polling cadence (reference 1s).
	PollInterval time.Duration
	// WaitCeiling is the Wait give-up point (reference 12m).
	WaitCeiling time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.WaitCeiling <= 0 {
		c.WaitCeiling = 12 * time.Minute
	}
	return c
}

// Orchestrator coordinates job submission and result retrieval.
type Orchestrator struct {
	store  miner.JobStore
	queue  miner.Queue
	ids    miner.IDGenerator
	clock  miner.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(store miner.JobStore, queue miner.Queue, ids miner.IDGenerator, clock miner.Clock, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		queue:  queue,
		ids:    ids,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Submit validates the input, registers the job, and enqueues it for the
// worker pool. It returns the job id before any mining happens.
func (o *Orchestrator) Submit(ctx context.Context, input miner.MiningInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	id, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	job := miner.Job{
		ID:     id,
		Input:  input,
		Status: miner.JobStatusQueued,
		Logs:   []string{"[System] Job queued"},
	}
	if err := o.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	task := miner.Task{JobID: id, Input: input, Submitted: o.clock.Now().Unix()}
	if err := o.queue.Enqueue(ctx, task); err != nil {
		msg := fmt.Sprintf("could not queue job: %v", err)
		if ferr := o.store.Fail(ctx, id, msg); ferr != nil {
			o.logger.Error("recording enqueue failure", zap.String("job_id", id), zap.Error(ferr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	running := miner.JobStatusRunning
	if _, err := o.store.Patch(ctx, id, miner.JobPatch{
		Status:     &running,
		AppendLogs: []string{"[System] Background analysis started"},
	}); err != nil {
		o.logger.Warn("marking job running", zap.String("job_id", id), zap.Error(err))
	}

	o.logger.Info("job submitted",
		zap.String("job_id", id),
		zap.String("entity", input.Entity),
		zap.Int("competitors", len(input.Competitors)),
	)
	return id, nil
}

// Poll returns the cheap status view for a job: current status, progress,
// the last 50 log lines, and whether a result is ready.
func (o *Orchestrator) Poll(ctx context.Context, id string) (miner.StatusView, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return miner.StatusView{}, err
	}
	return miner.StatusView{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Logs:      job.LastLogs(50),
		Error:     job.Error,
		HasResult: job.Result != nil,
	}, nil
}

// FetchResult returns the result of a completed job. Non-terminal jobs get
// ErrNotReady; failed jobs get the recorded failure.
func (o *Orchestrator) FetchResult(ctx context.Context, id string) (miner.Result, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return miner.Result{}, err
	}
	switch {
	case job.Status == miner.JobStatusFailed:
		return miner.Result{}, fmt.Errorf("job %s failed: %s", id, job.Error)
	case job.Status != miner.JobStatusCompleted || job.Result == nil:
		return miner.Result{}, miner.ErrNotReady
	}
	return *job.Result, nil
}

// Wait blocks until the job reaches a terminal state, polling the store.
// When the ceiling elapses first, it degrades to the heuristic report built
// from the job's ranked-record snapshot, or ErrJobTimeout when the pipeline
// had not gotten that far.
func (o *Orchestrator) Wait(ctx context.Context, id string) (miner.Result, error) {
	deadline := o.clock.Now().Add(o.cfg.WaitCeiling)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := o.store.Get(ctx, id)
		if err != nil {
			return miner.Result{}, err
		}
		switch job.Status {
		case miner.JobStatusCompleted:
			if job.Result == nil {
				return miner.Result{}, miner.ErrNotReady
			}
			return *job.Result, nil
		case miner.JobStatusFailed:
			return miner.Result{}, fmt.Errorf("job %s failed: %s", id, job.Error)
		}

		if !o.clock.Now().Before(deadline) {
			return o.timeoutFallback(id, job)
		}
		select {
		case <-ctx.Done():
			return miner.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) timeoutFallback(id string, job miner.Job) (miner.Result, error) {
	if len(job.Records) == 0 {
		return miner.Result{}, fmt.Errorf("job %s: %w", id, miner.ErrJobTimeout)
	}
	o.logger.Warn("wait ceiling hit, serving heuristic report",
		zap.String("job_id", id),
		zap.Int("records", len(job.Records)),
	)

	cov := miner.Coverage{Days: job.Input.Days, TotalItemsUsed: len(job.Records)}
	communities := map[string]bool{}
	for _, rec := range job.Records {
		if rec.Kind == miner.RecordComment {
			cov.TotalComments++
		} else {
			cov.TotalThreads++
		}
		communities[rec.Community] = true
	}
	cov.CommunitiesUsed = len(communities)

	rep := report.Heuristic(job.Input, job.Records, cov, o.clock.Now())
	return miner.Result{Report: rep, Coverage: cov}, nil
}
