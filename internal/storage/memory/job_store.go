// Package memory provides an in-memory job store for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/userpulse/insight-miner/internal/miner"
)

// JobStore keeps job state in a process-local map. It is the reference
// implementation of miner.JobStore; all mutation funnels through Patch under
// a single write lock so concurrent log appends never lose updates.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]miner.Job
	clock miner.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock miner.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]miner.Job),
		clock: clock,
	}
}

// Create inserts a new job. Fails if the id already exists.
func (s *JobStore) Create(_ context.Context, job miner.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return miner.ErrJobExists
	}
	job.UpdatedAt = s.clock.Now()
	s.jobs[job.ID] = job
	return nil
}

// Get returns a snapshot of the job. The snapshot's slices are copies, so
// callers cannot mutate stored state.
func (s *JobStore) Get(_ context.Context, id string) (miner.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return miner.Job{}, miner.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Patch merges fields into the existing job and refreshes UpdatedAt.
// Progress never decreases and a terminal status never regresses, regardless
// of what the patch asks for.
func (s *JobStore) Patch(_ context.Context, id string, patch miner.JobPatch) (miner.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return miner.Job{}, miner.ErrJobNotFound
	}
	job = miner.ApplyPatch(job, patch)
	job.UpdatedAt = s.clock.Now()
	s.jobs[id] = job
	return cloneJob(job), nil
}

// Complete marks the job completed with its result, clamps progress to 100,
// and appends a closing log line.
func (s *JobStore) Complete(ctx context.Context, id string, result miner.Result) error {
	status := miner.JobStatusCompleted
	progress := 100
	_, err := s.Patch(ctx, id, miner.JobPatch{
		Status:     &status,
		Progress:   &progress,
		Result:     &result,
		AppendLogs: []string{"[System] Job completed"},
	})
	return err
}

// Fail marks the job failed with a short human-readable message.
func (s *JobStore) Fail(ctx context.Context, id string, message string) error {
	status := miner.JobStatusFailed
	progress := 100
	_, err := s.Patch(ctx, id, miner.JobPatch{
		Status:     &status,
		Progress:   &progress,
		Error:      &message,
		AppendLogs: []string{"[System] Error: " + message},
	})
	return err
}

func cloneJob(job miner.Job) miner.Job {
	cp := job
	cp.Logs = append([]string(nil), job.Logs...)
	cp.Records = append([]miner.RankedRecord(nil), job.Records...)
	return cp
}
