// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/progress"
)

// StoreSink writes milestone percentages and log lines into the job store.
// The store's Patch enforces progress monotonicity, so out-of-order events
// from concurrent stages can never move a job backward.
type StoreSink struct {
	store  miner.JobStore
	logger *zap.Logger
}

// NewStoreSink wires the job store and logger.
func NewStoreSink(store miner.JobStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume patches the job with the event's percent and message.
func (s *StoreSink) Consume(ctx context.Context, evt progress.Event) {
	patch := miner.JobPatch{Progress: &evt.Percent}
	if evt.Message != "" {
		patch.AppendLogs = []string{evt.Message}
	}
	if _, err := s.store.Patch(ctx, evt.JobID, patch); err != nil {
		s.logger.Warn("progress patch failed",
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Error(err),
		)
	}
}
