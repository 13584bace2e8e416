package sinks

import (
	"context"

	"github.com/userpulse/insight-miner/internal/metrics"
	"github.com/userpulse/insight-miner/internal/progress"
)

// PrometheusSink counts milestones per stage.
type PrometheusSink struct{}

// NewPrometheusSink builds a PrometheusSink. metrics.Init must have run.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// Consume increments the stage counter.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) {
	metrics.ObserveStage(string(evt.Stage))
}
