package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/progress"
)

// LogSink mirrors milestones to the service log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event at info level.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) {
	s.logger.Info("pipeline milestone",
		zap.String("job_id", evt.JobID),
		zap.String("stage", string(evt.Stage)),
		zap.Int("percent", evt.Percent),
		zap.String("message", evt.Message),
	)
}
