// Package progress defines the milestone events emitted by the pipeline and
// fans them out to sinks (job store, logger, metrics).
package progress

import (
	"errors"
	"time"
)

// Stage names the pipeline transition an Event reports.
type Stage string

// Pipeline stages, in execution order. The weights attached to each stage
// sum to 100 caller-visible percent.
const (
	StageContext         Stage = "context"
	StageMineSelf        Stage = "mine_self"
	StageMineCompetitors Stage = "mine_competitors"
	StageFilter          Stage = "filter"
	StageClassify        Stage = "classify"
	StageCompose         Stage = "compose"
	StageExport          Stage = "export"
)

// Event captures one pipeline milestone for a job.
type Event struct {
	JobID   string
	TS      time.Time
	Stage   Stage
	Percent int
	Message string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.Percent < 0 || e.Percent > 100 {
		return errors.New("percent must be in [0,100]")
	}
	return nil
}
