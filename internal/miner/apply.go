package miner

// ApplyPatch merges a JobPatch into a Job, enforcing the store invariants:
// progress is clamped to [0,100] and never decreases, a terminal status never
// regresses, result attaches only to completed jobs and error text only to
// failed ones. Both job store implementations funnel through this so the
// semantics cannot drift.
func ApplyPatch(job Job, patch JobPatch) Job {
	if patch.Status != nil && !job.Status.Terminal() {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		p := *patch.Progress
		if p > 100 {
			p = 100
		}
		if p > job.Progress {
			job.Progress = p
		}
	}
	if len(patch.AppendLogs) > 0 {
		job.Logs = append(job.Logs, patch.AppendLogs...)
	}
	if patch.Error != nil && job.Status == JobStatusFailed {
		job.Error = *patch.Error
	}
	if patch.Result != nil && job.Status == JobStatusCompleted {
		job.Result = patch.Result
	}
	if patch.Records != nil {
		job.Records = patch.Records
	}
	return job
}

// LastLogs returns the most recent n log lines.
func (j Job) LastLogs(n int) []string {
	if n <= 0 || len(j.Logs) <= n {
		return j.Logs
	}
	return j.Logs[len(j.Logs)-n:]
}
