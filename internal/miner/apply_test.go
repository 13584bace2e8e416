package miner

import "testing"

func statusPtr(s JobStatus) *JobStatus { return &s }
func intPtr(n int) *int                { return &n }
func strPtr(s string) *string          { return &s }

func TestApplyPatchProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	job := Job{ID: "j", Status: JobStatusRunning, Progress: 60}
	job = ApplyPatch(job, JobPatch{Progress: intPtr(25)})
	if job.Progress != 60 {
		t.Fatalf("progress regressed to %d", job.Progress)
	}
	job = ApplyPatch(job, JobPatch{Progress: intPtr(150)})
	if job.Progress != 100 {
		t.Fatalf("progress not clamped: %d", job.Progress)
	}
}

func TestApplyPatchTerminalStatusSticks(t *testing.T) {
	t.Parallel()

	job := Job{ID: "j", Status: JobStatusFailed, Error: "boom"}
	job = ApplyPatch(job, JobPatch{Status: statusPtr(JobStatusRunning)})
	if job.Status != JobStatusFailed {
		t.Fatalf("terminal status regressed to %s", job.Status)
	}
}

func TestApplyPatchResultOnlyWhenCompleted(t *testing.T) {
	t.Parallel()

	result := Result{Report: Report{Raw: "# r"}}

	job := Job{ID: "j", Status: JobStatusRunning}
	job = ApplyPatch(job, JobPatch{Result: &result})
	if job.Result != nil {
		t.Fatal("result attached to a non-completed job")
	}

	job = ApplyPatch(job, JobPatch{Status: statusPtr(JobStatusCompleted), Result: &result})
	if job.Result == nil {
		t.Fatal("result missing on completed job")
	}
}

func TestApplyPatchErrorOnlyWhenFailed(t *testing.T) {
	t.Parallel()

	job := Job{ID: "j", Status: JobStatusRunning}
	job = ApplyPatch(job, JobPatch{Error: strPtr("oops")})
	if job.Error != "" {
		t.Fatal("error attached to a non-failed job")
	}

	job = ApplyPatch(job, JobPatch{Status: statusPtr(JobStatusFailed), Error: strPtr("oops")})
	if job.Error != "oops" {
		t.Fatalf("error missing on failed job: %q", job.Error)
	}
}

func TestLastLogs(t *testing.T) {
	t.Parallel()

	job := Job{Logs: []string{"a", "b", "c", "d"}}
	got := job.LastLogs(2)
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Fatalf("unexpected tail: %v", got)
	}
	if len(job.LastLogs(10)) != 4 {
		t.Fatal("short log should come back whole")
	}
}

func TestValidateInput(t *testing.T) {
	t.Parallel()

	valid := MiningInput{
		Entity:      "Acme",
		Competitors: []string{"Globex"},
		Days:        30,
		MaxThreads:  250,
		Communities: []string{"SaaS"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*MiningInput)
	}{
		{"missing entity", func(in *MiningInput) { in.Entity = "" }},
		{"no competitors", func(in *MiningInput) { in.Competitors = nil }},
		{"too many competitors", func(in *MiningInput) { in.Competitors = []string{"a", "b", "c", "d"} }},
		{"blank competitor", func(in *MiningInput) { in.Competitors = []string{""} }},
		{"zero days", func(in *MiningInput) { in.Days = 0 }},
		{"zero max threads", func(in *MiningInput) { in.MaxThreads = 0 }},
		{"no communities", func(in *MiningInput) { in.Communities = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if err := in.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
