// Package miner defines core types shared across subsystems.
package miner

import (
	"time"
)

// RecordKind distinguishes top-level posts from replies.
type RecordKind string

// Record kinds observed from the discussion source.
const (
	RecordPost    RecordKind = "post"
	RecordComment RecordKind = "comment"
)

// Aspect is the classification tag attached to a record by the Summarizer.
type Aspect string

// Aspects the classifier may assign. The taxonomy is open-ended on the
// Summarizer side; these are the ones downstream composition keys on.
const (
	AspectLaunch  Aspect = "launch"
	AspectLove    Aspect = "love"
	AspectNotLove Aspect = "notlove"
)

// RawRecord is one post or comment observed from the Source, tagged with the
// entity it was collected for.
type RawRecord struct {
	ID            string     `json:"id"`
	Kind          RecordKind `json:"kind"`
	Author        string     `json:"author"`
	Community     string     `json:"community"`
	Text          string     `json:"text"`
	OutboundURL   string     `json:"outbound_url,omitempty"`
	Permalink     string     `json:"permalink"`
	CreatedAt     time.Time  `json:"created_at"`
	Score         int        `json:"score"`
	ReplyCount    int        `json:"reply_count,omitempty"`
	EvidenceURLs  []string   `json:"evidence_urls"`
	MatchedEntity string     `json:"matched_entity"`
}

// RankedRecord is a RawRecord that survived deduplication, plus its composite
// relevance score and the aspect assigned later by the Classify stage.
type RankedRecord struct {
	RawRecord
	RankScore float64 `json:"rank_score"`
	Aspect    Aspect  `json:"aspect,omitempty"`
}

// JobStatus represents the lifecycle state of a mining job.
type JobStatus string

// Job status values persisted in the job store. Transitions are monotonic:
// queued -> running -> {completed|failed}.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether s is a terminal status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Report holds the composed markdown report and its derived artifacts.
type Report struct {
	Header      string `json:"header"`
	Takeaways   string `json:"takeaways"`
	AppendixCSV string `json:"appendix_csv"`
	Raw         string `json:"raw"`
}

// Coverage summarizes what the final record set actually covered.
type Coverage struct {
	Days            int `json:"days"`
	TotalThreads    int `json:"total_threads"`
	TotalComments   int `json:"total_comments"`
	TotalItemsUsed  int `json:"total_items_used"`
	CommunitiesUsed int `json:"communities_used"`
}

// Result is the terminal artifact of a completed job.
type Result struct {
	Report   Report   `json:"report"`
	Coverage Coverage `json:"coverage"`
}

// Job is the handle to one asynchronous mining run.
type Job struct {
	ID       string      `json:"id"`
	Input    MiningInput `json:"input"`
	Status   JobStatus   `json:"status"`
	Progress int         `json:"progress"`
	Logs     []string    `json:"logs"`
	Error    string      `json:"error,omitempty"`
	Result   *Result     `json:"result,omitempty"`
	// Records snapshots the ranked corpus once the filter stage finishes so
	// a timed-out caller can still synthesize a heuristic report.
	Records   []RankedRecord `json:"-"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// JobPatch merges fields into an existing Job. Nil fields are left untouched;
// AppendLogs and Records are additive/replacing respectively.
type JobPatch struct {
	Status     *JobStatus
	Progress   *int
	AppendLogs []string
	Error      *string
	Result     *Result
	Records    []RankedRecord
}

// StatusView is the cheap read returned to polling callers.
type StatusView struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Logs      []string  `json:"logs"`
	Error     string    `json:"error,omitempty"`
	HasResult bool      `json:"has_result"`
}

// ContextPack is the Summarizer-built description of the tracked product,
// used to steer mining and composition.
type ContextPack struct {
	ContextText string   `json:"context_text"`
	Keywords    []string `json:"keywords"`
}

// MiningInput captures one mining request as submitted by the caller.
type MiningInput struct {
	Entity      string   `json:"entity"`
	EntityURL   string   `json:"entity_url,omitempty"`
	Competitors []string `json:"competitors"`
	Days        int      `json:"days"`
	MinScore    int      `json:"min_score"`
	MaxThreads  int      `json:"max_threads"`
	Communities []string `json:"communities"`
}

// Entities returns the product plus its competitors, product first.
func (in MiningInput) Entities() []string {
	out := make([]string, 0, len(in.Competitors)+1)
	out = append(out, in.Entity)
	out = append(out, in.Competitors...)
	return out
}

// Task is one unit of queued work consumed by the worker pool.
type Task struct {
	JobID     string
	Input     MiningInput
	Submitted int64
}

// Post is the Source's shape for a top-level submission.
type Post struct {
	ID          string
	Title       string
	Body        string
	Author      string
	Score       int
	ReplyCount  int
	CreatedAt   time.Time
	Permalink   string
	OutboundURL string
}

// Reply is the Source's shape for a comment under a Post.
type Reply struct {
	ID        string
	Body      string
	Author    string
	Score     int
	CreatedAt time.Time
	Permalink string
}
