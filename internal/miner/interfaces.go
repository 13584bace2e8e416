package miner

import (
	"context"
	"time"
)

// JobStore persists job state. Implementations must serialize Patch so that
// concurrent log appends and progress updates never lose writes, and must
// enforce monotonic progress and terminal-status transitions internally.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Patch(ctx context.Context, id string, patch JobPatch) (Job, error)
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id string, message string) error
}

// Source provides raw discussion data from one platform.
type Source interface {
	// Search runs one query (up to 5 variants OR-joined) against a community
	// and returns at most limit posts from the last days days, newest first.
	Search(ctx context.Context, community string, variants []string, days, limit int) ([]Post, error)
	// Replies returns the top-level replies of a post.
	Replies(ctx context.Context, post Post) ([]Reply, error)
}

// Summarizer is the LLM-backed text understanding collaborator. Every method
// may fail; callers are responsible for the conservative degrade documented
// per call site (keep-all, default aspect, placeholder section).
type Summarizer interface {
	ResolveVariants(ctx context.Context, name string) ([]string, error)
	FilterRelevant(ctx context.Context, records []RawRecord, entity string) ([]RawRecord, error)
	ClassifyAspects(ctx context.Context, records []RankedRecord, entity string) ([]RankedRecord, error)
	ComposeSection(ctx context.Context, entity string, records []RankedRecord, founder bool) (string, error)
	ComposeTakeaways(ctx context.Context, entity string, mentionsByEntity map[string]int) (string, error)
	ProductContext(ctx context.Context, name, url string) (ContextPack, error)
}

// Queue provides enqueue/dequeue semantics for mining tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
