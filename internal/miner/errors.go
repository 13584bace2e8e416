package miner

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy shared across subsystems.
var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose id is taken.
	ErrJobExists = errors.New("job already exists")
	// ErrNotReady is returned when a result is requested before completion.
	ErrNotReady = errors.New("not ready")
	// ErrJobTimeout is returned when a caller's wait ceiling elapses with the
	// job still running.
	ErrJobTimeout = errors.New("job wait timed out")
	// ErrUpstreamUnavailable marks Source or Summarizer connectivity failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited marks 429-class upstream responses.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrMalformedResponse marks non-JSON or schema-violating upstream replies.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// ValidationError reports a caller-supplied request failing schema checks.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate enforces the request schema: an entity name, 1..3 competitors, and
// positive numeric knobs.
func (in MiningInput) Validate() error {
	if in.Entity == "" {
		return &ValidationError{Field: "entity", Reason: "required"}
	}
	if len(in.Competitors) < 1 || len(in.Competitors) > 3 {
		return &ValidationError{Field: "competitors", Reason: "must contain 1 to 3 names"}
	}
	for _, c := range in.Competitors {
		if c == "" {
			return &ValidationError{Field: "competitors", Reason: "names must be non-empty"}
		}
	}
	if in.Days <= 0 {
		return &ValidationError{Field: "days", Reason: "must be > 0"}
	}
	if in.MaxThreads <= 0 {
		return &ValidationError{Field: "max_threads", Reason: "must be > 0"}
	}
	if len(in.Communities) == 0 {
		return &ValidationError{Field: "communities", Reason: "at least one community required"}
	}
	return nil
}
