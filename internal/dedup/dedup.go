// Package dedup removes exact and near-duplicate records from a mined corpus.
package dedup

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/userpulse/insight-miner/internal/miner"
)

// Deduplicator collapses duplicates in two passes: exact by id across the
// whole corpus, then fuzzy by normalized edit distance within each entity
// group. Near-duplicates across entity groups are deliberately kept: the
// same discussion may legitimately be evidence for two tracked entities.
type Deduplicator struct {
	// threshold is the near-duplicate cutoff as a fraction of the shorter
	// text's length.
	threshold float64
}

// New builds a Deduplicator with the given fuzzy threshold (reference 0.2).
func New(threshold float64) *Deduplicator {
	return &Deduplicator{threshold: threshold}
}

// Deduplicate returns the surviving records in their original order. First
// occurrence wins for both passes, which makes the operation idempotent:
// running it on its own output removes nothing further.
func (d *Deduplicator) Deduplicate(records []miner.RawRecord) []miner.RawRecord {
	byID := make(map[string]struct{}, len(records))
	unique := make([]miner.RawRecord, 0, len(records))
	for _, rec := range records {
		if _, seen := byID[rec.ID]; seen {
			continue
		}
		byID[rec.ID] = struct{}{}
		unique = append(unique, rec)
	}

	// Accepted normalized texts per entity group. The inner scan is O(n^2)
	// per group; group sizes are bounded by the crawl's max-thread ceiling.
	accepted := make(map[string][]string)
	out := make([]miner.RawRecord, 0, len(unique))
	for _, rec := range unique {
		text := strings.ToLower(rec.Text)
		if d.isNearDuplicate(text, accepted[rec.MatchedEntity]) {
			continue
		}
		accepted[rec.MatchedEntity] = append(accepted[rec.MatchedEntity], text)
		out = append(out, rec)
	}
	return out
}

func (d *Deduplicator) isNearDuplicate(text string, seen []string) bool {
	for _, prev := range seen {
		shorter := len(text)
		if len(prev) < shorter {
			shorter = len(prev)
		}
		dist := levenshtein.ComputeDistance(text, prev)
		if float64(dist) < float64(shorter)*d.threshold {
			return true
		}
	}
	return false
}
