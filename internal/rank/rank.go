// Package rank computes the composite relevance score for mined records.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
)

// Weights holds the heuristic ranking weights and normalizers. The defaults
// mirror the reference configuration; treat them as tunables.
type Weights struct {
	HalfLifeDays   float64
	Freshness      float64
	Velocity       float64
	Engagement     float64
	Evidence       float64
	Author         float64
	VelocityNorm   float64
	EngagementNorm float64
}

// DefaultWeights returns the reference weight set
// (0.40/0.25/0.20/0.10/0.05, 7-day half-life).
func DefaultWeights() Weights {
	return Weights{
		HalfLifeDays:   7,
		Freshness:      0.40,
		Velocity:       0.25,
		Engagement:     0.20,
		Evidence:       0.10,
		Author:         0.05,
		VelocityNorm:   10,
		EngagementNorm: 20,
	}
}

// Ranker scores and orders records.
type Ranker struct {
	weights Weights
}

// New builds a Ranker.
func New(weights Weights) *Ranker {
	return &Ranker{weights: weights}
}

// Score computes the weighted relevance of one record at time now.
func (r *Ranker) Score(rec miner.RawRecord, now time.Time) float64 {
	age := now.Sub(rec.CreatedAt)
	ageDays := age.Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	ageHours := math.Max(1, age.Hours())

	freshness := math.Exp(-ageDays * math.Ln2 / r.weights.HalfLifeDays)
	velocity := math.Min(1, float64(rec.Score+rec.ReplyCount)/ageHours/r.weights.VelocityNorm)
	engagement := math.Min(1, float64(rec.Score)/r.weights.EngagementNorm)
	evidence := 0.0
	if len(rec.EvidenceURLs) > 0 {
		evidence = 0.2
	}
	author := 0.0
	if strings.Contains(strings.ToLower(rec.Author), "official") {
		author = 0.1
	}

	return r.weights.Freshness*freshness +
		r.weights.Velocity*velocity +
		r.weights.Engagement*engagement +
		r.weights.Evidence*evidence +
		r.weights.Author*author
}

// Rank scores every record and returns them ordered by descending score.
// The sort is stable, so records with equal scores keep their discovery
// order and re-running on the same input yields identical output.
func (r *Ranker) Rank(records []miner.RawRecord, now time.Time) []miner.RankedRecord {
	out := make([]miner.RankedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, miner.RankedRecord{
			RawRecord: rec,
			RankScore: r.Score(rec, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankScore > out[j].RankScore
	})
	return out
}
