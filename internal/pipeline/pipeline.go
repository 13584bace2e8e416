// Package pipeline runs one mining job end to end: context, mining,
// filtering, classification, composition, export.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/userpulse/insight-miner/internal/dedup"
	"github.com/userpulse/insight-miner/internal/metrics"
	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/progress"
	"github.com/userpulse/insight-miner/internal/rank"
	"github.com/userpulse/insight-miner/internal/report"
)

// Stage completion milestones as cumulative caller-visible percent.
const (
	pctContext         = 10
	pctMineSelf        = 30
	pctMineCompetitors = 55
	pctFilter          = 65
	pctClassify        = 80
	pctCompose         = 95
	pctExport          = 100
)

// minEvidenceLinks is the citation floor below which the report gets an
// evidence note appended.
const minEvidenceLinks = 3

// Miner is the crawl dependency, satisfied by crawler.Crawler.
type Miner interface {
	Search(ctx context.Context, entity string, communities []string, days, minScore int) ([]miner.RawRecord, error)
}

// Config tunes the coordinator.
type Config struct {
	// ComposeConcurrency caps concurrent Summarizer classify/compose calls
	// (reference 3).
	ComposeConcurrency int
	// SummarizerTimeout is the per-call soft deadline (reference 45s).
	SummarizerTimeout time.Duration
	// HalfLifeDays drives the staleness weighting of the pre-dedup cap.
	HalfLifeDays float64
}

func (c Config) withDefaults() Config {
	if c.ComposeConcurrency <= 0 {
		c.ComposeConcurrency = 3
	}
	if c.SummarizerTimeout <= 0 {
		c.SummarizerTimeout = 45 * time.Second
	}
	if c.HalfLifeDays <= 0 {
		c.HalfLifeDays = 7
	}
	return c
}

// Pipeline coordinates the stages of one job.
type Pipeline struct {
	store      miner.JobStore
	miner      Miner
	summarizer miner.Summarizer
	dedup      *dedup.Deduplicator
	ranker     *rank.Ranker
	emitter    progress.Emitter
	clock      miner.Clock
	cfg        Config
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(
	store miner.JobStore,
	m Miner,
	summarizer miner.Summarizer,
	d *dedup.Deduplicator,
	r *rank.Ranker,
	emitter progress.Emitter,
	clock miner.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:      store,
		miner:      m,
		summarizer: summarizer,
		dedup:      d,
		ranker:     r,
		emitter:    emitter,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Run executes the job to a terminal state. It returns an error only for the
// failure it also recorded in the store, so callers can log it.
func (p *Pipeline) Run(ctx context.Context, task miner.Task) error {
	start := p.clock.Now()
	input := task.Input
	log := p.logger.With(zap.String("job_id", task.JobID), zap.String("entity", input.Entity))

	fail := func(err error) error {
		log.Error("pipeline failed", zap.Error(err))
		if serr := p.store.Fail(ctx, task.JobID, err.Error()); serr != nil {
			log.Error("recording failure", zap.Error(serr))
		}
		metrics.ObserveJob(string(miner.JobStatusFailed), p.clock.Now().Sub(start))
		return err
	}

	// Context stage. The pack is advisory; every failure path still yields
	// a usable generic pack.
	pack := p.productContext(ctx, input)
	p.emit(ctx, task.JobID, progress.StageContext, pctContext,
		fmt.Sprintf("[Context] %s", firstLine(pack.ContextText)))

	// Mining. The tracked product failing to mine fails the job; a
	// competitor failing degrades to zero records for that competitor.
	selfRecords, err := p.miner.Search(ctx, input.Entity, input.Communities, input.Days, input.MinScore)
	if err != nil {
		return fail(fmt.Errorf("mine %s: %w", input.Entity, err))
	}
	p.emit(ctx, task.JobID, progress.StageMineSelf, pctMineSelf,
		fmt.Sprintf("[Mining] %s: %d raw records", input.Entity, len(selfRecords)))

	merged := selfRecords
	for i, competitor := range input.Competitors {
		records, err := p.miner.Search(ctx, competitor, input.Communities, input.Days, input.MinScore)
		if err != nil {
			log.Warn("competitor mining degraded to zero records",
				zap.String("competitor", competitor), zap.Error(err))
			records = nil
		}
		merged = append(merged, records...)
		pct := pctMineSelf + (pctMineCompetitors-pctMineSelf)*(i+1)/len(input.Competitors)
		p.emit(ctx, task.JobID, progress.StageMineCompetitors, pct,
			fmt.Sprintf("[Mining] %s: %d raw records", competitor, len(records)))
	}

	// Filter stage: cap, dedup, rank, snapshot.
	now := p.clock.Now()
	capped := p.capByScore(merged, input.MaxThreads, now)
	unique := p.dedup.Deduplicate(capped)
	ranked := p.ranker.Rank(unique, now)
	if _, err := p.store.Patch(ctx, task.JobID, miner.JobPatch{Records: ranked}); err != nil {
		return fail(fmt.Errorf("snapshot records: %w", err))
	}
	p.emit(ctx, task.JobID, progress.StageFilter, pctFilter,
		fmt.Sprintf("[Filter] %d raw -> %d unique records", len(merged), len(ranked)))

	// Classify stage, per entity, concurrent. The snapshot is refreshed so
	// it carries the assigned aspects from here on.
	classified := p.classify(ctx, input, ranked, log)
	if _, err := p.store.Patch(ctx, task.JobID, miner.JobPatch{Records: classified}); err != nil {
		return fail(fmt.Errorf("snapshot classified records: %w", err))
	}
	p.emit(ctx, task.JobID, progress.StageClassify, pctClassify,
		fmt.Sprintf("[Classify] %d records tagged", len(classified)))

	// Compose stage.
	body, takeaways := p.compose(ctx, input, classified, log)
	p.emit(ctx, task.JobID, progress.StageCompose, pctCompose, "[Compose] report sections written")

	// Export stage.
	cov := coverage(input, classified)
	header := report.Header(input.Entity, input.Competitors, cov, now)
	appendix := report.AppendixCSV(classified, report.AppendixLimit)

	var raw strings.Builder
	raw.WriteString(header)
	raw.WriteString("\n")
	raw.WriteString(body)
	raw.WriteString("\n## Takeaways\n\n")
	raw.WriteString(takeaways)
	raw.WriteString("\n\n## Appendix\n\n```csv\n")
	raw.WriteString(appendix)
	raw.WriteString("```\n")

	result := miner.Result{
		Report: miner.Report{
			Header:      header,
			Takeaways:   takeaways,
			AppendixCSV: appendix,
			Raw:         raw.String(),
		},
		Coverage: cov,
	}
	if err := p.store.Complete(ctx, task.JobID, result); err != nil {
		return fail(fmt.Errorf("complete job: %w", err))
	}
	p.emit(ctx, task.JobID, progress.StageExport, pctExport, "[Export] report ready")
	metrics.ObserveJob(string(miner.JobStatusCompleted), p.clock.Now().Sub(start))
	return nil
}

func (p *Pipeline) emit(ctx context.Context, jobID string, stage progress.Stage, pct int, msg string) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(ctx, progress.Event{
		JobID:   jobID,
		TS:      p.clock.Now(),
		Stage:   stage,
		Percent: pct,
		Message: msg,
	})
}

func (p *Pipeline) productContext(ctx context.Context, input miner.MiningInput) miner.ContextPack {
	tctx, cancel := context.WithTimeout(ctx, p.cfg.SummarizerTimeout)
	defer cancel()
	pack, err := p.summarizer.ProductContext(tctx, input.Entity, input.EntityURL)
	if err != nil || strings.TrimSpace(pack.ContextText) == "" {
		if err != nil {
			p.logger.Warn("product context degraded to generic pack",
				zap.String("entity", input.Entity), zap.Error(err))
			metrics.ObserveSummarizerFallback("product_context")
		}
		pack = miner.ContextPack{
			ContextText: fmt.Sprintf("%s is a product tracked for community feedback.", input.Entity),
			Keywords:    []string{input.Entity},
		}
	}
	return pack
}

// capByScore keeps the top maxThreads records by staleness-discounted score
// so the expensive Summarizer stages work on a bounded corpus.
func (p *Pipeline) capByScore(records []miner.RawRecord, maxThreads int, now time.Time) []miner.RawRecord {
	if maxThreads <= 0 || len(records) <= maxThreads {
		return records
	}
	capped := make([]miner.RawRecord, len(records))
	copy(capped, records)
	sort.SliceStable(capped, func(i, j int) bool {
		return p.capKey(capped[i], now) > p.capKey(capped[j], now)
	})
	return capped[:maxThreads]
}

func (p *Pipeline) capKey(rec miner.RawRecord, now time.Time) float64 {
	ageDays := now.Sub(rec.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return float64(rec.Score+rec.ReplyCount) * math.Exp(-ageDays*math.Ln2/p.cfg.HalfLifeDays)
}

// classify tags every record with an aspect. A failed entity group defaults
// to "love" rather than blocking the report.
func (p *Pipeline) classify(ctx context.Context, input miner.MiningInput, ranked []miner.RankedRecord, log *zap.Logger) []miner.RankedRecord {
	out := make([]miner.RankedRecord, len(ranked))
	copy(out, ranked)

	groups := make(map[string][]int)
	for i, rec := range out {
		groups[rec.MatchedEntity] = append(groups[rec.MatchedEntity], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ComposeConcurrency)
	for _, entity := range input.Entities() {
		indices := groups[entity]
		if len(indices) == 0 {
			continue
		}
		g.Go(func() error {
			subset := make([]miner.RankedRecord, len(indices))
			for i, idx := range indices {
				subset[i] = out[idx]
			}
			tctx, cancel := context.WithTimeout(gctx, p.cfg.SummarizerTimeout)
			defer cancel()
			tagged, err := p.summarizer.ClassifyAspects(tctx, subset, entity)
			if err != nil || len(tagged) != len(subset) {
				log.Warn("classification degraded to default aspect",
					zap.String("entity", entity), zap.Error(err))
				metrics.ObserveSummarizerFallback("classify_aspects")
				for _, idx := range indices {
					out[idx].Aspect = miner.AspectLove
				}
				return nil
			}
			for i, idx := range indices {
				out[idx].Aspect = tagged[i].Aspect
			}
			return nil
		})
	}
	g.Wait()
	return out
}

// compose writes the per-entity sections and takeaways. Every failure path
// substitutes a placeholder so the report always assembles.
func (p *Pipeline) compose(ctx context.Context, input miner.MiningInput, classified []miner.RankedRecord, log *zap.Logger) (body, takeaways string) {
	entities := input.Entities()
	sections := make([]string, len(entities))
	mentions := make(map[string]int, len(entities))
	byEntity := make(map[string][]miner.RankedRecord, len(entities))
	for _, rec := range classified {
		byEntity[rec.MatchedEntity] = append(byEntity[rec.MatchedEntity], rec)
		mentions[rec.MatchedEntity]++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ComposeConcurrency)
	for i, entity := range entities {
		g.Go(func() error {
			records := byEntity[entity]
			if len(records) == 0 {
				sections[i] = fmt.Sprintf("## %s\n\nNo mentions found in the covered window.\n", entity)
				return nil
			}
			tctx, cancel := context.WithTimeout(gctx, p.cfg.SummarizerTimeout)
			defer cancel()
			section, err := p.summarizer.ComposeSection(tctx, entity, records, entity == input.Entity)
			if err != nil || strings.TrimSpace(section) == "" {
				log.Warn("section composition degraded to placeholder",
					zap.String("entity", entity), zap.Error(err))
				metrics.ObserveSummarizerFallback("compose_section")
				section = placeholderSection(entity, records)
			}
			sections[i] = ensureHeading(entity, section)
			return nil
		})
	}
	g.Wait()

	tctx, cancel := context.WithTimeout(ctx, p.cfg.SummarizerTimeout)
	defer cancel()
	takeaways, err := p.summarizer.ComposeTakeaways(tctx, input.Entity, mentions)
	if err != nil || strings.TrimSpace(takeaways) == "" {
		if err != nil {
			log.Warn("takeaways degraded to mention counts", zap.Error(err))
			metrics.ObserveSummarizerFallback("compose_takeaways")
		}
		takeaways = report.HeuristicTakeaways(input.Entity, mentions)
	}

	body = strings.Join(sections, "\n")
	if countPermalinks(body, classified) < minEvidenceLinks {
		body += "\n_Note: fewer than three direct citations were available for this window; treat conclusions as directional._\n"
	}
	return body, takeaways
}

func placeholderSection(entity string, records []miner.RankedRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n_Summarization unavailable; top mentions listed verbatim._\n\n", entity)
	n := len(records)
	if n > 5 {
		n = 5
	}
	for _, rec := range records[:n] {
		fmt.Fprintf(&sb, "- %s (%s)\n", firstLine(rec.Text), rec.Permalink)
	}
	return sb.String()
}

func ensureHeading(entity, section string) string {
	if strings.HasPrefix(strings.TrimSpace(section), "#") {
		return section
	}
	return fmt.Sprintf("## %s\n\n%s", entity, section)
}

func countPermalinks(body string, records []miner.RankedRecord) int {
	seen := map[string]bool{}
	for _, rec := range records {
		if rec.Permalink == "" || seen[rec.Permalink] {
			continue
		}
		if strings.Contains(body, rec.Permalink) {
			seen[rec.Permalink] = true
		}
	}
	return len(seen)
}

func coverage(input miner.MiningInput, records []miner.RankedRecord) miner.Coverage {
	cov := miner.Coverage{
		Days:           input.Days,
		TotalItemsUsed: len(records),
	}
	communities := map[string]bool{}
	for _, rec := range records {
		switch rec.Kind {
		case miner.RecordComment:
			cov.TotalComments++
		default:
			cov.TotalThreads++
		}
		if rec.Community != "" {
			communities[rec.Community] = true
		}
	}
	cov.CommunitiesUsed = len(communities)
	return cov
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > 120 {
		s = string(runes[:120]) + "…"
	}
	return s
}
