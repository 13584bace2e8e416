// Package crawler fans search and fetch calls out against the rate-limited
// Source and emits raw records for one entity at a time.
package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/userpulse/insight-miner/internal/metrics"
	"github.com/userpulse/insight-miner/internal/miner"
)

// Config controls crawl fan-out and filtering.
type Config struct {
	// Concurrency caps simultaneous in-flight community searches per entity
	// (reference 5). Exceeding it risks tripping upstream rate limiting.
	Concurrency int
	// SearchLimit bounds posts taken per community search (reference 50).
	SearchLimit int
	// ReplyFetchThreshold: posts with more replies than this get their top
	// replies fetched as comment records (reference 5).
	ReplyFetchThreshold int
	// ReplyLimit bounds fetched replies per post (reference 20).
	ReplyLimit int
	// EngagementOverride keeps low-score posts that have at least this many
	// replies (reference 3).
	EngagementOverride int
	// TextLimit truncates record text on ingest (reference 500 runes).
	TextLimit int
	// MaxQueryVariants bounds how many variants go into one search query
	// (reference 5).
	MaxQueryVariants int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 50
	}
	if c.ReplyFetchThreshold <= 0 {
		c.ReplyFetchThreshold = 5
	}
	if c.ReplyLimit <= 0 {
		c.ReplyLimit = 20
	}
	if c.EngagementOverride <= 0 {
		c.EngagementOverride = 3
	}
	if c.TextLimit <= 0 {
		c.TextLimit = 500
	}
	if c.MaxQueryVariants <= 0 {
		c.MaxQueryVariants = 5
	}
	return c
}

// Crawler mines one entity across a set of communities.
type Crawler struct {
	source     miner.Source
	summarizer miner.Summarizer
	clock      miner.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Crawler.
func New(source miner.Source, summarizer miner.Summarizer, clock miner.Clock, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		source:     source,
		summarizer: summarizer,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Search mines every community for mentions of entity and returns the merged
// raw records, tagged with matchedEntity = entity. A single community
// failing is logged and contributes zero records; the crawl errors only when
// every community failed.
func (c *Crawler) Search(ctx context.Context, entity string, communities []string, days, minScore int) ([]miner.RawRecord, error) {
	variants := c.resolveVariants(ctx, entity)
	cutoff := c.clock.Now().AddDate(0, 0, -days)

	// Results are collected per community index so the concatenation order
	// matches the configured community order regardless of task completion
	// order; dedup's first-occurrence rule depends on this being stable.
	perCommunity := make([][]miner.RawRecord, len(communities))
	var failures int
	failed := make([]bool, len(communities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, community := range communities {
		g.Go(func() error {
			records, err := c.searchCommunity(gctx, entity, community, variants, cutoff, days, minScore)
			if err != nil {
				c.logger.Warn("community search failed",
					zap.String("entity", entity),
					zap.String("community", community),
					zap.Error(err),
				)
				metrics.ObserveSourceError(community)
				failed[i] = true
				return nil
			}
			perCommunity[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", entity, err)
	}

	var all []miner.RawRecord
	for i := range perCommunity {
		if failed[i] {
			failures++
		}
		all = append(all, perCommunity[i]...)
	}
	if failures == len(communities) {
		return nil, fmt.Errorf("crawl %s: %w: all %d communities failed", entity, miner.ErrUpstreamUnavailable, len(communities))
	}

	// Coarse recall-preserving relevance pass. Biased toward inclusion: the
	// degrade path keeps everything, never drops.
	relevant, err := c.summarizer.FilterRelevant(ctx, all, entity)
	if err != nil {
		c.logger.Warn("relevance filter degraded to keep-all", zap.String("entity", entity), zap.Error(err))
		metrics.ObserveSummarizerFallback("filter_relevant")
		relevant = all
	}
	return relevant, nil
}

func (c *Crawler) resolveVariants(ctx context.Context, entity string) []string {
	variants, err := c.summarizer.ResolveVariants(ctx, entity)
	if err != nil || len(variants) == 0 {
		if err != nil {
			c.logger.Warn("variant resolution degraded to name forms", zap.String("entity", entity), zap.Error(err))
			metrics.ObserveSummarizerFallback("resolve_variants")
		}
		variants = []string{entity, strings.ToLower(entity)}
	}
	if len(variants) > c.cfg.MaxQueryVariants {
		variants = variants[:c.cfg.MaxQueryVariants]
	}
	return variants
}

func (c *Crawler) searchCommunity(
	ctx context.Context,
	entity, community string,
	variants []string,
	cutoff time.Time,
	days, minScore int,
) ([]miner.RawRecord, error) {
	posts, err := c.source.Search(ctx, community, variants, days, c.cfg.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", community, err)
	}
	if len(posts) > c.cfg.SearchLimit {
		posts = posts[:c.cfg.SearchLimit]
	}

	var records []miner.RawRecord
	var postCount, commentCount int
	for _, post := range posts {
		if post.CreatedAt.Before(cutoff) {
			continue
		}
		// Low-score-but-discussed content is still signal.
		if post.Score < minScore && post.ReplyCount < c.cfg.EngagementOverride {
			continue
		}
		records = append(records, c.postRecord(entity, community, post))
		postCount++

		if post.ReplyCount > c.cfg.ReplyFetchThreshold {
			replies, err := c.source.Replies(ctx, post)
			if err != nil {
				c.logger.Warn("reply fetch failed",
					zap.String("community", community),
					zap.String("post_id", post.ID),
					zap.Error(err),
				)
				continue
			}
			if len(replies) > c.cfg.ReplyLimit {
				replies = replies[:c.cfg.ReplyLimit]
			}
			for _, reply := range replies {
				if reply.Score < 0 {
					continue
				}
				records = append(records, c.replyRecord(entity, community, reply))
				commentCount++
			}
		}
	}
	metrics.ObserveRecords(entity, string(miner.RecordPost), postCount)
	metrics.ObserveRecords(entity, string(miner.RecordComment), commentCount)
	return records, nil
}

func (c *Crawler) postRecord(entity, community string, post miner.Post) miner.RawRecord {
	text := post.Title
	if post.Body != "" {
		text += "\n\n" + post.Body
	}
	text = truncate(text, c.cfg.TextLimit)
	return miner.RawRecord{
		ID:            post.ID,
		Kind:          miner.RecordPost,
		Author:        post.Author,
		Community:     community,
		Text:          text,
		OutboundURL:   post.OutboundURL,
		Permalink:     post.Permalink,
		CreatedAt:     post.CreatedAt,
		Score:         post.Score,
		ReplyCount:    post.ReplyCount,
		EvidenceURLs:  ExtractEvidenceURLs(text),
		MatchedEntity: entity,
	}
}

func (c *Crawler) replyRecord(entity, community string, reply miner.Reply) miner.RawRecord {
	text := truncate(reply.Body, c.cfg.TextLimit)
	return miner.RawRecord{
		ID:            reply.ID,
		Kind:          miner.RecordComment,
		Author:        reply.Author,
		Community:     community,
		Text:          text,
		Permalink:     reply.Permalink,
		CreatedAt:     reply.CreatedAt,
		Score:         reply.Score,
		EvidenceURLs:  ExtractEvidenceURLs(text),
		MatchedEntity: entity,
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
