package crawler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeSource struct {
	posts   map[string][]miner.Post
	replies map[string][]miner.Reply
	fail    map[string]error
}

func (s *fakeSource) Search(_ context.Context, community string, _ []string, _, _ int) ([]miner.Post, error) {
	if err := s.fail[community]; err != nil {
		return nil, err
	}
	return s.posts[community], nil
}

func (s *fakeSource) Replies(_ context.Context, post miner.Post) ([]miner.Reply, error) {
	return s.replies[post.ID], nil
}

type fakeSummarizer struct {
	variants    []string
	variantsErr error
	filterErr   error
	filtered    func([]miner.RawRecord) []miner.RawRecord
}

func (s *fakeSummarizer) ResolveVariants(context.Context, string) ([]string, error) {
	return s.variants, s.variantsErr
}

func (s *fakeSummarizer) FilterRelevant(_ context.Context, records []miner.RawRecord, _ string) ([]miner.RawRecord, error) {
	if s.filterErr != nil {
		return nil, s.filterErr
	}
	if s.filtered != nil {
		return s.filtered(records), nil
	}
	return records, nil
}

func (s *fakeSummarizer) ClassifyAspects(_ context.Context, records []miner.RankedRecord, _ string) ([]miner.RankedRecord, error) {
	return records, nil
}

func (s *fakeSummarizer) ComposeSection(context.Context, string, []miner.RankedRecord, bool) (string, error) {
	return "", nil
}

func (s *fakeSummarizer) ComposeTakeaways(context.Context, string, map[string]int) (string, error) {
	return "", nil
}

func (s *fakeSummarizer) ProductContext(context.Context, string, string) (miner.ContextPack, error) {
	return miner.ContextPack{}, nil
}

func post(id, title string, score, replies int, created time.Time) miner.Post {
	return miner.Post{
		ID:         id,
		Title:      title,
		Author:     "user_" + id,
		Score:      score,
		ReplyCount: replies,
		CreatedAt:  created,
		Permalink:  "https://example.com/" + id,
	}
}

func TestSearchMergesCommunitiesInConfiguredOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)
	src := &fakeSource{
		posts: map[string][]miner.Post{
			"alpha": {post("p1", "Acme is great", 10, 0, recent), post("p2", "Acme pricing", 8, 0, recent)},
			"beta":  nil,
			"gamma": {post("p1", "Acme is great", 10, 0, recent)},
		},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}}, fakeClock{now}, Config{}, nil)

	got, err := c.Search(context.Background(), "Acme", []string{"alpha", "beta", "gamma"}, 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The duplicate id survives here; collapsing it is dedup's job. What the
	// crawl guarantees is the community-order concatenation.
	want := []string{"p1", "p2", "p1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s got %s", i, id, got[i].ID)
		}
		if got[i].MatchedEntity != "Acme" {
			t.Fatalf("record %s not tagged with entity", got[i].ID)
		}
	}
	if got[0].Community != "alpha" || got[2].Community != "gamma" {
		t.Fatalf("community tags wrong: %s / %s", got[0].Community, got[2].Community)
	}
}

func TestSearchScoreFilterWithEngagementOverride(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	src := &fakeSource{
		posts: map[string][]miner.Post{
			"alpha": {
				post("high", "passes on score", 9, 0, recent),
				post("low", "fails on score", 1, 0, recent),
				post("discussed", "low score but busy thread", 1, 3, recent),
				post("old", "fine score but stale", 50, 0, now.AddDate(0, 0, -40)),
			},
		},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}}, fakeClock{now}, Config{}, nil)

	got, err := c.Search(context.Background(), "Acme", []string{"alpha"}, 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "high" || got[1].ID != "discussed" {
		t.Fatalf("wrong survivors: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSearchFetchesRepliesAboveThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	src := &fakeSource{
		posts: map[string][]miner.Post{
			"alpha": {
				post("quiet", "five replies stays post-only", 10, 5, recent),
				post("busy", "six replies pulls comments", 10, 6, recent),
			},
		},
		replies: map[string][]miner.Reply{
			"busy": {
				{ID: "r1", Body: "useful take", Author: "a", Score: 4, CreatedAt: recent},
				{ID: "r2", Body: "downvoted noise", Author: "b", Score: -2, CreatedAt: recent},
				{ID: "r3", Body: "another take", Author: "c", Score: 0, CreatedAt: recent},
			},
		},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}}, fakeClock{now}, Config{}, nil)

	got, err := c.Search(context.Background(), "Acme", []string{"alpha"}, 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var comments []string
	for _, rec := range got {
		if rec.Kind == miner.RecordComment {
			comments = append(comments, rec.ID)
		}
	}
	if len(comments) != 2 || comments[0] != "r1" || comments[1] != "r3" {
		t.Fatalf("expected r1,r3 comments (negative r2 dropped), got %v", comments)
	}
}

func TestSearchPartialCommunityFailureDegrades(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	src := &fakeSource{
		posts: map[string][]miner.Post{
			"alpha": {post("p1", "Acme thread", 10, 0, recent)},
		},
		fail: map[string]error{"beta": errors.New("503 from upstream")},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}}, fakeClock{now}, Config{}, nil)

	got, err := c.Search(context.Background(), "Acme", []string{"alpha", "beta"}, 30, 5)
	if err != nil {
		t.Fatalf("one failed community must not fail the crawl: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("expected the healthy community's record, got %d records", len(got))
	}
}

func TestSearchAllCommunitiesFailedErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		fail: map[string]error{
			"alpha": errors.New("boom"),
			"beta":  errors.New("boom"),
		},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}}, fakeClock{now}, Config{}, nil)

	_, err := c.Search(context.Background(), "Acme", []string{"alpha", "beta"}, 30, 5)
	if !errors.Is(err, miner.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSearchKeepsAllWhenFilterFails(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	src := &fakeSource{
		posts: map[string][]miner.Post{
			"alpha": {post("p1", "thread one", 10, 0, recent), post("p2", "thread two", 10, 0, recent)},
		},
	}
	c := New(src, &fakeSummarizer{variants: []string{"Acme"}, filterErr: miner.ErrRateLimited}, fakeClock{now}, Config{}, nil)

	got, err := c.Search(context.Background(), "Acme", []string{"alpha"}, 30, 5)
	if err != nil {
		t.Fatalf("filter failure must degrade, not error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("keep-all fallback should retain both records, got %d", len(got))
	}
}

func TestResolveVariantsFallsBackToNameForms(t *testing.T) {
	t.Parallel()

	c := New(&fakeSource{}, &fakeSummarizer{variantsErr: errors.New("llm down")}, fakeClock{time.Now()}, Config{}, nil)

	got := c.resolveVariants(context.Background(), "Acme")
	if len(got) != 2 || got[0] != "Acme" || got[1] != "acme" {
		t.Fatalf("expected {Acme, acme}, got %v", got)
	}
}

func TestTruncateRespectsRuneBoundary(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("é", 600)
	got := truncate(s, 500)
	if len([]rune(got)) != 500 {
		t.Fatalf("expected 500 runes, got %d", len([]rune(got)))
	}
}

func TestExtractEvidenceURLs(t *testing.T) {
	t.Parallel()

	text := "See https://github.com/acme/acme and https://news.site/story plus https://acme.dev/blog/v2"
	got := ExtractEvidenceURLs(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 evidence urls, got %v", got)
	}
	if got[0] != "https://github.com/acme/acme" || got[1] != "https://acme.dev/blog/v2" {
		t.Fatalf("wrong urls: %v", got)
	}
}
