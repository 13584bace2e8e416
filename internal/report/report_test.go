package report

import (
	"strings"
	"testing"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
)

func ranked(id, entity, text string, score int) miner.RankedRecord {
	return miner.RankedRecord{
		RawRecord: miner.RawRecord{
			ID:            id,
			Kind:          miner.RecordPost,
			Community:     "SaaS",
			Text:          text,
			Permalink:     "https://example.com/" + id,
			Score:         score,
			MatchedEntity: entity,
		},
		RankScore: float64(score),
	}
}

func TestHeaderCarriesCoverage(t *testing.T) {
	t.Parallel()

	cov := miner.Coverage{Days: 30, TotalThreads: 12, TotalComments: 40, TotalItemsUsed: 52, CommunitiesUsed: 3}
	got := Header("Acme", []string{"Globex", "Initech"}, cov, time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC))

	for _, want := range []string{
		"# Community Mentions Report: Acme",
		"Generated 2026-08-30 09:30 UTC",
		"Globex, Initech",
		"last 30 days",
		"12 threads and 40 comments across 3 communities",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("header missing %q:\n%s", want, got)
		}
	}
}

func TestAppendixCSVCapsAndQuotes(t *testing.T) {
	t.Parallel()

	records := make([]miner.RankedRecord, 0, 60)
	for i := 0; i < 60; i++ {
		records = append(records, ranked("r", "Acme", "plain text", i))
	}
	records[0].Text = `says "quoted", with comma`
	records[0].Aspect = miner.AspectNotLove

	got := AppendixCSV(records, AppendixLimit)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != AppendixLimit+1 {
		t.Fatalf("expected header plus %d rows, got %d lines", AppendixLimit, len(lines))
	}
	if lines[0] != "entity,aspect,excerpt,score,community,permalink,evidence" {
		t.Fatalf("bad header row: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"says ""quoted"", with comma"`) {
		t.Fatalf("csv quoting broken: %s", lines[1])
	}
}

func TestHeuristicBucketsByRegex(t *testing.T) {
	t.Parallel()

	input := miner.MiningInput{
		Entity:      "Acme",
		Competitors: []string{"Globex"},
		Days:        30,
	}
	records := []miner.RankedRecord{
		ranked("a", "Acme", "Acme just shipped v2.1 with a new changelog", 30),
		ranked("b", "Acme", "I love Acme, would recommend it to anyone", 20),
		ranked("c", "Acme", "This bug in Acme is a real problem for us", 10),
		ranked("d", "Globex", "Globex keeps being recommended around here", 5),
	}
	cov := miner.Coverage{Days: 30, TotalThreads: 4, TotalItemsUsed: 4, CommunitiesUsed: 1}

	rep := Heuristic(input, records, cov, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"## Acme",
		"### Launches and updates",
		"shipped v2.1",
		"### What people like",
		"### What people complain about",
		"## Globex",
		"## Takeaways",
		"```csv",
	} {
		if !strings.Contains(rep.Raw, want) {
			t.Fatalf("heuristic report missing %q", want)
		}
	}
	if rep.Takeaways == "" || rep.AppendixCSV == "" || rep.Header == "" {
		t.Fatal("derived artifacts must all be populated")
	}
	if !strings.Contains(rep.Takeaways, "4 mentions collected") {
		t.Fatalf("takeaways missing totals: %s", rep.Takeaways)
	}
}

func TestHeuristicNoMentionsEntity(t *testing.T) {
	t.Parallel()

	input := miner.MiningInput{Entity: "Acme", Competitors: []string{"Globex"}, Days: 7}
	records := []miner.RankedRecord{ranked("a", "Acme", "love it", 3)}

	rep := Heuristic(input, records, miner.Coverage{Days: 7}, time.Now())
	if !strings.Contains(rep.Raw, "No mentions found in the covered window.") {
		t.Fatal("competitor with zero mentions needs the empty-section note")
	}
}
