// Package report assembles the markdown report artifacts: the header, the
// CSV appendix, and the regex-only heuristic report used when the
// Summarizer-composed one cannot be delivered in time.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/userpulse/insight-miner/internal/miner"
)

// AppendixLimit caps how many records the CSV appendix carries.
const AppendixLimit = 50

// Header renders the report preamble with the coverage line.
func Header(entity string, competitors []string, cov miner.Coverage, generatedAt time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Community Mentions Report: %s\n\n", entity)
	fmt.Fprintf(&sb, "Generated %s\n\n", generatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	if len(competitors) > 0 {
		fmt.Fprintf(&sb, "Tracked against: %s\n\n", strings.Join(competitors, ", "))
	}
	fmt.Fprintf(&sb, "Coverage: last %d days, %d threads and %d comments across %d communities, %d items used.\n",
		cov.Days, cov.TotalThreads, cov.TotalComments, cov.CommunitiesUsed, cov.TotalItemsUsed)
	return sb.String()
}

// AppendixCSV renders the top records as a CSV block for spreadsheet import.
// Records are assumed already ranked best first.
func AppendixCSV(records []miner.RankedRecord, limit int) string {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"entity", "aspect", "excerpt", "score", "community", "permalink", "evidence"})
	for _, rec := range records[:limit] {
		w.Write([]string{
			rec.MatchedEntity,
			string(rec.Aspect),
			excerpt(rec.Text, 160),
			strconv.Itoa(rec.Score),
			rec.Community,
			rec.Permalink,
			strings.Join(rec.EvidenceURLs, " "),
		})
	}
	w.Flush()
	return buf.String()
}

// Sentiment regexes for the heuristic report. Deliberately crude; this path
// only runs when the Summarizer could not deliver.
var (
	launchRx   = regexp.MustCompile(`(?i)\b(launch|release|ship|shipped|announc|changelog|version \d|v\d+\.\d+|beta|GA)\b`)
	positiveRx = regexp.MustCompile(`(?i)\b(love|great|awesome|amazing|excellent|recommend|switched to|impressed|favorite)\b`)
	negativeRx = regexp.MustCompile(`(?i)\b(hate|annoy|bug|broken|issue|problem|frustrat|switched from|disappoint|terrible|churn)\b`)
)

func classify(text string) miner.Aspect {
	switch {
	case launchRx.MatchString(text):
		return miner.AspectLaunch
	case negativeRx.MatchString(text):
		return miner.AspectNotLove
	case positiveRx.MatchString(text):
		return miner.AspectLove
	default:
		return miner.AspectLove
	}
}

// Heuristic builds a complete report from the ranked corpus alone, with no
// Summarizer involvement. Sections are bullet lists of top excerpts grouped
// by regex-derived aspect.
func Heuristic(input miner.MiningInput, records []miner.RankedRecord, cov miner.Coverage, generatedAt time.Time) miner.Report {
	header := Header(input.Entity, input.Competitors, cov, generatedAt)

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n_Heuristic report: composed without language-model summarization._\n")

	mentions := make(map[string]int, len(input.Entities()))
	for _, entity := range input.Entities() {
		var launches, loves, gripes []miner.RankedRecord
		for _, rec := range records {
			if rec.MatchedEntity != entity {
				continue
			}
			mentions[entity]++
			aspect := rec.Aspect
			if aspect == "" {
				aspect = classify(rec.Text)
			}
			switch aspect {
			case miner.AspectLaunch:
				launches = append(launches, rec)
			case miner.AspectNotLove:
				gripes = append(gripes, rec)
			default:
				loves = append(loves, rec)
			}
		}

		fmt.Fprintf(&sb, "\n## %s\n", entity)
		if mentions[entity] == 0 {
			sb.WriteString("\nNo mentions found in the covered window.\n")
			continue
		}
		writeBucket(&sb, "Launches and updates", launches)
		writeBucket(&sb, "What people like", loves)
		writeBucket(&sb, "What people complain about", gripes)
	}

	takeaways := HeuristicTakeaways(input.Entity, mentions)
	sb.WriteString("\n## Takeaways\n\n")
	sb.WriteString(takeaways)

	appendix := AppendixCSV(records, AppendixLimit)
	sb.WriteString("\n\n## Appendix\n\n```csv\n")
	sb.WriteString(appendix)
	sb.WriteString("```\n")

	return miner.Report{
		Header:      header,
		Takeaways:   takeaways,
		AppendixCSV: appendix,
		Raw:         sb.String(),
	}
}

func writeBucket(sb *strings.Builder, title string, records []miner.RankedRecord) {
	if len(records) == 0 {
		return
	}
	if len(records) > 5 {
		records = records[:5]
	}
	fmt.Fprintf(sb, "\n### %s\n\n", title)
	for _, rec := range records {
		fmt.Fprintf(sb, "- %s ([%s](%s), score %d)\n", excerpt(rec.Text, 160), rec.Community, rec.Permalink, rec.Score)
	}
}

// HeuristicTakeaways renders mention-count takeaway bullets without the
// Summarizer. Also serves as the compose-stage fallback.
func HeuristicTakeaways(entity string, mentions map[string]int) string {
	var sb strings.Builder
	total := 0
	for _, n := range mentions {
		total += n
	}
	fmt.Fprintf(&sb, "- %d mentions collected across all tracked entities.\n", total)
	fmt.Fprintf(&sb, "- %s accounted for %d of them.\n", entity, mentions[entity])
	names := make([]string, 0, len(mentions))
	for name := range mentions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if n := mentions[name]; name != entity && n > mentions[entity] {
			fmt.Fprintf(&sb, "- %s out-mentioned %s (%d vs %d); worth a closer look.\n", name, entity, n, mentions[entity])
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
