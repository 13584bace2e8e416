package crawler

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// evidenceDomains are substrings marking a link as a credible primary source:
// code hosting, blog/docs/changelog paths, long-form publishing platforms.
var evidenceDomains = []string{
	"github.com",
	"/blog/",
	"/docs/",
	"/changelog",
	"medium.com",
	"substack.com",
}

// ExtractEvidenceURLs pulls URLs out of free text and keeps only those
// matching the primary-source allow-list, in order of appearance.
func ExtractEvidenceURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var out []string
	for _, u := range matches {
		lower := strings.ToLower(u)
		for _, domain := range evidenceDomains {
			if strings.Contains(lower, domain) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}
