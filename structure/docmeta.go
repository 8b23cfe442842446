package structure

import (
	"regexp"
	"strings"
)

var (
	partiesPattern = regexp.MustCompile(`between\s+([^,]+?)\s+and\s+([^,]+?)(?:\s|$)`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)effective\s+date[:\s]+([^,\n]+)`),
		regexp.MustCompile(`(?i)commencement\s+date[:\s]+([^,\n]+)`),
		regexp.MustCompile(`(?i)start\s+date[:\s]+([^,\n]+)`),
	}

	lawPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)governed\s+by\s+the\s+laws\s+of\s+([^,\n]+)`),
		regexp.MustCompile(`(?i)governing\s+law[:\s]+([^,\n]+)`),
		regexp.MustCompile(`(?i)applicable\s+law[:\s]+([^,\n]+)`),
	}
)

// extractDocMeta scans the first maxSections top-level sections for parties,
// effective date, and governing law. Preamble boilerplate lives up front, so
// a bounded scan keeps this cheap on large agreements.
func extractDocMeta(roots []*Section, maxSections int) DocMeta {
	var meta DocMeta

	limit := min(maxSections, len(roots))
	for _, s := range roots[:limit] {
		text := strings.ToLower(s.Text)

		if len(meta.Parties) == 0 && strings.Contains(text, "between") && strings.Contains(text, "and") {
			if m := partiesPattern.FindStringSubmatch(text); m != nil {
				meta.Parties = []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2])}
			}
		}

		if meta.EffectiveDate == "" {
			for _, pat := range datePatterns {
				if m := pat.FindStringSubmatch(text); m != nil {
					meta.EffectiveDate = strings.TrimSpace(m[1])
					break
				}
			}
		}

		if meta.GoverningLaw == "" {
			for _, pat := range lawPatterns {
				if m := pat.FindStringSubmatch(text); m != nil {
					meta.GoverningLaw = strings.TrimSpace(m[1])
					break
				}
			}
		}
	}

	return meta
}
