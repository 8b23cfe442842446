package structure

import (
	"regexp"
	"strings"
)

// numberPatterns are tried in order against the start of a trimmed heading;
// the first match wins. Order matters: the most specific dotted forms come
// first so "1.2.3 Scope" is not captured as "1.".
var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+\.\d+\.?\d*\.?)`), // 1.2.3 or 1.2.3.
	regexp.MustCompile(`^(\d+\.\d+)`),          // 1.2
	regexp.MustCompile(`^(\d+\.)`),             // 1.
	regexp.MustCompile(`^(\d+\))`),             // 1)
	regexp.MustCompile(`^([IVX]+\.)`),          // IV.
	regexp.MustCompile(`^([A-Z]\.)`),           // A.
	regexp.MustCompile(`^([a-z]\.)`),           // a.
}

// ExtractNumber returns the leading numbering label of a heading, or ""
// when the heading carries none.
func ExtractNumber(heading string) string {
	trimmed := strings.TrimSpace(heading)
	for _, pat := range numberPatterns {
		if m := pat.FindStringSubmatch(trimmed); m != nil {
			return m[1]
		}
	}
	return ""
}
