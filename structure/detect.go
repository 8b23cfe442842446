package structure

import (
	"fmt"
	"regexp"
)

// tablePatterns and exhibitPatterns are independent data-driven rule sets so
// they can be extended and tested apart from the builder.
var tablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\|\s*\w+`),       // pipe-delimited row
	regexp.MustCompile(`\t\w+`),          // tab-delimited row
	regexp.MustCompile(`(?i)Table\s+\d+`), // "Table 3"
}

var exhibitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Exhibit\s+[A-Z0-9]`),
	regexp.MustCompile(`(?i)Attachment\s+[A-Z0-9]`),
	regexp.MustCompile(`(?i)Schedule\s+[A-Z0-9]`),
}

func detectTables(flat []*Section) []Ref {
	return detect(flat, tablePatterns)
}

func detectExhibits(flat []*Section) []Ref {
	return detect(flat, exhibitPatterns)
}

func detect(flat []*Section, patterns []*regexp.Regexp) []Ref {
	var refs []Ref
	for _, s := range flat {
		if !matchesAny(s.Text, patterns) {
			continue
		}
		loc := "Unknown"
		if s.PageFrom > 0 {
			loc = fmt.Sprintf("Page %d", s.PageFrom)
		}
		refs = append(refs, Ref{SectionID: s.ID, Heading: s.Heading, Location: loc})
	}
	return refs
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
