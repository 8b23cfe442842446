package risk

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is one named exception detector: any of its regexes firing on
// clause text records an exception in the pattern's category.
type Pattern struct {
	Name        string   `json:"name" yaml:"name"`
	Category    string   `json:"category" yaml:"category"`
	Severity    string   `json:"severity" yaml:"severity"`
	Patterns    []string `json:"patterns" yaml:"patterns"`
	Description string   `json:"description" yaml:"description"`
	Mitigation  string   `json:"mitigation" yaml:"mitigation"`

	compiled []*regexp.Regexp
}

// Exception is one pattern hit inside a clause.
type Exception struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
	MatchedText string `json:"matched_text"`
	Position    int    `json:"position"`
}

// DefaultPatterns is the built-in exception catalog. Deployments can replace
// it with LoadPatterns to tune detection without a rebuild.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "Auto-Renewal Trap",
			Category: "commercial",
			Severity: "high",
			Patterns: []string{
				`automatic\s+renewal`,
				`auto\s*[-]?\s*renew`,
				`continues\s+until\s+terminated`,
				`perpetual\s+unless\s+terminated`,
			},
			Description: "Automatic renewal clauses that may trap the company",
			Mitigation:  "Add explicit termination notice requirements",
		},
		{
			Name:     "Most Favored Nation",
			Category: "commercial",
			Severity: "medium",
			Patterns: []string{
				`most\s+favored\s+nation`,
				`mfn\s+clause`,
				`best\s+pricing\s+guarantee`,
			},
			Description: "MFN clauses that may limit pricing flexibility",
			Mitigation:  "Review pricing strategy impact and consider carve-outs",
		},
		{
			Name:     "One-Sided Indemnity",
			Category: "legal",
			Severity: "critical",
			Patterns: []string{
				`indemnify.*\b(?:us|our|company|buyer)\b.*\b(?:against|from)\b.*\b(?:all|any)\b`,
				`unlimited\s+indemnification`,
				`without\s+limitation.*indemnify`,
			},
			Description: "Unlimited or one-sided indemnification obligations",
			Mitigation:  "Cap indemnification amounts and add mutual indemnity",
		},
		{
			Name:     "Data Export",
			Category: "privacy",
			Severity: "high",
			Patterns: []string{
				`data\s+export.*\b(?:outside|foreign|third\s+party)\b`,
				`transfer.*\b(?:data|information)\b.*\b(?:country|jurisdiction)\b`,
				`cross\s*[-]?\s*border.*\b(?:transfer|processing)\b`,
			},
			Description: "Data export clauses that may violate privacy laws",
			Mitigation:  "Add data protection safeguards and adequacy determinations",
		},
		{
			Name:     "Unlimited Liability",
			Category: "legal",
			Severity: "critical",
			Patterns: []string{
				`unlimited\s+liability`,
				`no\s+limitation.*liability`,
				`liability.*\b(?:all|any)\b.*\b(?:damages|losses)\b`,
			},
			Description: "Unlimited liability exposure",
			Mitigation:  "Add liability caps and exclusions for consequential damages",
		},
		{
			Name:     "Step-Down Pricing",
			Category: "commercial",
			Severity: "medium",
			Patterns: []string{
				`step\s*[-]?\s*down.*\b(?:pricing|rates|fees)\b`,
				`volume\s+discount.*\b(?:reduction|decrease)\b`,
				`pricing.*\b(?:decrease|reduction)\b.*\b(?:over\s+time|annually)\b`,
			},
			Description: "Step-down pricing that may reduce revenue over time",
			Mitigation:  "Review pricing strategy and consider minimum commitments",
		},
	}
}

// LoadPatterns reads a pattern catalog from a YAML file and compiles it.
func LoadPatterns(path string) ([]Pattern, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern catalog: %w", err)
	}
	var doc struct {
		Patterns []Pattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse pattern catalog %s: %w", path, err)
	}
	if err := compilePatterns(doc.Patterns); err != nil {
		return nil, err
	}
	return doc.Patterns, nil
}

// compilePatterns compiles every expression case-insensitively. Matching
// runs on the original text, so exception spans are exact byte offsets.
func compilePatterns(patterns []Pattern) error {
	for i := range patterns {
		p := &patterns[i]
		p.compiled = p.compiled[:0]
		for _, expr := range p.Patterns {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return fmt.Errorf("pattern %q: compile %q: %w", p.Name, expr, err)
			}
			p.compiled = append(p.compiled, re)
		}
	}
	return nil
}

// detectExceptions runs every pattern against the clause text and records
// each hit with its matched span.
func detectExceptions(text string, patterns []Pattern) []Exception {
	var out []Exception
	for _, p := range patterns {
		for _, re := range p.compiled {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				out = append(out, Exception{
					Name:        p.Name,
					Category:    p.Category,
					Severity:    p.Severity,
					Description: p.Description,
					Mitigation:  p.Mitigation,
					MatchedText: text[loc[0]:loc[1]],
					Position:    loc[0],
				})
			}
		}
	}
	return out
}
