// Package risk scores matched clauses across four weighted categories
// (legal, privacy, security, commercial), detects contractual exception
// patterns with a configurable regex catalog, and assembles the agreement
// risk report with an optional model-written narrative.
package risk

import (
	"log/slog"
)

// category weights for the overall score. Legal carries the most weight.
var categoryWeights = map[string]float64{
	"legal":      0.30,
	"privacy":    0.25,
	"security":   0.25,
	"commercial": 0.20,
}

// severity increments added to a category's base score per exception hit.
var severityIncrements = map[string]float64{
	"critical": 0.4,
	"high":     0.3,
	"medium":   0.2,
	"low":      0.1,
}

// ClauseRisk is the per-clause scoring result.
type ClauseRisk struct {
	SectionID      string             `json:"section_id"`
	ClauseType     string             `json:"clause_type"`
	CategoryScores map[string]float64 `json:"category_scores"`
	OverallScore   float64            `json:"overall_score"`
	Exceptions     []Exception        `json:"exceptions"`
	RiskLevel      string             `json:"risk_level"`
}

// Config configures the Scorer.
type Config struct {
	// Patterns is the exception catalog. Defaults to DefaultPatterns().
	Patterns []Pattern `json:"-" yaml:"-"`

	// Logger for progress messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() error {
	if c.Patterns == nil {
		c.Patterns = DefaultPatterns()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return compilePatterns(c.Patterns)
}

// Scorer scores clauses against the configured catalog.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer, compiling the pattern catalog once up front.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// ScoreClause scores one matched clause: exception detection, per-category
// scores, weighted overall score, and the derived risk level.
func (s *Scorer) ScoreClause(sectionID, clauseType, text string) ClauseRisk {
	exceptions := detectExceptions(text, s.cfg.Patterns)
	scores := categoryScores(clauseType, exceptions)
	overall := overallScore(scores)
	return ClauseRisk{
		SectionID:      sectionID,
		ClauseType:     clauseType,
		CategoryScores: scores,
		OverallScore:   overall,
		Exceptions:     exceptions,
		RiskLevel:      Level(overall),
	}
}

// categoryScores computes every category's score: a base of 0.3, bumped by
// the clause type's inherent exposure, plus severity increments for each
// exception detected in that category. Clamped to 1.0.
func categoryScores(clauseType string, exceptions []Exception) map[string]float64 {
	bump := 0.0
	switch clauseType {
	case "indemnification", "liability", "warranties":
		bump = 0.3
	case "confidentiality", "data_protection":
		bump = 0.2
	case "term", "termination":
		bump = 0.1
	}

	scores := make(map[string]float64, len(categoryWeights))
	for name := range categoryWeights {
		score := 0.3 + bump
		for _, e := range exceptions {
			if e.Category != name {
				continue
			}
			score += severityIncrements[e.Severity]
		}
		scores[name] = min(score, 1.0)
	}
	return scores
}

// overallScore is the weight-normalized mean of the category scores.
func overallScore(scores map[string]float64) float64 {
	var weighted, total float64
	for name, score := range scores {
		w := categoryWeights[name]
		weighted += score * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Level maps a score in [0,1] to a named risk level.
func Level(score float64) string {
	switch {
	case score >= 0.8:
		return "critical"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
