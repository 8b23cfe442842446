package playbook

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veritract/veritract/match"
)

// ChangeSet is one normalized redline edit against a section.
type ChangeSet struct {
	SectionID   string  `json:"section_id"`
	ClauseType  string  `json:"clause_type"`
	Operation   string  `json:"operation"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	NewText     string  `json:"new_text"`
	Comment     string  `json:"comment"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// Redline is the redline artifact for one agreement.
type Redline struct {
	AgreementID        string      `json:"agreement_id"`
	PlaybookID         string      `json:"playbook_id"`
	ChangeSets         []ChangeSet `json:"change_sets"`
	CoveragePercentage float64     `json:"coverage_percentage"`
	RiskScore          float64     `json:"risk_score"`
	Summary            string      `json:"summary"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// Config configures the Engine.
type Config struct {
	// MinConfidence is the match confidence below which a clause is left
	// untouched. Default: 0.7.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// Logger for progress messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.7
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine applies playbooks to matched clauses.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg}
}

// Apply walks every match with a playbook position for its clause type and
// produces the redline. Coverage is the share of matches a position existed
// for; the risk score is the change-set mean of confidence times the
// position's risk weight.
func (e *Engine) Apply(agreementID string, pb *Playbook, matches []match.Match) *Redline {
	var changes []ChangeSet
	var weighted float64
	processed := 0

	for _, m := range matches {
		pos, ok := pb.Positions[m.ClauseType]
		if !ok {
			continue
		}
		processed++

		cs, ok := e.applyPosition(m, pos)
		if !ok {
			continue
		}
		changes = append(changes, cs)
		weighted += cs.Confidence * pos.RiskWeight
	}

	coverage := 0.0
	if len(matches) > 0 {
		coverage = float64(processed) / float64(len(matches)) * 100
	}
	riskScore := 0.0
	if len(changes) > 0 {
		riskScore = weighted / float64(len(changes))
	}

	r := &Redline{
		AgreementID:        agreementID,
		PlaybookID:         pb.ID,
		ChangeSets:         changes,
		CoveragePercentage: coverage,
		RiskScore:          riskScore,
		Summary:            fmt.Sprintf("Generated %d changes covering %.1f%% of clauses", len(changes), coverage),
		GeneratedAt:        time.Now().UTC(),
	}

	e.cfg.Logger.Info("redline generated",
		"agreement_id", agreementID,
		"playbook_id", pb.ID,
		"change_sets", len(changes),
		"coverage_pct", coverage,
		"risk_score", riskScore)
	return r
}

// applyPosition decides what, if anything, to do about one matched clause.
// Precedence: low-confidence matches and text already on the preferred
// position are skipped; unacceptable terms force a replacement; text on the
// fallback position is upgraded; anything else is aligned to the playbook.
func (e *Engine) applyPosition(m match.Match, pos Position) (ChangeSet, bool) {
	if m.Confidence < e.cfg.MinConfidence {
		return ChangeSet{}, false
	}

	current := normalizeText(m.Text)
	if current == normalizeText(pos.PreferredText) {
		return ChangeSet{}, false
	}

	var comment string
	switch {
	case firstUnacceptable(current, pos.UnacceptableTerms) != "":
		term := firstUnacceptable(current, pos.UnacceptableTerms)
		comment = fmt.Sprintf("Replaced unacceptable term %q with preferred %s clause", term, m.ClauseType)
	case pos.FallbackText != "" && current == normalizeText(pos.FallbackText):
		comment = fmt.Sprintf("Upgraded %s clause to preferred position", m.ClauseType)
	default:
		comment = fmt.Sprintf("Updated %s clause to align with playbook", m.ClauseType)
	}

	return ChangeSet{
		SectionID:   m.SectionID,
		ClauseType:  m.ClauseType,
		Operation:   "replace",
		StartOffset: 0,
		EndOffset:   len(m.Text),
		NewText:     pos.PreferredText,
		Comment:     comment,
		Confidence:  m.Confidence,
		Rationale:   pos.Reasoning,
	}, true
}

func firstUnacceptable(normalized string, terms []string) string {
	for _, t := range terms {
		if t != "" && strings.Contains(normalized, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}
