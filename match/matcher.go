// Package match scores agreement sections against the clause library by
// fusing three signals: embedding cosine similarity, rule-based lexical
// overlap, and an optional language-model opinion.
//
// Each matchable section keeps at most its single best-scoring clause, and
// only when the fused confidence clears the acceptance threshold. Signal
// failures degrade to zero for that signal instead of failing the run, so a
// missing embedding server or model key lowers confidence rather than
// breaking the pipeline.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veritract/veritract/clauselib"
	"github.com/veritract/veritract/embedding"
	"github.com/veritract/veritract/llm"
	"github.com/veritract/veritract/structure"
)

// Match is one accepted (section, library clause) pairing. It is the unit of
// the clause_matches artifact consumed by the risk scorer and the playbook
// engine; ClauseType and Text are carried forward so those stages need no
// second artifact.
type Match struct {
	SectionID         string  `json:"section_id"`
	LibraryClauseID   string  `json:"library_clause_id"`
	Confidence        float64 `json:"confidence"`
	Coverage          float64 `json:"coverage"`
	MatchType         string  `json:"match_type"`
	Reasoning         string  `json:"reasoning"`
	SuggestedPosition string  `json:"suggested_position,omitempty"`
	RiskScore         float64 `json:"risk_score"`
	ClauseType        string  `json:"clause_type"`
	Text              string  `json:"text"`
}

// Config configures the Matcher. The threshold and weights are pointers so
// an explicit zero (disable a signal, accept everything) is distinct from
// leaving the field unset.
type Config struct {
	// AcceptThreshold is the minimum fused confidence for a match to be kept.
	// Default: 0.5.
	AcceptThreshold *float64 `json:"accept_threshold" yaml:"accept_threshold"`

	// SemanticWeight, LexicalWeight, and ModelWeight blend the three signals.
	// Defaults: 0.4, 0.3, 0.3.
	SemanticWeight *float64 `json:"semantic_weight" yaml:"semantic_weight"`
	LexicalWeight  *float64 `json:"lexical_weight" yaml:"lexical_weight"`
	ModelWeight    *float64 `json:"model_weight" yaml:"model_weight"`

	// Embedder supplies section and clause vectors.
	Embedder embedding.Embedder `json:"-" yaml:"-"`

	// Classifier supplies the model opinion. Optional.
	Classifier llm.Classifier `json:"-" yaml:"-"`

	// Logger for signal-degradation warnings. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func f64(v float64) *float64 { return &v }

func (c *Config) defaults() {
	if c.AcceptThreshold == nil {
		c.AcceptThreshold = f64(0.5)
	}
	if c.SemanticWeight == nil {
		c.SemanticWeight = f64(0.4)
	}
	if c.LexicalWeight == nil {
		c.LexicalWeight = f64(0.3)
	}
	if c.ModelWeight == nil {
		c.ModelWeight = f64(0.3)
	}
	if c.Embedder == nil {
		c.Embedder = embedding.New(embedding.Config{})
	}
	if c.Classifier == nil {
		c.Classifier = llm.New(llm.Config{})
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Matcher fuses match signals for one configured library.
type Matcher struct {
	cfg       Config
	threshold float64
	wSemantic float64
	wLexical  float64
	wModel    float64
}

// New creates a Matcher.
func New(cfg Config) *Matcher {
	cfg.defaults()
	return &Matcher{
		cfg:       cfg,
		threshold: *cfg.AcceptThreshold,
		wSemantic: *cfg.SemanticWeight,
		wLexical:  *cfg.LexicalWeight,
		wModel:    *cfg.ModelWeight,
	}
}

// Embedder exposes the configured embedding client so callers can reuse it
// for library maintenance.
func (m *Matcher) Embedder() embedding.Embedder { return m.cfg.Embedder }

// Match scores every matchable leaf section of the tree against the library
// and returns the accepted matches in document order. An empty library or an
// empty tree yields an empty result, not an error.
func (m *Matcher) Match(ctx context.Context, tree *structure.Tree, clauses []clauselib.Clause) ([]Match, error) {
	leaves := tree.Leaves()
	if len(leaves) == 0 || len(clauses) == 0 {
		return []Match{}, nil
	}

	if _, err := clauselib.EnsureEmbeddings(ctx, m.cfg.Embedder, clauses); err != nil {
		// Semantic signal degrades to zero; lexical and model signals still run.
		m.cfg.Logger.Warn("library embeddings unavailable", "error", err)
	}

	matches := make([]Match, 0, len(leaves))
	for _, leaf := range leaves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		secVec, err := m.cfg.Embedder.Embed(ctx, leaf.Text)
		if err != nil {
			m.cfg.Logger.Warn("section embedding failed", "section_id", leaf.ID, "error", err)
			secVec = nil
		}

		if best, ok := m.bestMatch(ctx, leaf, secVec, clauses); ok {
			matches = append(matches, best)
		}
	}

	m.cfg.Logger.Info("clause matching done",
		"sections", len(leaves),
		"matches", len(matches),
		"library_size", len(clauses))
	return matches, nil
}

// bestMatch returns the highest-scoring clause for one section, or ok=false
// when nothing clears the acceptance threshold.
func (m *Matcher) bestMatch(ctx context.Context, leaf *structure.Section, secVec []float32, clauses []clauselib.Clause) (Match, bool) {
	var best Match
	bestScore := 0.0
	found := false

	for _, clause := range clauses {
		semantic := embedding.CosineSimilarity(secVec, clause.Embedding)
		lexical, lexReasoning := lexicalScore(leaf.Text, clause.Text)

		opinion, err := m.cfg.Classifier.Classify(ctx, leaf.Text, clause.Text)
		if err != nil {
			m.cfg.Logger.Warn("model classification failed",
				"section_id", leaf.ID, "clause_id", clause.ID, "error", err)
			opinion = llm.Opinion{Reasoning: "model signal unavailable: " + err.Error()}
		}

		combined := semantic*m.wSemantic + lexical*m.wLexical + opinion.Confidence*m.wModel
		if combined <= bestScore || combined <= m.threshold {
			continue
		}

		bestScore = combined
		found = true
		best = Match{
			SectionID:       leaf.ID,
			LibraryClauseID: clause.ID,
			Confidence:      combined,
			Coverage:        coverage(leaf.Text, clause.Text),
			MatchType:       "hybrid",
			Reasoning: strings.Join([]string{
				fmt.Sprintf("semantic: %.2f, lexical: %.2f, model: %.2f", semantic, lexical, opinion.Confidence),
				lexReasoning,
				opinion.Reasoning,
			}, ". "),
			SuggestedPosition: opinion.Position,
			RiskScore:         riskScore(clause.RiskLevel, combined),
			ClauseType:        clause.ClauseType,
			Text:              leaf.Text,
		}
	}

	return best, found
}

// coverage is the fraction of the clause's word set present in the section.
func coverage(sectionText, clauseText string) float64 {
	clauseWords := wordSet(clauseText)
	if len(clauseWords) == 0 {
		return 0
	}
	sectionWords := wordSet(sectionText)
	hits := 0
	for w := range clauseWords {
		if sectionWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(clauseWords))
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

// riskScore derives a proxy risk from the clause's residual risk level and
// the match confidence. A confident match on a high-risk clause raises the
// score; on anything else, low confidence discounts it.
func riskScore(riskLevel string, confidence float64) float64 {
	base := 0.5
	switch riskLevel {
	case "low":
		base = 0.3
	case "medium":
		base = 0.6
	case "high":
		base = 0.9
	}
	if riskLevel == "high" {
		return min(1.0, base+confidence*0.1)
	}
	return base * confidence
}
