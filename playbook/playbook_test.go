package playbook

import (
	"strings"
	"testing"

	"github.com/veritract/veritract/match"
)

const preferredTerm = "This Agreement shall remain in effect for a period of three (3) years from the Effective Date."
const fallbackTerm = "This Agreement shall remain in effect for a period of two (2) years from the Effective Date."

func testPlaybook() *Playbook {
	return &Playbook{
		ID:           "pb_nda_us",
		Name:         "Standard NDA Playbook",
		ContractType: "NDA",
		Jurisdiction: "US",
		Positions: map[string]Position{
			"term": {
				ClauseType:        "term",
				PreferredText:     preferredTerm,
				FallbackText:      fallbackTerm,
				UnacceptableTerms: []string{"perpetual", "indefinite", "auto-renewal"},
				RiskWeight:        0.8,
				Reasoning:         "Reasonable term with clear expiration",
			},
			"governing_law": {
				ClauseType:    "governing_law",
				PreferredText: "This Agreement shall be governed by the laws of the State of Delaware.",
				RiskWeight:    0.6,
			},
		},
	}
}

func TestParse(t *testing.T) {
	raw := []byte(`
id: pb_nda_us
name: Standard NDA Playbook
contract_type: NDA
jurisdiction: US
positions:
  term:
    preferred_text: three year term
    fallback_text: two year term
    unacceptable_terms: [perpetual]
    risk_weight: 0.8
  governing_law:
    preferred_text: Delaware law
`)
	pb, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pb.ID != "pb_nda_us" || len(pb.Positions) != 2 {
		t.Fatalf("playbook = %+v", pb)
	}

	term := pb.Positions["term"]
	if term.ClauseType != "term" {
		t.Fatalf("clause_type not defaulted from key: %q", term.ClauseType)
	}
	law := pb.Positions["governing_law"]
	if law.RiskWeight != 1.0 {
		t.Fatalf("risk_weight not defaulted: %v", law.RiskWeight)
	}
}

func TestParseRejectsMissingPreferred(t *testing.T) {
	if _, err := Parse([]byte("id: pb\npositions:\n  term: {fallback_text: x}\n")); err == nil {
		t.Fatal("expected error for position without preferred text")
	}
}

func TestApplyReplacesUnacceptableTerm(t *testing.T) {
	e := NewEngine(Config{})
	matches := []match.Match{{
		SectionID:  "sec_1",
		ClauseType: "term",
		Confidence: 0.9,
		Text:       "This Agreement is perpetual and remains in force indefinitely.",
	}}

	r := e.Apply("agr_1", testPlaybook(), matches)
	if len(r.ChangeSets) != 1 {
		t.Fatalf("change sets = %+v", r.ChangeSets)
	}

	cs := r.ChangeSets[0]
	if cs.Operation != "replace" || cs.NewText != preferredTerm {
		t.Fatalf("change set = %+v", cs)
	}
	if cs.StartOffset != 0 || cs.EndOffset != len(matches[0].Text) {
		t.Fatalf("offsets = %d..%d", cs.StartOffset, cs.EndOffset)
	}
	if !strings.Contains(cs.Comment, `"perpetual"`) {
		t.Fatalf("comment = %q, want the offending term named", cs.Comment)
	}
	if cs.Confidence != 0.9 || cs.Rationale == "" {
		t.Fatalf("change set = %+v", cs)
	}
}

func TestApplySkipsLowConfidence(t *testing.T) {
	e := NewEngine(Config{})
	r := e.Apply("agr_1", testPlaybook(), []match.Match{{
		SectionID: "sec_1", ClauseType: "term", Confidence: 0.69, Text: "perpetual term",
	}})

	if len(r.ChangeSets) != 0 {
		t.Fatalf("change sets = %+v, want none below confidence floor", r.ChangeSets)
	}
	if r.CoveragePercentage != 100 {
		t.Fatalf("coverage = %.1f, want 100 (position existed and was processed)", r.CoveragePercentage)
	}
}

func TestApplySkipsTextAlreadyPreferred(t *testing.T) {
	e := NewEngine(Config{})
	r := e.Apply("agr_1", testPlaybook(), []match.Match{{
		SectionID:  "sec_1",
		ClauseType: "term",
		Confidence: 0.95,
		Text:       "  this agreement shall remain in effect for a period of three (3) years   from the effective date. ",
	}})

	if len(r.ChangeSets) != 0 {
		t.Fatalf("change sets = %+v, want none when text equals preferred position", r.ChangeSets)
	}
}

func TestApplyUpgradesFallback(t *testing.T) {
	e := NewEngine(Config{})
	r := e.Apply("agr_1", testPlaybook(), []match.Match{{
		SectionID: "sec_1", ClauseType: "term", Confidence: 0.85, Text: fallbackTerm,
	}})

	if len(r.ChangeSets) != 1 {
		t.Fatalf("change sets = %+v", r.ChangeSets)
	}
	if !strings.Contains(r.ChangeSets[0].Comment, "Upgraded term clause") {
		t.Fatalf("comment = %q", r.ChangeSets[0].Comment)
	}
	if r.ChangeSets[0].NewText != preferredTerm {
		t.Fatalf("new_text = %q", r.ChangeSets[0].NewText)
	}
}

func TestApplyDefaultAlignment(t *testing.T) {
	e := NewEngine(Config{})
	r := e.Apply("agr_1", testPlaybook(), []match.Match{{
		SectionID: "sec_1", ClauseType: "term", Confidence: 0.8,
		Text: "This Agreement lasts five years.",
	}})

	if len(r.ChangeSets) != 1 {
		t.Fatalf("change sets = %+v", r.ChangeSets)
	}
	if !strings.Contains(r.ChangeSets[0].Comment, "align with playbook") {
		t.Fatalf("comment = %q", r.ChangeSets[0].Comment)
	}
}

func TestApplyMetrics(t *testing.T) {
	e := NewEngine(Config{})
	matches := []match.Match{
		{SectionID: "sec_1", ClauseType: "term", Confidence: 0.9, Text: "perpetual term applies"},
		{SectionID: "sec_2", ClauseType: "governing_law", Confidence: 0.8, Text: "Governed by the laws of France."},
		{SectionID: "sec_3", ClauseType: "payment", Confidence: 0.9, Text: "Net 30."},
	}

	r := e.Apply("agr_1", testPlaybook(), matches)

	// payment has no position: 2 of 3 matches processed.
	if want := 2.0 / 3.0 * 100; r.CoveragePercentage < want-1e-9 || r.CoveragePercentage > want+1e-9 {
		t.Fatalf("coverage = %.3f, want %.3f", r.CoveragePercentage, want)
	}
	if len(r.ChangeSets) != 2 {
		t.Fatalf("change sets = %d, want 2", len(r.ChangeSets))
	}
	want := (0.9*0.8 + 0.8*0.6) / 2
	if diff := r.RiskScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("risk score = %.4f, want %.4f", r.RiskScore, want)
	}
	if !strings.Contains(r.Summary, "Generated 2 changes covering 66.7%") {
		t.Fatalf("summary = %q", r.Summary)
	}
	if r.PlaybookID != "pb_nda_us" || r.GeneratedAt.IsZero() {
		t.Fatalf("redline = %+v", r)
	}
}

func TestApplyEmptyMatches(t *testing.T) {
	e := NewEngine(Config{})
	r := e.Apply("agr_1", testPlaybook(), nil)
	if r.CoveragePercentage != 0 || r.RiskScore != 0 || len(r.ChangeSets) != 0 {
		t.Fatalf("empty redline = %+v", r)
	}
}
