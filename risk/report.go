package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veritract/veritract/llm"
	"github.com/veritract/veritract/match"
)

// Report is the risk_report artifact for one agreement.
type Report struct {
	AgreementID       string             `json:"agreement_id"`
	OverallRiskScore  float64            `json:"overall_risk_score"`
	RiskLevel         string             `json:"risk_level"`
	CategoryBreakdown map[string]float64 `json:"category_breakdown"`
	Exceptions        []Exception        `json:"exceptions"`
	HighRiskClauses   []ClauseRisk       `json:"high_risk_clauses"`
	Summary           string             `json:"summary"`
	Recommendations   []string           `json:"recommendations"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// Report scores every matched clause and assembles the agreement-level
// report. The narrative is model-written when a completer is available and
// falls back to a deterministic summary otherwise; narrative failure never
// fails the report.
func (s *Scorer) Report(ctx context.Context, completer llm.Completer, agreementID string, matches []match.Match) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clauses := make([]ClauseRisk, 0, len(matches))
	for _, m := range matches {
		clauses = append(clauses, s.ScoreClause(m.SectionID, m.ClauseType, m.Text))
	}

	var sum float64
	breakdown := make(map[string]float64, len(categoryWeights))
	var allExceptions []Exception
	var highRisk []ClauseRisk
	for _, c := range clauses {
		sum += c.OverallScore
		for name, score := range c.CategoryScores {
			breakdown[name] += score
		}
		allExceptions = append(allExceptions, c.Exceptions...)
		if c.RiskLevel == "high" || c.RiskLevel == "critical" {
			highRisk = append(highRisk, c)
		}
	}

	overall := 0.0
	if len(clauses) > 0 {
		overall = sum / float64(len(clauses))
		for name := range breakdown {
			breakdown[name] /= float64(len(clauses))
		}
	} else {
		for name := range categoryWeights {
			breakdown[name] = 0
		}
	}

	summary, recommendations := s.narrative(ctx, completer, clauses, highRisk, allExceptions)

	report := &Report{
		AgreementID:       agreementID,
		OverallRiskScore:  overall,
		RiskLevel:         Level(overall),
		CategoryBreakdown: breakdown,
		Exceptions:        allExceptions,
		HighRiskClauses:   highRisk,
		Summary:           summary,
		Recommendations:   recommendations,
		GeneratedAt:       time.Now().UTC(),
	}

	s.cfg.Logger.Info("risk report assembled",
		"agreement_id", agreementID,
		"clauses", len(clauses),
		"overall_score", overall,
		"risk_level", report.RiskLevel,
		"exceptions", len(allExceptions),
		"high_risk_clauses", len(highRisk))
	return report, nil
}

// narrative asks the model for an executive summary and recommendations,
// falling back to deterministic text on any error.
func (s *Scorer) narrative(ctx context.Context, completer llm.Completer, clauses, highRisk []ClauseRisk, exceptions []Exception) (string, []string) {
	fallbackSummary := fmt.Sprintf(
		"Risk assessment completed. %d clauses analyzed with %d high-risk items identified.",
		len(clauses), len(highRisk))
	fallbackRecs := []string{
		"Review all high-risk clauses with legal team",
		"Address critical exceptions immediately",
		"Consider risk mitigation strategies for identified issues",
	}

	if completer == nil {
		return fallbackSummary, fallbackRecs
	}

	answer, err := completer.Complete(ctx, narrativePrompt(clauses, highRisk, exceptions))
	if err != nil {
		s.cfg.Logger.Warn("risk narrative unavailable", "error", err)
		return fallbackSummary, fallbackRecs
	}

	summary, recommendations := parseNarrative(answer)
	if summary == "" {
		summary = fallbackSummary
	}
	if len(recommendations) == 0 {
		recommendations = fallbackRecs
	}
	return summary, recommendations
}

func narrativePrompt(clauses, highRisk []ClauseRisk, exceptions []Exception) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this contract risk assessment and provide:\n")
	fmt.Fprintf(&b, "1. A 2-3 sentence executive summary\n")
	fmt.Fprintf(&b, "2. Top 3-5 specific recommendations for risk mitigation, one per line prefixed with \"- \"\n\n")
	fmt.Fprintf(&b, "Risk Analysis Summary:\n")
	fmt.Fprintf(&b, "- Total clauses analyzed: %d\n", len(clauses))
	fmt.Fprintf(&b, "- High/critical risk clauses: %d\n", len(highRisk))
	fmt.Fprintf(&b, "- Total exceptions detected: %d\n\n", len(exceptions))

	if len(highRisk) > 0 {
		fmt.Fprintf(&b, "High Risk Clauses:\n")
		for _, rs := range highRisk[:min(5, len(highRisk))] {
			fmt.Fprintf(&b, "- %s (section %s): %s risk, %d exceptions\n",
				rs.ClauseType, rs.SectionID, rs.RiskLevel, len(rs.Exceptions))
		}
	}

	critical := 0
	for _, e := range exceptions {
		if e.Severity != "critical" || critical >= 5 {
			continue
		}
		if critical == 0 {
			fmt.Fprintf(&b, "\nCritical Exceptions:\n")
		}
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		critical++
	}
	return b.String()
}

// parseNarrative splits a model answer into summary prose and "- " bullet
// recommendations, capped at five.
func parseNarrative(answer string) (string, []string) {
	var summary string
	var recommendations []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "- "):
			if len(recommendations) < 5 {
				recommendations = append(recommendations, strings.TrimPrefix(line, "- "))
			}
		case summary == "" && len(line) > 50:
			summary = line
		}
	}
	return summary, recommendations
}
