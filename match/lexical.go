package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// legalPhrases are domain phrases whose presence in a section signals clause
// language. The fraction found contributes to the lexical score.
var legalPhrases = []string{
	"limitation of liability", "damages", "indemnification",
	"termination", "notice", "breach", "default",
	"confidentiality", "non-disclosure", "intellectual property",
	"governing law", "jurisdiction", "dispute resolution",
	"force majeure", "assignment", "amendment",
}

// stopwords excluded from key-term extraction.
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"during": true, "including": true, "until": true, "against": true,
	"among": true, "throughout": true, "despite": true, "towards": true,
	"upon": true,
}

var wordPattern = regexp.MustCompile(`\b[A-Za-z]{4,}\b`)

// lexicalScore computes the rule-based component of the match confidence:
// 0.4 * key-term overlap + 0.3 * legal-phrase hits + 0.3 * structural
// similarity. All components and the result are in [0,1].
func lexicalScore(sectionText, clauseText string) (float64, string) {
	sectionLower := strings.ToLower(sectionText)
	var reasoning []string

	terms := keyTerms(clauseText)
	termHits := 0
	for _, t := range terms {
		if strings.Contains(sectionLower, t) {
			termHits++
			reasoning = append(reasoning, fmt.Sprintf("key term %q found", t))
		}
	}
	termScore := 0.0
	if len(terms) > 0 {
		termScore = float64(termHits) / float64(len(terms))
	}
	reasoning = append(reasoning, fmt.Sprintf("term match score: %.2f", termScore))

	phraseHits := 0
	for _, p := range legalPhrases {
		if strings.Contains(sectionLower, p) {
			phraseHits++
			reasoning = append(reasoning, fmt.Sprintf("legal phrase %q found", p))
		}
	}
	phraseScore := float64(phraseHits) / float64(len(legalPhrases))
	reasoning = append(reasoning, fmt.Sprintf("legal phrase score: %.2f", phraseScore))

	structural := structuralScore(sectionText, clauseText)
	reasoning = append(reasoning, fmt.Sprintf("structural score: %.2f", structural))

	score := termScore*0.4 + phraseScore*0.3 + structural*0.3
	return min(score, 1.0), strings.Join(reasoning, "; ")
}

// keyTerms returns the up-to-10 most frequent non-stopword terms (4+ letters)
// of a clause. Ties break alphabetically so the result is deterministic.
func keyTerms(text string) []string {
	freq := make(map[string]int)
	for _, w := range wordPattern.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if stopwords[w] {
			continue
		}
		freq[w]++
	}

	terms := make([]string, 0, len(freq))
	for w := range freq {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > 10 {
		terms = terms[:10]
	}
	return terms
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// structuralScore compares average sentence length and paragraph count. Both
// similarities are in [0,1]; sentence length carries double the weight, and
// the result is normalized back to [0,1].
func structuralScore(sectionText, clauseText string) float64 {
	lengthSim := 0.0
	sLen := avgSentenceLen(sectionText)
	cLen := avgSentenceLen(clauseText)
	if sLen > 0 && cLen > 0 {
		lengthSim = 1 - abs(sLen-cLen)/max(sLen, cLen)
	}

	sParas := float64(len(strings.Split(sectionText, "\n\n")))
	cParas := float64(len(strings.Split(clauseText, "\n\n")))
	paraSim := 1 - abs(sParas-cParas)/max(sParas, cParas)

	return (2*lengthSim + paraSim) / 3
}

func avgSentenceLen(text string) float64 {
	var total, n int
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		total += len(strings.Fields(s))
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
