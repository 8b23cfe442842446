// Package clauselib provides access to the library of standard clauses that
// agreement sections are matched against.
//
// A library entry carries the canonical clause text, its category and
// jurisdiction, a residual risk level, and the negotiation positions used by
// the playbook engine. Entries can be loaded from a YAML file (the format
// used to author libraries) or from a SQLite table (the format used at
// runtime, where precomputed embeddings are stored alongside the text).
package clauselib

import (
	"context"
	"fmt"

	"github.com/veritract/veritract/embedding"
)

// Positions holds the negotiation stance for one clause.
type Positions struct {
	Preferred         string   `json:"preferred" yaml:"preferred"`
	Fallback          string   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Unacceptable      string   `json:"unacceptable,omitempty" yaml:"unacceptable,omitempty"`
	UnacceptableTerms []string `json:"unacceptable_terms,omitempty" yaml:"unacceptable_terms,omitempty"`
}

// Clause is one library entry.
type Clause struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Text         string    `json:"text" yaml:"text"`
	ClauseType   string    `json:"clause_type" yaml:"clause_type"`
	Category     string    `json:"category" yaml:"category"`
	Jurisdiction string    `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
	RiskLevel    string    `json:"risk_level" yaml:"risk_level"`
	Playbook     Positions `json:"playbook" yaml:"playbook"`

	// Embedding is the precomputed vector for Text. Nil when the entry has
	// not been embedded yet.
	Embedding []float32 `json:"-" yaml:"-"`
}

// Source lists library clauses.
type Source interface {
	List(ctx context.Context) ([]Clause, error)
}

// EmbeddingSaver is implemented by sources that can persist computed vectors,
// so later runs read them back instead of re-embedding the library.
type EmbeddingSaver interface {
	SaveEmbedding(ctx context.Context, id string, vec []float32) error
}

// EnsureEmbeddings fills in missing clause embeddings using the given
// embedder and returns the indexes of the clauses it embedded. An existing
// vector is kept unless the embedder reports a dimension it does not match;
// a remote embedder that has not yet learned its dimension reports 0 and
// keeps everything.
func EnsureEmbeddings(ctx context.Context, emb embedding.Embedder, clauses []Clause) ([]int, error) {
	dim := emb.Dimension()
	var missing []int
	var texts []string
	for i, c := range clauses {
		if len(c.Embedding) > 0 && (dim == 0 || len(c.Embedding) == dim) {
			continue
		}
		missing = append(missing, i)
		texts = append(texts, c.Text)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed library clauses: %w", err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embed library clauses: got %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, i := range missing {
		clauses[i].Embedding = vecs[j]
	}
	return missing, nil
}
