package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// localEmbedder produces deterministic bag-of-words vectors by hashing each
// token into a fixed-size bucket array and L2-normalizing the result. Texts
// sharing vocabulary get high cosine similarity; unrelated texts do not.
// This is the degraded mode used when no embedding server is configured, and
// the default in tests.
type localEmbedder struct {
	dim   int
	model string
}

func (l *localEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return l.hash(text), nil
}

func (l *localEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.hash(t)
	}
	return out, nil
}

func (l *localEmbedder) Dimension() int { return l.dim }

func (l *localEmbedder) Model() string {
	if l.model == "" {
		return "local-hash"
	}
	return l.model
}

func (l *localEmbedder) hash(text string) []float32 {
	vec := make([]float32, l.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%l.dim]++
	}
	// L2-normalize so cosine similarity ranges behave like real embeddings.
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
