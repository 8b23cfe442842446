package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	emb := New(Config{})

	a, err := emb.Embed(context.Background(), "limitation of liability for damages")
	if err != nil {
		t.Fatal(err)
	}
	b, err := emb.Embed(context.Background(), "limitation of liability for damages")
	if err != nil {
		t.Fatal(err)
	}
	if CosineSimilarity(a, b) < 0.999 {
		t.Fatalf("identical texts should embed identically, similarity %f", CosineSimilarity(a, b))
	}
	if len(a) != 256 {
		t.Fatalf("default local dimension = %d, want 256", len(a))
	}
}

func TestLocalEmbedderDiscriminates(t *testing.T) {
	emb := New(Config{Dimension: 512})
	ctx := context.Background()

	liability, _ := emb.Embed(ctx, "in no event shall either party be liable for indirect or consequential damages")
	similar, _ := emb.Embed(ctx, "neither party shall be liable for consequential or indirect damages")
	unrelated, _ := emb.Embed(ctx, "the quarterly invoice is due within thirty days of receipt")

	simClose := CosineSimilarity(liability, similar)
	simFar := CosineSimilarity(liability, unrelated)
	if simClose <= simFar {
		t.Fatalf("related texts scored %f, unrelated %f; want related > unrelated", simClose, simFar)
	}
}

func TestOpenAIClientBatching(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		calls++

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]any, len(req.Input))
		for i := range data {
			data[i] = map[string]any{
				"embedding": []float32{0.1, 0.2, 0.3, 0.4},
				"index":     i,
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
	defer srv.Close()

	emb := New(Config{Endpoint: srv.URL, Model: "test-model", BatchSize: 2})

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if calls != 2 {
		t.Fatalf("batchSize=2 with 3 inputs should make 2 calls, made %d", calls)
	}
	if emb.Dimension() != 4 {
		t.Fatalf("auto-detected dimension = %d, want 4", emb.Dimension())
	}
}

func TestOpenAIClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emb := New(Config{Endpoint: srv.URL, Model: "m"})
	if _, err := emb.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error from 503 response")
	}
}

func TestSerializeDeserializeVector(t *testing.T) {
	original := []float32{1.0, -2.5, 3.14, 0, -0.001}
	restored := DeserializeVector(SerializeVector(original))

	if len(restored) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(restored), len(original))
	}
	for i := range original {
		if restored[i] != original[i] {
			t.Fatalf("mismatch at %d: %f vs %f", i, restored[i], original[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}
	d := []float32{-1, 0, 0}

	if sim := CosineSimilarity(a, b); math.Abs(sim-1.0) > 1e-6 {
		t.Fatalf("identical vectors: got %f, want ~1", sim)
	}
	if sim := CosineSimilarity(a, c); math.Abs(sim) > 1e-6 {
		t.Fatalf("orthogonal vectors: got %f, want ~0", sim)
	}
	if sim := CosineSimilarity(a, d); math.Abs(sim+1.0) > 1e-6 {
		t.Fatalf("opposite vectors: got %f, want ~-1", sim)
	}
	if sim := CosineSimilarity(a, []float32{1, 2}); sim != 0 {
		t.Fatalf("mismatched lengths: got %f, want 0", sim)
	}
}
